package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Cleanup removes the frontier directory, the claim-ledger directory, the
// per-worker urls-final and url-existence partials, and (if dropCache) the
// fetch-cache parts, per spec.md Section 4.8(g). The internal-links NDJSON
// partials are kept.
func (o *Orchestrator) Cleanup() error {
	if err := os.RemoveAll(filepath.Join(o.cfg.OutDir, "frontier")); err != nil {
		return fmt.Errorf("remove frontier dir: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(o.cfg.OutDir, "disco-locks")); err != nil {
		return fmt.Errorf("remove claim ledger dir: %w", err)
	}
	if err := removeGlob(filepath.Join(o.cfg.OutDir, "urls-final.part*.json")); err != nil {
		return err
	}
	if err := removeGlob(filepath.Join(o.cfg.OutDir, "url-existence.part*.json")); err != nil {
		return err
	}
	if err := removeGlob(filepath.Join(o.cfg.OutDir, "url-existence.part*.csv")); err != nil {
		return err
	}
	if o.cfg.DropCache {
		if err := removeGlob(filepath.Join(o.cfg.OutDir, "fetch-cache.part*.json")); err != nil {
			return err
		}
	}
	return nil
}

func removeGlob(pattern string) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob %s: %w", pattern, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", m, err)
		}
	}
	return nil
}
