package crawlweb

import "net/url"

// FilterConfig bundles the knobs the link-candidate filter needs from
// RunConfig/WorkerConfig, per spec.md Section 4.7 step 7.
type FilterConfig struct {
	PathPrefix    string
	KeepPageParam bool
}

// ResolveAndFilter absolutizes each candidate against pageURL, strips its
// fragment, drops asset-extension paths, enforces same-origin-or-
// registrable-domain and path-prefix membership, and normalizes surviving
// query params. It returns the normalized URL for each candidate that
// passes, paired with its originating Candidate for edge-record emission.
func ResolveAndFilter(pageURL string, candidates []Candidate, cfg FilterConfig) ([]Candidate, []string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}

	var survivors []Candidate
	var normalized []string
	for _, c := range candidates {
		resolved, err := base.Parse(c.URL)
		if err != nil {
			continue
		}
		if resolved.Scheme != "" && resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if HasAssetExtension(resolved.Path) {
			continue
		}
		if !SameOriginOrRegistrableDomain(base, resolved) {
			continue
		}
		if !HasPathPrefix(resolved.Path, cfg.PathPrefix) {
			continue
		}
		norm, err := NormalizeURL(resolved.String(), cfg.KeepPageParam)
		if err != nil {
			continue
		}
		survivors = append(survivors, c)
		normalized = append(normalized, norm)
	}
	return survivors, normalized
}
