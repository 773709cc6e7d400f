// Package idgen generates run and job identifiers.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 identifiers, which sort chronologically and make
// good run IDs for the Run History Store and telemetry snapshots.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRawID returns a fresh UUIDv7 value.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
