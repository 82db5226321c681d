// Package idgen generates short, URL-safe identifiers for registry
// generations and stream sessions.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const length = 12

// Prefixes for the identifier kinds in use.
const (
	PrefixGeneration = "gen-"
	PrefixSession    = "ses-"
)

// New returns prefix followed by a random nanoid.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Generation returns a registry generation ID. Generation IDs only label
// snapshots, so a failed random read falls back to a fixed value rather
// than failing the resync that asked for it.
func Generation() string {
	id, err := New(PrefixGeneration)
	if err != nil {
		return PrefixGeneration + "fallback"
	}
	return id
}
