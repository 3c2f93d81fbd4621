// Package idgen mints the "freshly minted unique string" identifiers
// spec.md calls for (session ids, terminal ids, auto-registered tool
// call ids) using uuid v4.
package idgen

import "github.com/google/uuid"

// New returns a fresh random identifier.
func New() string {
	return uuid.New().String()
}

// Prefixed returns a fresh identifier with a human-readable prefix, used
// where a caller-facing id benefits from a type hint (e.g. "term-<uuid>").
func Prefixed(prefix string) string {
	return prefix + "-" + uuid.New().String()
}
