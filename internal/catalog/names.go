package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName builds the identity key for a provider or plan name:
// Unicode NFKC, case folded, with runs of whitespace collapsed.
func NormalizeName(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// IdentityKey is the join key between a source record and a catalog entry.
type IdentityKey struct {
	Provider string
	Plan     string
}

// NewIdentityKey normalizes a provider and plan name pair.
func NewIdentityKey(provider, plan string) IdentityKey {
	return IdentityKey{Provider: NormalizeName(provider), Plan: NormalizeName(plan)}
}
