package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName applies NFKC and collapses whitespace runs to single spaces.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}

// NamesEqual compares two display names after normalization.
func NamesEqual(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}
