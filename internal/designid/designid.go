// Package designid derives grouping identifiers from dash-delimited design
// names. A cable named "DIX101d-F31-012" belongs to hub "DIX101d-F31"; the
// number of suffix characters kept depends on how long the suffix is.
package designid

import (
	"strings"
)

// Rule keeps Keep characters of the first suffix when the suffix is at least
// MinSuffixLen characters long.
type Rule struct {
	MinSuffixLen int
	Keep         int
}

// Grammar splits a name on Delim and keeps the prefix plus a slice of the
// first suffix chosen by the first matching rule. Rules are evaluated in
// order, so list them from the longest MinSuffixLen down.
type Grammar struct {
	Delim string
	Rules []Rule
}

// FDH is the Fort Collins hub grammar: a suffix longer than four characters
// keeps four, anything shorter keeps three.
var FDH = Grammar{
	Delim: "-",
	Rules: []Rule{
		{MinSuffixLen: 5, Keep: 4},
		{MinSuffixLen: 0, Keep: 3},
	},
}

// Derive returns the grouping id for name, or "" when name is blank, has no
// delimiter, or no rule matches.
func (g Grammar) Derive(name string) string {
	if name == "" || g.Delim == "" || !strings.Contains(name, g.Delim) {
		return ""
	}
	parts := strings.Split(name, g.Delim)
	prefix, suffix := parts[0], parts[1]

	for _, r := range g.Rules {
		if len(suffix) < r.MinSuffixLen {
			continue
		}
		keep := r.Keep
		if keep > len(suffix) {
			keep = len(suffix)
		}
		return prefix + g.Delim + suffix[:keep]
	}
	return ""
}
