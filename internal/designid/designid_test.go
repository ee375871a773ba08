package designid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFDH_Derive(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"long suffix keeps four", "DIX101d-F31a9-012", "DIX101d-F31a"},
		{"four char suffix keeps three", "DIX101d-F31a-7", "DIX101d-F31"},
		{"three char suffix kept whole", "DIX101d-F31", "DIX101d-F31"},
		{"short suffix kept whole", "DIX101d-F3", "DIX101d-F3"},
		{"empty suffix", "DIX101d-", "DIX101d-"},
		{"no delimiter", "DIX101d", ""},
		{"blank", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FDH.Derive(tt.in))
		})
	}
}

func TestGrammar_NoMatchingRule(t *testing.T) {
	g := Grammar{Delim: "_", Rules: []Rule{{MinSuffixLen: 6, Keep: 2}}}
	assert.Equal(t, "", g.Derive("A_abc"))
	assert.Equal(t, "A_ab", g.Derive("A_abcdef"))
}

func TestGrammar_EmptyDelimiter(t *testing.T) {
	assert.Equal(t, "", Grammar{}.Derive("A-B"))
}
