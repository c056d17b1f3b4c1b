package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	tokens := Tokens("Store the vials at 2-8°C in the Operator's cold room.")
	assert.Equal(t, []string{"store", "vials", "2", "8", "c", "operator's", "cold", "room"}, tokens)
}

func TestTokens_Empty(t *testing.T) {
	assert.Empty(t, Tokens(""))
	assert.Empty(t, Tokens("the and of"))
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "clean the line", "clean the line", 1},
		{"disjoint", "clean line", "calibrate scale", 0},
		{"half", "clean line daily", "clean line weekly", 0.5},
		{"both empty", "", "", 1},
		{"one empty", "clean", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Jaccard(TokenSet(tt.a), TokenSet(tt.b)), 1e-9)
		})
	}
}
