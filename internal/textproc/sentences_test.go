package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAtSentence(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "Wash hands. Dry them.", 50, "Wash hands. Dry them."},
		{"cuts at last sentence", "Wash hands. Dry them. Put on gloves.", 25, "Wash hands. Dry them."},
		{"ignores decimal points", "Hold at 2.5 bar. Then vent slowly.", 12, "Hold at 2.5"},
		{"question mark", "Is the line clear? Check it now.", 20, "Is the line clear?"},
		{"newline boundary", "Step one\nStep two continues", 12, "Step one"},
		{"word break fallback", "Sanitise the filling nozzle", 15, "Sanitise the"},
		{"hard cut", "Supercalifragilistic", 5, "Super"},
		{"zero budget", "anything", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateAtSentence(tt.text, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), tt.max)
		})
	}
}
