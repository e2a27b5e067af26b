package input

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Acme Inc", "Acme Inc"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"trimmed", "  Grow to $1M ARR \n", "Grow to $1M ARR"},
		{"inner controls kept", "  a\x00b\x07c  ", "a\x00b\x07c"},
		{"newlines kept", "Line1\nLine2", "Line1\nLine2"},
		{"invalid utf8", "bad\xffutf8", "bad" + Replacement + "utf8"},
		{"long", strings.Repeat("x", 5000), strings.Repeat("x", 5000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}
