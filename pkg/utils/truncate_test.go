package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"under limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello"},
		{"zero limit returns input", "hello", 0, "hello"},
		{"cut lands mid-rune", "héllo", 2, "h"},
		{"multibyte kept when whole", "héllo", 3, "hé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateText(tt.input, tt.limit))
		})
	}
}

func TestTruncateText_NeverSplitsRunes(t *testing.T) {
	input := strings.Repeat("résumé 日本語 ", 40)
	for limit := 1; limit < len(input); limit += 7 {
		got := TruncateText(input, limit)
		assert.True(t, utf8.ValidString(got), "limit %d produced invalid UTF-8", limit)
		assert.LessOrEqual(t, len(got), limit)
	}
}
