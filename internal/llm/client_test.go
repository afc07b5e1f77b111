package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Timeout(t *testing.T) {
	c := NewClient("test-key", "gpt-4", "text-embedding-3-small", 0.2, 2048, 45)
	assert.Equal(t, 45*time.Second, c.timeout)

	c = NewClient("test-key", "gpt-4", "text-embedding-3-small", 0.2, 2048, 0)
	assert.Equal(t, 30*time.Second, c.timeout)
}

func TestParseStringArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
		wantErr  bool
	}{
		{
			name:     "plain array",
			input:    `["Go", "SQL"]`,
			expected: []string{"Go", "SQL"},
		},
		{
			name:     "fenced array",
			input:    "```json\n[\"React\", \"payroll\"]\n```",
			expected: []string{"React", "payroll"},
		},
		{
			name:     "drops empty entries",
			input:    `["Go", "  ", ""]`,
			expected: []string{"Go"},
		},
		{
			name:    "not an array",
			input:   `{"skills": ["Go"]}`,
			wantErr: true,
		},
		{
			name:    "prose instead of JSON",
			input:   "The skills are Go and SQL.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseStringArray(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, items)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `["a"]`, stripCodeFence("```json\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripCodeFence("```\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripCodeFence(`["a"]`))
	assert.Equal(t, "{}", stripCodeFence("  {}  "))
}
