package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerCodeFromFolder(t *testing.T) {
	tests := []struct {
		name   string
		folder string
		want   string
	}{
		{"code in parentheses", "Ivanov Ivan (ab12345)", "ab12345"},
		{"uppercase code", "PETROV (XY9001)", "xy9001"},
		{"code without parentheses", "sidorov cd456 final", "cd456"},
		{"leftmost code wins", "ab1 and cd2", "ab1"},
		{"no code falls back to folder name", "Unknown Student", "unknown student"},
		{"bare digits are not a code", "12345", "12345"},
		{"bare letters are not a code", "surname", "surname"},
		{"trims fallback whitespace", "  plain name  ", "plain name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownerCodeFromFolder(tt.folder))
		})
	}
}
