package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidID(t *testing.T) {
	valid := []string{"c1", "abc-123", "A_B-c", strings.Repeat("x", 64)}
	for _, id := range valid {
		assert.True(t, ValidID(id), id)
	}

	invalid := []string{"", " ", "c 1", "c/1", "c;drop", "café", strings.Repeat("x", 65)}
	for _, id := range invalid {
		assert.False(t, ValidID(id), id)
	}
}
