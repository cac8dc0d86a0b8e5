package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	assert.Equal(t, Hash("a"), Hash("a"))
	assert.NotEqual(t, Hash("a"), Hash("b"))
	assert.Equal(t, Hash("a", 1, true), Hash("a", 1, true))
	assert.NotEqual(t, Hash("a", 1, true), Hash("a", 1, false))
	assert.NotEmpty(t, Hash(map[string]any{"x": 1}))
}
