package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextReturnsWholeShortText(t *testing.T) {
	pieces := chunkText("short text", 512, 64)
	require.Len(t, pieces, 1)
	assert.Equal(t, "short text", pieces[0])
}

func TestChunkTextOverlapsWindows(t *testing.T) {
	text := strings.Repeat("a", 10) + strings.Repeat("b", 10)
	pieces := chunkText(text, 12, 4)

	require.Len(t, pieces, 2)
	assert.Equal(t, "aaaaaaaaaabb", pieces[0])
	assert.Equal(t, "aabbbbbbbbbb", pieces[1])
	// Each window starts size-overlap runes after the previous one.
	assert.Equal(t, pieces[0][8:], pieces[1][:4])
}

func TestChunkTextCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 8)
	pieces := chunkText(text, 8, 0)
	require.Len(t, pieces, 1)
	assert.Equal(t, text, pieces[0])
}
