package index

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextOverlap(t *testing.T) {
	text := "あいうえおかきくけこさしすせそ" // 15 runes
	chunks, err := SplitText(text, 6, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "あいうえおか", chunks[0])
	assert.Equal(t, "おかきくけこ", chunks[1])
	assert.Equal(t, "けこさしすせ", chunks[2])
	assert.Equal(t, "すせそ", chunks[3])

	// Every consecutive pair shares exactly the configured overlap.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-2:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with the tail of chunk %d", i, i-1)
	}
}

func TestSplitTextNoOverlap(t *testing.T) {
	chunks, err := SplitText("abcdef", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cd", "ef"}, chunks)
}

func TestSplitTextShorterThanChunk(t *testing.T) {
	chunks, err := SplitText("短い", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"短い"}, chunks)
}

func TestSplitTextEmpty(t *testing.T) {
	chunks, err := SplitText("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitTextInvalidConfig(t *testing.T) {
	for _, tc := range []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SplitText("text", tc.size, tc.overlap)
			assert.True(t, errors.Is(err, ErrInvalidChunking))
		})
	}
}
