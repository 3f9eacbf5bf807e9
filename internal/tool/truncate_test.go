package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncatePassthroughWithinBounds(t *testing.T) {
	tr := NewTruncator(t.TempDir())

	output := "line one\nline two"
	res, err := tr.Truncate(output, DirectionHead)
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, output, res.Content)
	assert.Empty(t, res.OutputID)
}

func TestTruncateSpillsLongOutput(t *testing.T) {
	dir := t.TempDir()
	tr := NewTruncator(dir)

	var sb strings.Builder
	for i := 1; i <= 3000; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	original := strings.TrimRight(sb.String(), "\n")

	res, err := tr.Truncate(original, DirectionHead)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	require.NotEmpty(t, res.OutputID)

	// Preview respects the line bound (marker and hint add a few).
	previewLines := strings.Count(res.Content, "\n") + 1
	assert.LessOrEqual(t, previewLines, MaxLines+4)
	assert.Contains(t, res.Content, "truncated")
	assert.Contains(t, res.Content, "line 1\n", "head direction keeps the start")

	// Full output spilled byte-for-byte.
	spilled, err := os.ReadFile(res.SpillPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(spilled))
}

func TestTruncateTailKeepsEnd(t *testing.T) {
	tr := NewTruncator(t.TempDir())

	var sb strings.Builder
	for i := 1; i <= 3000; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}

	res, err := tr.Truncate(strings.TrimRight(sb.String(), "\n"), DirectionTail)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Content, "line 3000")
	assert.NotContains(t, res.Content, "line 1\n")
}

func TestTruncateByteBound(t *testing.T) {
	tr := NewTruncator(t.TempDir())

	// Few lines, many bytes.
	output := strings.Repeat("x", MaxBytes+100)
	res, err := tr.Truncate(output, DirectionHead)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
}

func TestGCRemovesExpiredSpills(t *testing.T) {
	dir := t.TempDir()

	// A spill file named with an ancient embedded timestamp.
	expired := "tix_0001BZDRX9HP7C1NS0M72QG6ZM"
	require.NoError(t, os.WriteFile(filepath.Join(dir, expired), []byte("old"), 0o644))
	// A file the GC cannot date stays put.
	opaque := "README"
	require.NoError(t, os.WriteFile(filepath.Join(dir, opaque), []byte("keep"), 0o644))

	tr := NewTruncator(dir)
	_, err := tr.Truncate("small", DirectionHead) // first use triggers GC
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, expired))
	assert.True(t, os.IsNotExist(err), "expired spill must be removed")
	_, err = os.Stat(filepath.Join(dir, opaque))
	assert.NoError(t, err)
}
