package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opencode-ai/core/internal/id"
	"github.com/opencode-ai/core/internal/logging"
)

// Truncation bounds applied to every tool output before it reaches
// the model.
const (
	MaxLines = 2000
	MaxBytes = 51200

	// SpillTTL is how long spilled outputs are kept.
	SpillTTL = 7 * 24 * time.Hour
)

// Truncation directions.
const (
	DirectionHead = "head"
	DirectionTail = "tail"
)

// Truncator caps tool outputs and spills the full text to disk when a
// bound is exceeded.
type Truncator struct {
	dir      string
	maxLines int
	maxBytes int
	gcOnce   sync.Once
}

// TruncateResult is the outcome of one truncation.
type TruncateResult struct {
	Content   string
	Truncated bool
	OutputID  string // set when the full output was spilled
	SpillPath string
}

// NewTruncator creates a truncator spilling into dir.
func NewTruncator(dir string) *Truncator {
	return &Truncator{dir: dir, maxLines: MaxLines, maxBytes: MaxBytes}
}

// Truncate bounds output to the configured limits, keeping the head
// or tail as requested. Within-bounds output passes through verbatim.
// Oversized output is written whole to <dir>/<id> and the returned
// content carries a marker plus a retrieval hint.
func (t *Truncator) Truncate(output, direction string) (*TruncateResult, error) {
	t.gcOnce.Do(t.gc)

	lines := strings.Split(output, "\n")
	if len(lines) <= t.maxLines && len(output) <= t.maxBytes {
		return &TruncateResult{Content: output}, nil
	}

	outputID := id.Ascending(id.ToolOutput)
	spillPath := filepath.Join(t.dir, outputID)
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}
	if err := os.WriteFile(spillPath, []byte(output), 0o644); err != nil {
		return nil, fmt.Errorf("failed to spill output: %w", err)
	}

	preview, droppedLines, droppedBytes := t.preview(lines, output, direction)
	marker := fmt.Sprintf("\n... [%d lines / %s truncated] ...\n",
		droppedLines, humanize.Bytes(uint64(droppedBytes)))
	hint := fmt.Sprintf("The full output was saved to %s; read it with offset/limit if more is needed.", spillPath)

	var content string
	if direction == DirectionTail {
		content = marker + preview + "\n" + hint
	} else {
		content = preview + marker + hint
	}

	return &TruncateResult{
		Content:   content,
		Truncated: true,
		OutputID:  outputID,
		SpillPath: spillPath,
	}, nil
}

// preview keeps as many whole lines as fit both bounds, from the
// requested end.
func (t *Truncator) preview(lines []string, output, direction string) (string, int, int) {
	keep := t.maxLines
	if keep > len(lines) {
		keep = len(lines)
	}

	var kept []string
	if direction == DirectionTail {
		kept = lines[len(lines)-keep:]
		for size(kept) > t.maxBytes && len(kept) > 1 {
			kept = kept[1:]
		}
	} else {
		kept = lines[:keep]
		for size(kept) > t.maxBytes && len(kept) > 1 {
			kept = kept[:len(kept)-1]
		}
	}

	preview := strings.Join(kept, "\n")
	return preview, len(lines) - len(kept), len(output) - len(preview)
}

func size(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n - 1
}

// gc removes spill files past their TTL. Ages come from the ID
// embedded in the filename, so no stat is needed; unparseable names
// are left alone.
func (t *Truncator) gc() {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-SpillTTL)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := id.Timestamp(entry.Name())
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			if err := os.Remove(filepath.Join(t.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("cleaned expired tool outputs")
	}
}
