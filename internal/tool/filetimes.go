package tool

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileTimes remembers when each file was last read and written during
// a session, so destructive tools can require a fresh read first.
type FileTimes struct {
	mu    sync.Mutex
	read  map[string]time.Time
	wrote map[string]time.Time
}

// NewFileTimes creates an empty tracker.
func NewFileTimes() *FileTimes {
	return &FileTimes{
		read:  make(map[string]time.Time),
		wrote: make(map[string]time.Time),
	}
}

// MarkRead records that path was read now.
func (f *FileTimes) MarkRead(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read[path] = time.Now()
}

// MarkWritten records that path was written now.
func (f *FileTimes) MarkWritten(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.wrote[path] = now
	f.read[path] = now
}

// CheckFresh verifies the file was read since its last modification.
// Editing a never-read or externally-modified file is rejected.
func (f *FileTimes) CheckFresh(path string) error {
	f.mu.Lock()
	readAt, ok := f.read[path]
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("file must be read before editing: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.ModTime().After(readAt) {
		return fmt.Errorf("file was modified since last read: %s", path)
	}
	return nil
}
