// Package filetracker accumulates per-session file diffs. A snapshot
// taken at turn start is compared against the worktree at turn end;
// the resulting unified diffs land on the session. A filesystem
// watcher feeds live file.watcher.updated events to the bus between
// turns.
package filetracker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/pkg/types"
)

// Walk bounds keep snapshots cheap on big worktrees.
const (
	maxFileSize = 1 << 20 // 1MB
	maxFiles    = 10_000
)

var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, ".idea": true,
}

// Tracker snapshots and diffs worktrees.
type Tracker struct {
	repo *repo.Repository
	bus  *event.Bus

	mu        sync.Mutex
	snapshots map[string]map[string]string // dir -> rel path -> content
}

// New creates a tracker.
func New(r *repo.Repository, bus *event.Bus) *Tracker {
	return &Tracker{
		repo:      r,
		bus:       bus,
		snapshots: make(map[string]map[string]string),
	}
}

// Snapshot records the current text content of the worktree.
func (t *Tracker) Snapshot(dir string) error {
	files, err := walkText(dir)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.snapshots[dir] = files
	t.mu.Unlock()
	return nil
}

// Flush diffs the worktree against its snapshot, folds the result
// into the session's accumulated diffs and summary counters, and
// publishes file.edited per changed file. The snapshot advances to
// the new state.
func (t *Tracker) Flush(ctx context.Context, sessionID, dir string) error {
	t.mu.Lock()
	before, ok := t.snapshots[dir]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	after, err := walkText(dir)
	if err != nil {
		return err
	}

	changed := diffStates(before, after)
	if len(changed) == 0 {
		return nil
	}

	existing, err := t.repo.GetDiffs(ctx, sessionID)
	if err != nil {
		return err
	}
	byFile := make(map[string]int, len(existing))
	for i, d := range existing {
		byFile[d.File] = i
	}
	for _, d := range changed {
		if i, ok := byFile[d.File]; ok {
			existing[i].Additions += d.Additions
			existing[i].Deletions += d.Deletions
			existing[i].Diff = d.Diff
		} else {
			existing = append(existing, d)
		}
		t.bus.Publish(event.FileEdited, event.FileEditedData{File: d.File})
	}
	if err := t.repo.SetDiffs(ctx, sessionID, existing); err != nil {
		return err
	}

	additions, deletions := 0, 0
	for _, d := range existing {
		additions += d.Additions
		deletions += d.Deletions
	}
	if _, err := t.repo.UpdateSession(ctx, sessionID, func(s *types.Session) {
		s.Summary.Additions = additions
		s.Summary.Deletions = deletions
		s.Summary.Files = len(existing)
		s.Summary.Diffs = existing
	}); err != nil {
		return err
	}

	t.mu.Lock()
	t.snapshots[dir] = after
	t.mu.Unlock()
	return nil
}

// Watch publishes file.watcher.updated for filesystem changes under
// dir until ctx is done. Best effort: watcher failures are logged.
func (t *Tracker) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// fsnotify is not recursive; watch every directory.
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		watcher.Add(path)
		return nil
	})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				rel, err := filepath.Rel(dir, ev.Name)
				if err != nil {
					continue
				}
				kind := ""
				switch {
				case ev.Op.Has(fsnotify.Create):
					kind = "add"
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						watcher.Add(ev.Name)
					}
				case ev.Op.Has(fsnotify.Write):
					kind = "change"
				case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
					kind = "unlink"
				default:
					continue
				}
				t.bus.Publish(event.FileWatcherUpdated, event.FileWatcherUpdatedData{
					File:  rel,
					Event: kind,
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Debug().Err(err).Msg("file watcher error")
			}
		}
	}()
	return nil
}

// walkText reads the worktree's text files, keyed by relative path.
func walkText(dir string) (map[string]string, error) {
	files := make(map[string]string)
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if count >= maxFiles {
			return filepath.SkipAll
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		files[rel] = string(data)
		count++
		return nil
	})
	return files, err
}

func isText(data []byte) bool {
	limit := len(data)
	if limit > 8000 {
		limit = 8000
	}
	for _, b := range data[:limit] {
		if b == 0 {
			return false
		}
	}
	return true
}

// diffStates produces one FileDiff per changed, added or removed
// file.
func diffStates(before, after map[string]string) []types.FileDiff {
	dmp := diffmatchpatch.New()
	var out []types.FileDiff

	seen := make(map[string]bool, len(before)+len(after))
	for path := range before {
		seen[path] = true
	}
	for path := range after {
		seen[path] = true
	}

	for path := range seen {
		old, cur := before[path], after[path]
		if old == cur {
			continue
		}

		diffs := dmp.DiffMain(old, cur, true)
		dmp.DiffCleanupSemantic(diffs)

		additions, deletions := 0, 0
		for _, d := range diffs {
			lines := strings.Count(d.Text, "\n")
			if lines == 0 && len(d.Text) > 0 {
				lines = 1
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				additions += lines
			case diffmatchpatch.DiffDelete:
				deletions += lines
			}
		}

		out = append(out, types.FileDiff{
			File:      path,
			Additions: additions,
			Deletions: deletions,
			Diff:      dmp.DiffPrettyText(diffs),
		})
	}
	return out
}
