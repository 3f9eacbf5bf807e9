package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// legacyTree reads the pre-SQLite JSON storage layout: one JSON file
// per entity, nested as <kind>/<owner>/<id>.json. It is only consumed
// by the importer and never written to.
type legacyTree struct {
	base string
}

func newLegacyTree(base string) *legacyTree {
	return &legacyTree{base: base}
}

// exists reports whether the tree has anything to import.
func (t *legacyTree) exists() bool {
	info, err := os.Stat(t.base)
	return err == nil && info.IsDir()
}

// list returns the entry names (directories, or .json files with the
// suffix stripped) under the given path segments.
func (t *legacyTree) list(path ...string) []string {
	entries, err := os.ReadDir(filepath.Join(append([]string{t.base}, path...)...))
	if err != nil {
		return nil
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	return items
}

// scan invokes fn for every JSON file directly under the given path
// segments. Unreadable files are skipped.
func (t *legacyTree) scan(path []string, fn func(key string, data json.RawMessage) error) error {
	dir := filepath.Join(append([]string{t.base}, path...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}
