package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencode-ai/core/pkg/types"
)

const findFilesLimit = 100

// readFile serves file contents for the front-ends' file viewer.
func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeBadRequest(w, "path required")
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.project.Worktree, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, types.NewNotFoundError("file", path))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":    path,
		"content": string(data),
	})
}

// findFiles fuzzy-matches worktree files for the file picker.
func (s *Server) findFiles(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))

	var matches []string
	filepath.WalkDir(s.project.Worktree, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= findFilesLimit {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(s.project.Worktree, path)
		if err != nil {
			return nil
		}
		if query == "" || strings.Contains(strings.ToLower(rel), query) {
			matches = append(matches, rel)
		}
		return nil
	})

	sort.Strings(matches)
	writeJSON(w, http.StatusOK, matches)
}
