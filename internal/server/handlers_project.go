package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/core/pkg/types"
)

func (s *Server) getPath(w http.ResponseWriter, r *http.Request) {
	cwd, _ := os.Getwd()
	writeJSON(w, http.StatusOK, map[string]string{
		"cwd":       cwd,
		"directory": s.config.Directory,
		"worktree":  s.project.Worktree,
		"state":     filepath.Join(s.config.DataDir, "state"),
		"config":    s.config.Directory,
		"data":      s.config.DataDir,
		"root":      s.project.Worktree,
	})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.repo().ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []*types.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getCurrentProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo().GetProject(r.Context(), s.project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string      `json:"name"`
		Icon *types.Icon `json:"icon"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	p, err := s.repo().GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Name != "" {
		p.Name = body.Name
	}
	if body.Icon != nil {
		p.Icon = body.Icon
	}
	if err := s.repo().UpsertProject(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// disposeInstance drains all sessions and releases resources.
func (s *Server) disposeInstance(w http.ResponseWriter, r *http.Request) {
	if s.Dispose != nil {
		if err := s.Dispose(context.Background()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disposed": true})
}

// newShare mints an opaque share handle. Publishing to a remote
// service is out of scope; the handle shape is the contract.
func newShare(sessionID string) *types.ShareInfo {
	secret := make([]byte, 16)
	rand.Read(secret)
	id := sessionID[len(sessionID)-8:]
	return &types.ShareInfo{
		ID:     id,
		Secret: hex.EncodeToString(secret),
		URL:    fmt.Sprintf("https://opencode.ai/s/%s", id),
	}
}
