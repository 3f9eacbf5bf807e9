// Package project resolves worktree directories to projects. A
// project is keyed by the root commit of its repository, so it stays
// stable when the worktree moves; directories without version control
// share the "global" project.
package project

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/pkg/types"
)

// Service resolves and persists projects.
type Service struct {
	repo *repo.Repository
}

// NewService creates a project service.
func NewService(r *repo.Repository) *Service {
	return &Service{repo: r}
}

// Resolve returns the project for a directory, creating or updating
// it as needed. Every resolution refreshes the stored worktree.
func (s *Service) Resolve(ctx context.Context, directory string) (*types.Project, error) {
	directory = filepath.Clean(directory)

	projectID := types.GlobalProjectID
	vcs := ""
	if rootCommit := gitRootCommit(ctx, directory); rootCommit != "" {
		projectID = rootCommit
		vcs = "git"
	}

	existing, err := s.repo.GetProject(ctx, projectID)
	if err == nil {
		if existing.Worktree != directory {
			existing.Worktree = directory
			if err := s.repo.UpsertProject(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	p := &types.Project{
		ID:       projectID,
		Worktree: directory,
		VCS:      vcs,
		Name:     filepath.Base(directory),
	}
	if err := s.repo.UpsertProject(ctx, p); err != nil {
		return nil, err
	}
	logging.Info().Str("projectID", projectID).Str("worktree", directory).Msg("project created")
	return p, nil
}

// MarkInitialized stamps the project's initialised time once.
func (s *Service) MarkInitialized(ctx context.Context, projectID string) error {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Time.Initialized != nil {
		return nil
	}
	now := p.Time.Updated
	p.Time.Initialized = &now
	return s.repo.UpsertProject(ctx, p)
}

// gitRootCommit returns the repository's first root commit, or ""
// when the directory is not inside a git worktree.
func gitRootCommit(ctx context.Context, directory string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-list", "--max-parents=0", "--max-count=1", "HEAD")
	cmd.Dir = directory
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
