package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/core/internal/session"
	"github.com/opencode-ai/core/pkg/types"
)

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.repo().ListSessions(r.Context(), s.project.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title    string  `json:"title"`
		ParentID *string `json:"parentID"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Title == "" {
		body.Title = "New Session"
	}

	sess, err := s.repo().CreateSession(r.Context(), s.project.ID, s.project.Worktree, body.Title, body.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.repo().GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.sessions.Abort(sessionID)
	if err := s.repo().DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// prompt runs a full turn and replies with the final assistant
// message; streaming consumers watch /event instead.
func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body struct {
		Agent string             `json:"agent"`
		Model *types.ModelRef    `json:"model"`
		Parts []session.UserPart `json:"parts"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(body.Parts) == 0 {
		writeBadRequest(w, "parts must not be empty")
		return
	}

	msg, err := s.sessions.Prompt(r.Context(), session.PromptInput{
		SessionID: sessionID,
		Agent:     body.Agent,
		Model:     body.Model,
		Parts:     body.Parts,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) forkSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageID string `json:"messageID"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	fork, err := s.repo().ForkSession(r.Context(), chi.URLParam(r, "sessionID"), body.MessageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fork)
}

func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	aborted := s.sessions.Abort(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

func (s *Server) shareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.repo().GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if sess.Share == nil {
		share := newShare(sessionID)
		if err := s.repo().SetShare(r.Context(), sessionID, share); err != nil {
			writeError(w, err)
			return
		}
		sess, err = s.repo().UpdateSession(r.Context(), sessionID, func(u *types.Session) {
			u.Share = share
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) unshareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.repo().DeleteShare(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.repo().UpdateSession(r.Context(), sessionID, func(u *types.Session) {
		u.Share = nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.repo().GetSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.repo().ListMessages(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) listParts(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if _, err := s.repo().GetMessage(r.Context(), messageID); err != nil {
		writeError(w, err)
		return
	}
	parts, err := s.repo().ListParts(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if parts == nil {
		parts = []types.Part{}
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) getTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.repo().GetTodos(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (s *Server) getDiffs(w http.ResponseWriter, r *http.Request) {
	diffs, err := s.repo().GetDiffs(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

func (s *Server) getChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.repo().ChildSessions(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if children == nil {
		children = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Response string `json:"response"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	switch body.Response {
	case types.ReplyOnce, types.ReplyAlways, types.ReplyReject:
	default:
		writeBadRequest(w, "response must be once, always or reject")
		return
	}

	if err := s.sessions.Gate().Reply(chi.URLParam(r, "permissionID"), body.Response); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
