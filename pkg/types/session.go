// Package types defines the shared data model for the session engine:
// projects, sessions, messages, parts, todos, permissions and the
// canonical error kinds carried in API payloads.
package types

// Session is an ordered conversation owned by a project.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectID"`
	// ParentID links a subagent or fork session to its parent.
	ParentID  *string `json:"parentID,omitempty"`
	Title     string  `json:"title"`
	Directory string  `json:"directory"`
	Version   string  `json:"version"`

	Time    SessionTime    `json:"time"`
	Revert  *SessionRevert `json:"revert,omitempty"`
	Share   *ShareInfo     `json:"share,omitempty"`
	Summary SessionSummary `json:"summary"`

	// Permissions overrides the agent/project ruleset for this session.
	Permissions []PermissionRule `json:"permissions,omitempty"`
}

// SessionTime holds session lifecycle timestamps in unix milliseconds.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
	Archived   *int64 `json:"archived,omitempty"`
}

// SessionRevert anchors a session to an earlier message for undo.
type SessionRevert struct {
	MessageID string  `json:"messageID"`
	PartID    *string `json:"partID,omitempty"`
	Snapshot  *string `json:"snapshot,omitempty"`
	Diff      *string `json:"diff,omitempty"`
}

// ShareInfo is an opaque handle to an external publishing service.
type ShareInfo struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// SessionSummary accumulates file-change statistics across turns.
type SessionSummary struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Files     int        `json:"files"`
	Diffs     []FileDiff `json:"diffs,omitempty"`
}

// FileDiff records accumulated changes to one file.
type FileDiff struct {
	File      string `json:"file"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Diff      string `json:"diff,omitempty"`
}

// Todo is one entry in a session's todo list.
type Todo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"` // "pending" | "in_progress" | "completed" | "cancelled"
	Priority string `json:"priority,omitempty"`
}
