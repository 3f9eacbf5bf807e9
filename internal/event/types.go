package event

import "github.com/opencode-ai/core/pkg/types"

// Type names an event kind on the bus.
type Type string

// Event kinds published by the core.
const (
	SessionUpdated   Type = "session.updated"
	SessionDeleted   Type = "session.deleted"
	SessionError     Type = "session.error"
	SessionIdle      Type = "session.idle"
	SessionCompacted Type = "session.compacted"

	MessageUpdated     Type = "message.updated"
	MessagePartUpdated Type = "message.part.updated"
	MessageRemoved     Type = "message.removed"

	TodoUpdated Type = "todo.updated"

	PermissionUpdated Type = "permission.updated"
	PermissionReplied Type = "permission.replied"

	FileEdited         Type = "file.edited"
	FileWatcherUpdated Type = "file.watcher.updated"

	ProjectUpdated Type = "project.updated"

	// Dropped is delivered to a slow subscriber in place of the
	// events that were discarded from its buffer.
	Dropped Type = "event.dropped"
)

// Event is one published bus entry.
type Event struct {
	Type       Type `json:"type"`
	Properties any  `json:"properties"`
}

// SessionUpdatedData accompanies session.updated.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData accompanies session.deleted.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionErrorData accompanies session.error.
type SessionErrorData struct {
	SessionID string            `json:"sessionID"`
	Error     *types.NamedError `json:"error"`
}

// SessionIdleData accompanies session.idle.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// SessionCompactedData accompanies session.compacted.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessageUpdatedData accompanies message.updated.
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageRemovedData accompanies message.removed.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessagePartUpdatedData accompanies message.part.updated. Delta
// carries the streamed suffix when the update is an append.
type MessagePartUpdatedData struct {
	Part  types.Part `json:"part"`
	Delta string     `json:"delta,omitempty"`
}

// TodoUpdatedData accompanies todo.updated.
type TodoUpdatedData struct {
	SessionID string       `json:"sessionID"`
	Todos     []types.Todo `json:"todos"`
}

// PermissionUpdatedData accompanies permission.updated.
type PermissionUpdatedData struct {
	types.PermissionRequest
}

// PermissionRepliedData accompanies permission.replied.
type PermissionRepliedData struct {
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
	Response     string `json:"response"` // "once" | "always" | "reject"
}

// FileEditedData accompanies file.edited.
type FileEditedData struct {
	File string `json:"file"`
}

// FileWatcherUpdatedData accompanies file.watcher.updated.
type FileWatcherUpdatedData struct {
	File  string `json:"file"`
	Event string `json:"event"` // "add" | "change" | "unlink"
}

// ProjectUpdatedData accompanies project.updated.
type ProjectUpdatedData struct {
	Info *types.Project `json:"info"`
}

// DroppedData accompanies event.dropped on the slow subscriber only.
type DroppedData struct {
	Count int `json:"count"`
}
