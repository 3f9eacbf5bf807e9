package types

// Message is either a user prompt or an assistant reply in a session.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" | "assistant"
	Time      MessageTime `json:"time"`

	// User fields.
	Agent string    `json:"agent,omitempty"`
	Model *ModelRef `json:"model,omitempty"`

	// Assistant fields.
	ParentID   string       `json:"parentID,omitempty"` // the user message this responds to
	ModelID    string       `json:"modelID,omitempty"`
	ProviderID string       `json:"providerID,omitempty"`
	System     []string     `json:"system,omitempty"`
	Mode       string       `json:"mode,omitempty"`
	Path       *MessagePath `json:"path,omitempty"`
	Cost       float64      `json:"cost"`
	Tokens     TokenUsage   `json:"tokens"`
	Summary    bool         `json:"summary,omitempty"`
	Error      *NamedError  `json:"error,omitempty"`
}

// Completed reports whether the message has been finalised.
func (m *Message) Completed() bool {
	return m.Time.Completed != nil
}

// MessageTime holds message timestamps in unix milliseconds.
// Completed is set exactly once, when the turn finishes or unwinds.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// MessagePath records where the assistant was working.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// ModelRef names a model on a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage tracks token counts for one assistant message. Counts only
// grow while the message streams.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning"`
	Cache     CacheUsage `json:"cache"`
}

// Total returns the context-occupying token count.
func (t TokenUsage) Total() int {
	return t.Input + t.Output + t.Cache.Read
}

// CacheUsage tracks prompt-cache statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}
