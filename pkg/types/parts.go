package types

import (
	"encoding/json"
	"fmt"
)

// Part is the atomic content unit inside a message, discriminated by
// its "type" field. Part IDs are sortable and strictly increasing
// within a message.
type Part interface {
	PartType() string
	PartID() string
	PartMessageID() string
	PartSessionID() string
}

// PartBase carries the fields common to every part kind.
type PartBase struct {
	ID        string `json:"id"`
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
	Type      string `json:"type"`
}

func (p PartBase) PartID() string        { return p.ID }
func (p PartBase) PartMessageID() string { return p.MessageID }
func (p PartBase) PartSessionID() string { return p.SessionID }

// PartTime brackets a part's execution in unix milliseconds.
type PartTime struct {
	Start int64  `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart is streamed assistant text or user prompt text. Synthetic
// parts are fed to the model but hidden from UI chrome.
type TextPart struct {
	PartBase
	Text      string    `json:"text"`
	Synthetic bool      `json:"synthetic,omitempty"`
	Time      *PartTime `json:"time,omitempty"`
}

func (p *TextPart) PartType() string { return "text" }

// ReasoningPart is extended-thinking text with its time bracket.
type ReasoningPart struct {
	PartBase
	Text string   `json:"text"`
	Time PartTime `json:"time"`
}

func (p *ReasoningPart) PartType() string { return "reasoning" }

// Tool part states.
const (
	ToolStatePending   = "pending"
	ToolStateCompleted = "completed"
	ToolStateError     = "error"
)

// ToolState is the state machine payload of a tool part:
// pending -> (completed | error). Once Time.Compacted is set on a
// completed call, the output is elided from LLM replay while UI
// retrieval still returns it.
type ToolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Raw    string         `json:"raw,omitempty"`

	Output      string         `json:"output,omitempty"`
	Title       string         `json:"title,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []FilePart     `json:"attachments,omitempty"`
	Error       string         `json:"error,omitempty"`

	Time ToolStateTime `json:"time"`
}

// ToolStateTime brackets the call and records elision.
type ToolStateTime struct {
	Start     int64  `json:"start,omitempty"`
	End       *int64 `json:"end,omitempty"`
	Compacted *int64 `json:"compacted,omitempty"`
}

// Terminal reports whether the state machine has finished.
func (s *ToolState) Terminal() bool {
	return s.Status == ToolStateCompleted || s.Status == ToolStateError
}

// ToolPart is one tool invocation inside an assistant message.
type ToolPart struct {
	PartBase
	CallID string    `json:"callID"`
	Tool   string    `json:"tool"`
	State  ToolState `json:"state"`
}

func (p *ToolPart) PartType() string { return "tool" }

// FilePart is a file attachment on a user message or tool result.
type FilePart struct {
	PartBase
	Mime     string `json:"mime"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source,omitempty"`
}

func (p *FilePart) PartType() string { return "file" }

// StepStartPart marks a model step boundary.
type StepStartPart struct {
	PartBase
}

func (p *StepStartPart) PartType() string { return "step-start" }

// StepFinishPart closes a model step with its usage.
type StepFinishPart struct {
	PartBase
	Cost   float64    `json:"cost"`
	Tokens TokenUsage `json:"tokens"`
}

func (p *StepFinishPart) PartType() string { return "step-finish" }

// PatchPart records file patch metadata produced during a turn.
type PatchPart struct {
	PartBase
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

func (p *PatchPart) PartType() string { return "patch" }

// UnmarshalPart decodes a JSON part by its type discriminator.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	var p Part
	switch probe.Type {
	case "text":
		p = &TextPart{}
	case "reasoning":
		p = &ReasoningPart{}
	case "tool":
		p = &ToolPart{}
	case "file":
		p = &FilePart{}
	case "step-start":
		p = &StepStartPart{}
	case "step-finish":
		p = &StepFinishPart{}
	case "patch":
		p = &PatchPart{}
	default:
		return nil, fmt.Errorf("unknown part type %q", probe.Type)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalPart encodes a part with its type discriminator set.
func MarshalPart(p Part) ([]byte, error) {
	switch v := p.(type) {
	case *TextPart:
		v.PartBase.Type = "text"
	case *ReasoningPart:
		v.PartBase.Type = "reasoning"
	case *ToolPart:
		v.PartBase.Type = "tool"
	case *FilePart:
		v.PartBase.Type = "file"
	case *StepStartPart:
		v.PartBase.Type = "step-start"
	case *StepFinishPart:
		v.PartBase.Type = "step-finish"
	case *PatchPart:
		v.PartBase.Type = "patch"
	}
	return json.Marshal(p)
}
