package provider

import (
	"encoding/json"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/core/pkg/types"
)

// StreamEvent is one typed event decoded from a provider stream. The
// turn loop is the consumer; the decoder below is the producer.
type StreamEvent interface {
	streamEvent()
}

// TextDelta carries streamed assistant text.
type TextDelta struct {
	Text string
}

func (TextDelta) streamEvent() {}

// TextEnd closes the current text block.
type TextEnd struct{}

func (TextEnd) streamEvent() {}

// ReasoningDelta carries streamed reasoning text.
type ReasoningDelta struct {
	Text string
}

func (ReasoningDelta) streamEvent() {}

// ReasoningEnd closes the current reasoning block.
type ReasoningEnd struct{}

func (ReasoningEnd) streamEvent() {}

// ToolCall is one complete tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolCall) streamEvent() {}

// FinishStep closes one model step with its usage.
type FinishStep struct {
	Reason string // "stop" | "tool_calls" | "length" | provider-specific
	Usage  types.TokenUsage
}

func (FinishStep) streamEvent() {}

// StreamError terminates the stream abnormally.
type StreamError struct {
	Err error
}

func (StreamError) streamEvent() {}

// Decoder turns raw message chunks into typed stream events. Chunks
// carry deltas; tool-call arguments accumulate across chunks keyed by
// call id and are emitted once the stream finishes or a step closes.
type Decoder struct {
	stream CompletionStream

	textOpen      bool
	reasoningOpen bool

	toolOrder []string
	toolNames map[string]string
	toolArgs  map[string]string

	queue []StreamEvent
	done  bool
}

// NewDecoder creates a decoder over a stream.
func NewDecoder(stream CompletionStream) *Decoder {
	return &Decoder{
		stream:    stream,
		toolNames: make(map[string]string),
		toolArgs:  make(map[string]string),
	}
}

// Next returns the next typed event, or io.EOF when the stream is
// drained.
func (d *Decoder) Next() (StreamEvent, error) {
	for {
		if len(d.queue) > 0 {
			e := d.queue[0]
			d.queue = d.queue[1:]
			return e, nil
		}
		if d.done {
			return nil, io.EOF
		}

		msg, err := d.stream.Recv()
		if err == io.EOF {
			d.done = true
			d.closeBlocks()
			d.flushToolCalls()
			continue
		}
		if err != nil {
			d.done = true
			return StreamError{Err: err}, nil
		}
		d.decode(msg)
	}
}

func (d *Decoder) decode(msg *schema.Message) {
	if msg.ReasoningContent != "" {
		d.reasoningOpen = true
		d.queue = append(d.queue, ReasoningDelta{Text: msg.ReasoningContent})
	} else if d.reasoningOpen && (msg.Content != "" || len(msg.ToolCalls) > 0) {
		d.reasoningOpen = false
		d.queue = append(d.queue, ReasoningEnd{})
	}

	if msg.Content != "" {
		d.textOpen = true
		d.queue = append(d.queue, TextDelta{Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		callID := tc.ID
		if callID == "" && len(d.toolOrder) > 0 {
			// Argument-only chunks continue the latest call.
			callID = d.toolOrder[len(d.toolOrder)-1]
		}
		if callID == "" {
			continue
		}
		if _, ok := d.toolNames[callID]; !ok {
			d.toolOrder = append(d.toolOrder, callID)
		}
		if tc.Function.Name != "" {
			d.toolNames[callID] = tc.Function.Name
		}
		d.toolArgs[callID] += tc.Function.Arguments
	}

	if msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason != "" {
		d.closeBlocks()
		d.flushToolCalls()

		finish := FinishStep{Reason: msg.ResponseMeta.FinishReason}
		if usage := msg.ResponseMeta.Usage; usage != nil {
			finish.Usage = types.TokenUsage{
				Input:  usage.PromptTokens,
				Output: usage.CompletionTokens,
			}
		}
		d.queue = append(d.queue, finish)
	}
}

func (d *Decoder) closeBlocks() {
	if d.textOpen {
		d.textOpen = false
		d.queue = append(d.queue, TextEnd{})
	}
	if d.reasoningOpen {
		d.reasoningOpen = false
		d.queue = append(d.queue, ReasoningEnd{})
	}
}

func (d *Decoder) flushToolCalls() {
	for _, callID := range d.toolOrder {
		args := d.toolArgs[callID]
		if args == "" {
			args = "{}"
		}
		d.queue = append(d.queue, ToolCall{
			ID:    callID,
			Name:  d.toolNames[callID],
			Input: json.RawMessage(args),
		})
	}
	d.toolOrder = nil
	d.toolNames = make(map[string]string)
	d.toolArgs = make(map[string]string)
}
