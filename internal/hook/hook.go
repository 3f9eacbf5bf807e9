// Package hook provides the engine's named extension points. All
// hooks route through one dispatcher that logs failures instead of
// rethrowing them; the only first-class outcome is a validate hook
// blocking a tool call.
package hook

import (
	"context"
	"sync"

	"github.com/opencode-ai/core/internal/logging"
)

// ToolValidateInput is passed to tool.execute.validate hooks.
type ToolValidateInput struct {
	Tool      string
	SessionID string
	CallID    string
	Args      map[string]any
}

// ToolValidateOutput lets a validate hook mutate args or block the
// call outright.
type ToolValidateOutput struct {
	Args    map[string]any
	Blocked bool
	Reason  string
}

// ToolValidateFunc runs before a tool executes.
type ToolValidateFunc func(ctx context.Context, in ToolValidateInput) (*ToolValidateOutput, error)

// ToolResultInput is passed to tool.result.transform hooks.
type ToolResultInput struct {
	Tool      string
	SessionID string
	CallID    string
}

// ToolResult is the mutable post-tool payload.
type ToolResult struct {
	Title    string
	Output   string
	Metadata map[string]any
}

// ToolResultFunc runs after a tool executes and may mutate the result.
type ToolResultFunc func(ctx context.Context, in ToolResultInput, result *ToolResult) error

// SessionStopInput is passed to session.stop hooks.
type SessionStopInput struct {
	SessionID string
	Reason    string // "stop" | "compact" | "error"
}

// SessionStopFunc runs fire-and-forget when a turn ends.
type SessionStopFunc func(ctx context.Context, in SessionStopInput) error

// NotificationInput is passed to notification.send hooks.
type NotificationInput struct {
	SessionID string
	Type      string
}

// Notification is the outbound notification payload.
type Notification struct {
	Title string
	Body  string
	Data  map[string]any
}

// NotificationFunc builds and delivers a notification; errors are
// swallowed.
type NotificationFunc func(ctx context.Context, in NotificationInput) (*Notification, error)

// Dispatcher holds the registered hooks.
type Dispatcher struct {
	mu            sync.RWMutex
	toolValidate  []ToolValidateFunc
	toolResult    []ToolResultFunc
	sessionStop   []SessionStopFunc
	notifications []NotificationFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnToolValidate registers a tool.execute.validate hook.
func (d *Dispatcher) OnToolValidate(fn ToolValidateFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolValidate = append(d.toolValidate, fn)
}

// OnToolResult registers a tool.result.transform hook.
func (d *Dispatcher) OnToolResult(fn ToolResultFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolResult = append(d.toolResult, fn)
}

// OnSessionStop registers a session.stop hook.
func (d *Dispatcher) OnSessionStop(fn SessionStopFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionStop = append(d.sessionStop, fn)
}

// OnNotification registers a notification.send hook.
func (d *Dispatcher) OnNotification(fn NotificationFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, fn)
}

// ValidateTool runs the validate hooks in order. Hooks may mutate the
// args; the first block wins and is returned to the engine, which
// raises a terminal tool error carrying the reason. Hook errors other
// than blocks are logged and skipped.
func (d *Dispatcher) ValidateTool(ctx context.Context, in ToolValidateInput) (map[string]any, bool, string) {
	d.mu.RLock()
	hooks := d.toolValidate
	d.mu.RUnlock()

	args := in.Args
	for _, fn := range hooks {
		in.Args = args
		out, err := fn(ctx, in)
		if err != nil {
			logging.Warn().Str("tool", in.Tool).Err(err).Msg("tool validate hook failed")
			continue
		}
		if out == nil {
			continue
		}
		if out.Blocked {
			return args, true, out.Reason
		}
		if out.Args != nil {
			args = out.Args
		}
	}
	return args, false, ""
}

// TransformToolResult runs the transform hooks over a tool result in
// place. Failures are logged and skipped.
func (d *Dispatcher) TransformToolResult(ctx context.Context, in ToolResultInput, result *ToolResult) {
	d.mu.RLock()
	hooks := d.toolResult
	d.mu.RUnlock()

	for _, fn := range hooks {
		if err := fn(ctx, in, result); err != nil {
			logging.Warn().Str("tool", in.Tool).Err(err).Msg("tool result hook failed")
		}
	}
}

// SessionStop fires session.stop hooks without waiting on their
// results.
func (d *Dispatcher) SessionStop(ctx context.Context, in SessionStopInput) {
	d.mu.RLock()
	hooks := d.sessionStop
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn := fn
		go func() {
			if err := fn(ctx, in); err != nil {
				logging.Warn().Str("sessionID", in.SessionID).Err(err).Msg("session stop hook failed")
			}
		}()
	}
}

// Notify fires notification.send hooks asynchronously, swallowing
// errors.
func (d *Dispatcher) Notify(ctx context.Context, in NotificationInput) {
	d.mu.RLock()
	hooks := d.notifications
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn := fn
		go func() {
			if _, err := fn(ctx, in); err != nil {
				logging.Debug().Str("sessionID", in.SessionID).Err(err).Msg("notification hook failed")
			}
		}()
	}
}
