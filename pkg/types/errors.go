package types

import "fmt"

// Canonical error kinds carried in message payloads and API responses.
const (
	ErrAborted          = "Aborted"
	ErrAuth             = "AuthError"
	ErrOutputLength     = "OutputLengthError"
	ErrOverflow         = "OverflowError"
	ErrBusy             = "Busy"
	ErrToolBlocked      = "ToolBlocked"
	ErrPermissionDenied = "PermissionDenied"
	ErrNotFound         = "NotFound"
	ErrUnknown          = "Unknown"
)

// NamedError is a sum-typed error whose Name is one of the canonical
// kinds above. It is persisted on assistant messages and serialised in
// API error responses.
type NamedError struct {
	Name string         `json:"name"`
	Data NamedErrorData `json:"data"`
}

// NamedErrorData carries the error detail.
type NamedErrorData struct {
	Message    string `json:"message"`
	ProviderID string `json:"providerID,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (e *NamedError) Error() string {
	if e.Data.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Data.Message)
}

// Is matches NamedErrors by kind, so errors.Is works against
// sentinel-shaped targets.
func (e *NamedError) Is(target error) bool {
	t, ok := target.(*NamedError)
	return ok && t.Name == e.Name
}

// NewNamedError creates an error of the given kind.
func NewNamedError(name, message string) *NamedError {
	return &NamedError{Name: name, Data: NamedErrorData{Message: message}}
}

// NewAbortedError marks a user-cancelled turn.
func NewAbortedError() *NamedError {
	return NewNamedError(ErrAborted, "operation aborted")
}

// NewAuthError marks rejected provider credentials.
func NewAuthError(providerID, message string) *NamedError {
	return &NamedError{
		Name: ErrAuth,
		Data: NamedErrorData{Message: message, ProviderID: providerID},
	}
}

// NewBusyError marks a session with a live turn.
func NewBusyError(sessionID string) *NamedError {
	return NewNamedError(ErrBusy, fmt.Sprintf("session %s is busy", sessionID))
}

// NewNotFoundError marks an unknown entity id.
func NewNotFoundError(what, id string) *NamedError {
	return NewNamedError(ErrNotFound, fmt.Sprintf("%s not found: %s", what, id))
}

// NewToolBlockedError marks a tool call stopped by a validate hook.
func NewToolBlockedError(reason string) *NamedError {
	return &NamedError{
		Name: ErrToolBlocked,
		Data: NamedErrorData{Message: "tool call blocked", Reason: reason},
	}
}

// NewPermissionDeniedError marks a denied or rejected tool call.
func NewPermissionDeniedError(message string) *NamedError {
	return NewNamedError(ErrPermissionDenied, message)
}

// AsNamedError coerces any error into a NamedError, defaulting the
// kind to Unknown.
func AsNamedError(err error) *NamedError {
	if err == nil {
		return nil
	}
	if ne, ok := err.(*NamedError); ok {
		return ne
	}
	return NewNamedError(ErrUnknown, err.Error())
}
