package server

import (
	"encoding/json"
	"net/http"

	"github.com/opencode-ai/core/pkg/types"
)

// errorResponse is the wire shape of every error reply.
type errorResponse struct {
	Type  string    `json:"type"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps canonical error kinds to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	named := types.AsNamedError(err)

	status := http.StatusInternalServerError
	switch named.Name {
	case types.ErrNotFound:
		status = http.StatusNotFound
	case types.ErrBusy:
		status = http.StatusConflict
	case types.ErrOverflow, types.ErrToolBlocked, types.ErrPermissionDenied:
		status = http.StatusBadRequest
	case types.ErrAuth:
		status = http.StatusUnauthorized
	}

	writeJSON(w, status, errorResponse{
		Type: named.Name,
		Error: errorBody{
			Type:    named.Name,
			Message: named.Data.Message,
		},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Type:  types.ErrUnknown,
		Error: errorBody{Type: types.ErrUnknown, Message: message},
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
