package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-lms/internal/platform/apierr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Action string `json:"action,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError maps err to a status code and JSON body. Errors outside the
// apierr taxonomy are reported as computation errors without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apierr.As(err)
	if !ok {
		e = apierr.Computation("internal error", err)
	}
	status := e.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody{
		Error:  e.Kind.String(),
		Reason: e.Reason,
		Action: e.Action,
	})
}

func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Reason: reason})
}
