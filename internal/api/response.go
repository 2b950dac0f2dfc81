package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/suncoastpay/orchestrator/internal/apperr"
)

// errorEnvelope is the structured error body every handler returns on
// failure (spec.md §6: "{error, code?, message?}").
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err's apperr.Kind to an HTTP status and writes the
// structured error envelope. No error ever propagates out of a handler
// past this point (spec.md §7 propagation policy).
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "kind", kind)
	}
	writeJSON(w, status, errorEnvelope{
		Error:   err.Error(),
		Code:    string(kind),
		Message: err.Error(),
	})
}
