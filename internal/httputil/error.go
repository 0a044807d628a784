package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lmslocal/lmslocal/internal/game"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}

// WriteDomainError translates a service failure into a response. Domain
// errors map by kind; anything else is a 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	if e, ok := game.AsError(err); ok {
		var status int
		switch e.Kind() {
		case game.KindConflict:
			status = http.StatusConflict
		case game.KindAuthorization:
			status = http.StatusForbidden
		case game.KindNotFound:
			status = http.StatusNotFound
		default:
			status = http.StatusBadRequest
		}
		slog.Warn("request rejected", "code", e.Code, "message", e.Message)
		writeError(w, status, string(e.Code), e.Message)
		return
	}
	InternalServerError(w, "unexpected error", err)
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal Server Error")
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	writeError(w, http.StatusBadRequest, "INVALID_INPUT", msg)
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", msg)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
