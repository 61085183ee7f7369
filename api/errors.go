package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/media"
	"github.com/poiesic/voicevault/search"
	"github.com/poiesic/voicevault/storage"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps archive errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, core.ErrInvalidPost),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrInvalidVisibility),
		errors.Is(err, core.ErrInvalidFileRole),
		errors.Is(err, core.ErrInvalidUser),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrUserRequired),
		errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrStatusConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeArchiveError writes err with its mapped status. Internal errors are
// logged and their text is not sent to the client.
func (h *Handler) writeArchiveError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		message = "internal server error"
	}
	writeError(w, status, code, message)
}
