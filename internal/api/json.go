package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/thinkblock/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse is the body of every error reply. Detail is meant for users,
// Error for developers.
type errResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func errorBody(detail, msg string) errResponse {
	return errResponse{Detail: detail, Error: msg}
}

// writeError maps err onto a status code. Unexpected errors are logged and
// their text only reaches the client in development mode.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error(), http.StatusText(http.StatusNotFound)))
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody(verr.Msg, http.StatusText(http.StatusBadRequest)))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), http.StatusText(http.StatusBadRequest)))
	case errors.Is(err, apperr.ErrAIService):
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("AI service error", h.detail(err, http.StatusBadGateway)))
	default:
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error", h.detail(err, http.StatusInternalServerError)))
	}
}

func (h *Handler) detail(err error, status int) string {
	if h.dev {
		return err.Error()
	}
	return http.StatusText(status)
}

// decode reads a JSON body into dst and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Invalid("invalid JSON body: %v", err)
	}
	if err := dst.Validate(); err != nil {
		return apperr.Invalid("%s", err.Error())
	}
	return nil
}
