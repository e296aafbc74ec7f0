package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"pbx-admin/internal/models"
	"pbx-admin/internal/store"
	"pbx-admin/internal/tenant"
)

const maxBodyBytes = 1 << 20

// envelope wraps every JSON response: {"data": ..., "error": ...}.
type envelope struct {
	Data     any                 `json:"data"`
	Error    string              `json:"error,omitempty"`
	Fields   []models.FieldError `json:"fields,omitempty"`
	Blocking []string            `json:"blocking,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, envelope{Error: msg})
}

// writeServiceError maps controller and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	var rerr *tenant.ReferentialConflictError

	switch {
	case errors.As(err, &verr):
		writeEnvelope(w, http.StatusBadRequest, envelope{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &rerr):
		writeEnvelope(w, http.StatusConflict, envelope{Error: rerr.Error(), Blocking: rerr.Kinds})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflicts with an existing record")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
