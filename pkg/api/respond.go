package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chorusnet/chorus/pkg/blob"
	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/lifecycle"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("api").Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps domain errors to HTTP statuses. Validation errors carry
// their message to the client; everything else gets a generic body.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrValidation), errors.Is(err, lifecycle.ErrInvalidSpec):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, lifecycle.ErrUnknownTask),
		errors.Is(err, blob.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		log.WithComponent("api").Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
