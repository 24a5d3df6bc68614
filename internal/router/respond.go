package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calndr/calndr/internal/custody"
	"github.com/calndr/calndr/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError translates domain error kinds to HTTP statuses.
func (r *Router) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
	case custody.IsValidation(err),
		errors.Is(err, custody.ErrUnsupportedPattern),
		errors.Is(err, custody.ErrInsufficientFamilyMembers):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		r.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (r *Router) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	body := http.MaxBytesReader(w, req.Body, r.maxBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
