// Package handlers exposes the webhook intake endpoints and the host
// console's admin API over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/guestpilot/internal/rental"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps domain errors to an HTTP status and client message.
func statusForError(err error) (int, string) {
	var ve *rental.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Message
	}
	if errors.Is(err, rental.ErrMissingDates) {
		return http.StatusBadRequest, rental.ErrMissingDates.Error()
	}
	switch {
	case errors.Is(err, rental.ErrPropertyNotFound):
		return http.StatusNotFound, "Property not found"
	case errors.Is(err, rental.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, rental.ErrNotFound):
		return http.StatusNotFound, "Not found"
	}
	var se *rental.StoreError
	if errors.As(err, &se) {
		if se.Unavailable {
			return http.StatusServiceUnavailable, "Record store unavailable"
		}
		return http.StatusBadGateway, "Record store rejected the request"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "Record store unavailable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return rental.NewValidationError("body", "Invalid JSON body")
	}
	return nil
}
