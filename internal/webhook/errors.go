package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the shared secret is missing or wrong
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for malformed bodies and invalid requests
	ErrValidation = errors.New("validation failed")
)

type response struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error to its HTTP status and the message safe to return
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeJSON(w, status, response{Success: false, Error: msg})
}
