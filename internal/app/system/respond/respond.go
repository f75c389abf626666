// Package respond writes JSON bodies and maps service errors to HTTP status
// codes for the API handlers.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/domain/apperr"
	"go.uber.org/zap"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes payload with 200.
func OK(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Created writes payload with 201.
func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, payload)
}

// Fail writes a client error with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// Error maps err to a status code and writes it. Errors without an apperr
// kind are logged and answered with a generic 500 body.
func Error(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status, code := Status(err)

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("op", op), zap.String("code", code), zap.Error(err))
	}
	if status == http.StatusInternalServerError && apperr.KindOf(err) == apperr.KindUnknown {
		Fail(w, status, code, "internal error")
		return
	}

	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch {
		case ae.Msg != "":
			msg = ae.Msg
		case ae.Err != nil:
			msg = ae.Err.Error()
		}
	}
	Fail(w, status, code, msg)
}

// Status returns the HTTP status and error code for err.
func Status(err error) (int, string) {
	if errors.Is(err, flatlock.ErrNotAcquired) {
		return http.StatusServiceUnavailable, "busy"
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, "validation"
	case apperr.KindNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.KindAuthorization:
		return http.StatusForbidden, "forbidden"
	case apperr.KindCapacity:
		return http.StatusConflict, "capacity"
	case apperr.KindDuplicate:
		return http.StatusConflict, "duplicate"
	case apperr.KindState:
		return http.StatusConflict, "state"
	case apperr.KindInvariant:
		return http.StatusInternalServerError, "invariant_violation"
	}
	return http.StatusInternalServerError, "internal"
}
