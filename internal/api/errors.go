package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/obelisk-core/obelisk/internal/failure"
)

// AppError is an error with a fixed HTTP status, used for transport-level
// problems that never reach a service (malformed bodies, missing tokens).
type AppError struct {
	Code    int          `json:"-"`
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized = &AppError{Code: http.StatusUnauthorized, Kind: failure.KindUnauthorized, Message: "unauthorized"}
	ErrInvalidToken = &AppError{Code: http.StatusUnauthorized, Kind: failure.KindUnauthorized, Message: "invalid or expired token"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: failure.KindValidation, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: failure.KindValidation, Message: msg}
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindUnauthorized:
		return http.StatusUnauthorized
	case failure.KindForbidden:
		return http.StatusForbidden
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindConflict, failure.KindCycle:
		return http.StatusConflict
	case failure.KindInference:
		return http.StatusBadGateway
	case failure.KindTimeout:
		return http.StatusGatewayTimeout
	case failure.KindDegradedInput:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err as a JSON error envelope. Server-side failures are
// logged and their details withheld from the client.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorKind(w, appErr.Code, appErr.Kind, appErr.Message)
		return
	}

	kind := failure.KindOf(err)
	status := StatusFor(kind)
	msg := failure.MessageOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "kind", kind)
		if kind == failure.KindInternal || kind == failure.KindPersistence {
			msg = http.StatusText(status)
		}
	}
	JSONErrorKind(w, status, kind, msg)
}
