package errors

import (
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AppError represents an application error on the REST surface
type AppError struct {
	Code    int    // HTTP status code
	Message string // Error message
	Err     error  // Original error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMessage returns a copy of the AppError with a custom message
func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: msg,
		Err:     e.Err,
	}
}

// NewAppError creates a new application error
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error types
var (
	ErrInvalidInput        = func(err error) *AppError { return NewAppError(http.StatusBadRequest, "Invalid input", err) }
	ErrUnauthorized        = func(err error) *AppError { return NewAppError(http.StatusUnauthorized, "Unauthorized", err) }
	ErrNotFound            = func(err error) *AppError { return NewAppError(http.StatusNotFound, "Resource not found", err) }
	ErrInternalServer      = func(err error) *AppError { return NewAppError(http.StatusInternalServerError, "Internal server error", err) }
	ErrUnprocessableEntity = func(err error) *AppError { return NewAppError(http.StatusUnprocessableEntity, "Unprocessable entity", err) }
)

// HandleError handles an error and responds with the appropriate status code and message
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	if errors.As(err, &appErr) {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	// Default to internal server error
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// UserError is a protocol violation by the connected client: malformed
// filters, duplicate or unknown mux_ids, unrecognized message types. It
// terminates the connection and is never retried.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func NewUserError(message string) *UserError {
	return &UserError{Message: message}
}

func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// RebootError tears a session down because its authorization snapshot went
// stale; the client is expected to reconnect and resubscribe from scratch.
type RebootError struct {
	Reason string
}

func (e *RebootError) Error() string {
	return "booting: " + e.Reason
}

func NewRebootError(reason string) *RebootError {
	return &RebootError{Reason: reason}
}

func IsRebootError(err error) bool {
	var re *RebootError
	return errors.As(err, &re)
}

// IsTransportError reports whether err is an abrupt-disconnect style error
// that should be logged quietly rather than surfaced as a failure.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	if websocket.IsUnexpectedCloseError(err) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
