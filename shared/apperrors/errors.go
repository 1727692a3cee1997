package apperrors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// AppError carries an HTTP status alongside a human-readable message.
// Every error leaving a handler is normalized into one of these.
type AppError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// New creates an AppError with an explicit status
func New(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

// Validation marks a client-caused error (bad page, malformed input, ...)
func Validation(message string) *AppError {
	return New(http.StatusBadRequest, message)
}

// NotFound marks a missing or not-owned resource
func NotFound(message string) *AppError {
	return New(http.StatusNotFound, message)
}

// Unauthorized marks a missing or invalid credential
func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, message)
}

// Forbidden marks a role or activity check failure. The message stays
// generic so the response does not leak which check failed.
func Forbidden() *AppError {
	return New(http.StatusForbidden, "Insufficient permissions")
}

// Upstream marks a payment/email/wallet provider failure
func Upstream(message string) *AppError {
	return New(http.StatusBadGateway, message)
}

// Constraint marks a datastore uniqueness/shape violation. The underlying
// distinguishing codes are collapsed into one message.
func Constraint() *AppError {
	return New(http.StatusBadRequest, "There is a unique constraint violation")
}

// From normalizes any error into an AppError. Unrecognized errors default
// to status 400 so every response carries a status and a string message.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Constraint()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Constraint()
	}
	if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return Constraint()
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("Record not found")
	}
	return New(http.StatusBadRequest, err.Error())
}
