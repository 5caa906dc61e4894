package services

import (
	"errors"
	"net/http"
)

// Domain outcomes returned by the command paths. Handlers map them to wire
// codes with ErrorCode and to HTTP statuses with HTTPStatus.
var (
	ErrUnauthorized          = errors.New("not authorized for this bus")
	ErrForbidden             = errors.New("role not permitted for this command")
	ErrSeatTaken             = errors.New("seat is already reserved by another student")
	ErrAlreadyHasReservation = errors.New("student already holds a reservation")
	ErrNotFound              = errors.New("not found")
	ErrInvalidContent        = errors.New("invalid content")
	ErrUnknownBus            = errors.New("unknown bus")
	ErrInvalidSeat           = errors.New("invalid seat number")
	ErrInvalidQR             = errors.New("invalid seat qr code")
	ErrUnknownCommand        = errors.New("unknown command")
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{ErrSeatTaken, "SEAT_TAKEN", http.StatusConflict},
	{ErrAlreadyHasReservation, "ALREADY_HAS_RESERVATION", http.StatusConflict},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidContent, "INVALID_CONTENT", http.StatusBadRequest},
	{ErrUnknownBus, "UNKNOWN_BUS", http.StatusUnprocessableEntity},
	{ErrInvalidSeat, "INVALID_SEAT", http.StatusBadRequest},
	{ErrInvalidQR, "INVALID_QR", http.StatusBadRequest},
	{ErrUnknownCommand, "UNKNOWN_COMMAND", http.StatusBadRequest},
}

// ErrorCode returns the wire code for a domain error, or INTERNAL_ERROR
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus returns the HTTP status for a domain error, or 500
func HTTPStatus(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// IsDomainError reports whether err is an expected outcome rather than a
// failure of the service itself
func IsDomainError(err error) bool {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return true
		}
	}
	return false
}
