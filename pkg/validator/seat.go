package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SeatLabelType is the only QR payload type that identifies a seat
const SeatLabelType = "bus_seat"

var (
	// ErrMalformedQR indicates the QR content is not a JSON object
	ErrMalformedQR = errors.New("qr data is not valid JSON")

	// ErrWrongQRType indicates the QR payload is not a seat label
	ErrWrongQRType = errors.New("qr code is not a bus seat label")

	// ErrIncompleteQR indicates a seat label without bus or seat
	ErrIncompleteQR = errors.New("seat label must name a bus and a seat")

	// ErrInvalidSeatNumber indicates a seat number that is not a positive integer
	ErrInvalidSeatNumber = errors.New("seat number must be a positive integer")

	// ErrSeatOutOfRange indicates a seat number beyond the bus capacity
	ErrSeatOutOfRange = errors.New("seat number exceeds bus capacity")
)

// SeatLabel is the decoded content of a printed seat QR code
type SeatLabel struct {
	Type        string `json:"type"`
	BusID       string `json:"busId"`
	SeatNumber  string `json:"seatNumber"`
	GeneratedAt string `json:"generatedAt,omitempty"`
}

// ParseSeatLabel decodes and checks a seat QR payload
func ParseSeatLabel(raw string) (SeatLabel, error) {
	var label SeatLabel
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &label); err != nil {
		return SeatLabel{}, ErrMalformedQR
	}

	if label.Type != SeatLabelType {
		return SeatLabel{}, ErrWrongQRType
	}

	label.BusID = strings.TrimSpace(label.BusID)
	label.SeatNumber = strings.TrimSpace(label.SeatNumber)
	if label.BusID == "" || label.SeatNumber == "" {
		return SeatLabel{}, ErrIncompleteQR
	}

	return label, nil
}

// CanonicalSeat normalises a seat number to at least two digits and checks
// it lies within 1..capacity, so "7" and "07" name the same seat
func CanonicalSeat(seat string, capacity int) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(seat))
	if err != nil || n <= 0 {
		return "", ErrInvalidSeatNumber
	}
	if n > capacity {
		return "", fmt.Errorf("%w: seat %d of %d", ErrSeatOutOfRange, n, capacity)
	}
	return fmt.Sprintf("%02d", n), nil
}
