package models

import (
	"time"
)

// ReservationStatus represents the lifecycle state of a seat reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// SeatReservation is a student's claim on a (bus, seat) pair.
// Records are never deleted; cancellation only flips the status.
type SeatReservation struct {
	ID          string            `json:"id" db:"id"`
	BusID       string            `json:"busId" db:"bus_id"`
	SeatNumber  string            `json:"seatNumber" db:"seat_number"`
	StudentID   string            `json:"studentId" db:"student_id"`
	Status      ReservationStatus `json:"status" db:"status"`
	QRData      string            `json:"qrData,omitempty" db:"qr_data"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	CancelledAt *time.Time        `json:"cancelledAt,omitempty" db:"cancelled_at"`
}

// IsActive checks if the reservation still holds its seat
func (r *SeatReservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// SeatKey returns the (bus, seat) key the reservation occupies
func (r *SeatReservation) SeatKey() string {
	return SeatKey(r.BusID, r.SeatNumber)
}

// SeatKey builds the ledger key for a (bus, seat) pair
func SeatKey(busID, seatNumber string) string {
	return busID + "/" + seatNumber
}

// ReserveSeatRequest is the body of the synchronous reservation endpoint
type ReserveSeatRequest struct {
	BusID      string `json:"busId"`
	SeatNumber string `json:"seatNumber"`
	StudentID  string `json:"studentId" binding:"required"`
	Timestamp  string `json:"timestamp"`
	QRData     string `json:"qrData" binding:"required"`
}

// ReserveSeatResult is returned by the ledger on a successful reserve
type ReserveSeatResult struct {
	Reservation *SeatReservation `json:"reservation"`
	Created     bool             `json:"created"` // false when an identical active reservation already existed
}
