package database

import (
	"errors"
	"fmt"

	"github.com/smarttransit/fleet-sync/internal/models"
)

// ErrActiveReservationConflict is returned by Save when the database already
// holds a different active reservation for the same seat or student. It is
// usually an older write for that record still queued for retry.
var ErrActiveReservationConflict = errors.New("active reservation conflict in storage")

// ReservationRepository handles database operations for seat_reservations table
type ReservationRepository struct {
	db DB
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Save inserts a reservation or, if it already exists, updates its status.
// Only status and cancelled_at ever change after creation.
func (r *ReservationRepository) Save(reservation *models.SeatReservation) error {
	query := `
		INSERT INTO seat_reservations (
			id, bus_id, seat_number, student_id, status, qr_data, created_at, cancelled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cancelled_at = EXCLUDED.cancelled_at
	`

	_, err := r.db.Exec(query,
		reservation.ID,
		reservation.BusID,
		reservation.SeatNumber,
		reservation.StudentID,
		reservation.Status,
		reservation.QRData,
		reservation.CreatedAt,
		reservation.CancelledAt,
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: reservation %s: %w", ErrActiveReservationConflict, reservation.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to save reservation %s: %w", reservation.ID, err)
	}

	return nil
}

// ListActive returns every active reservation, oldest first
func (r *ReservationRepository) ListActive() ([]*models.SeatReservation, error) {
	query := `
		SELECT id, bus_id, seat_number, student_id, status, qr_data, created_at, cancelled_at
		FROM seat_reservations
		WHERE status = 'active'
		ORDER BY created_at ASC
	`

	var reservations []*models.SeatReservation
	if err := r.db.Select(&reservations, query); err != nil {
		return nil, fmt.Errorf("failed to list active reservations: %w", err)
	}

	return reservations, nil
}
