package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/database"
	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/utils"
	"github.com/smarttransit/fleet-sync/pkg/validator"
)

// EventPublisher fans an event out to a channel's subscribers
type EventPublisher interface {
	Publish(channel string, event models.Event) models.DeliveryReport
}

// ReservationStore persists reservation records
type ReservationStore interface {
	Save(reservation *models.SeatReservation) error
	ListActive() ([]*models.SeatReservation, error)
}

// ReservationLedger is the authoritative record of seat reservations.
//
// A reserve holds the student's lock and then the seat's lock for the whole
// check-then-set, so two scans of the same seat can never both succeed and a
// student can never end up with two seats. Reservations on different seats by
// different students proceed in parallel. The in-memory copy is the source of
// truth; the database is written through the SyncService and keeps cancelled
// records for audit.
type ReservationLedger struct {
	fleet     *fleet.Registry
	store     ReservationStore
	sync      *SyncService
	publisher EventPublisher
	logger    *logrus.Logger
	now       func() time.Time

	locks *utils.KeyedMutex

	mu        sync.RWMutex
	bySeat    map[string]*models.SeatReservation // active only
	byStudent map[string]*models.SeatReservation // active only
}

// NewReservationLedger creates an empty ledger
func NewReservationLedger(
	registry *fleet.Registry,
	store ReservationStore,
	syncService *SyncService,
	publisher EventPublisher,
	logger *logrus.Logger,
) *ReservationLedger {
	return &ReservationLedger{
		fleet:     registry,
		store:     store,
		sync:      syncService,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		locks:     utils.NewKeyedMutex(),
		bySeat:    make(map[string]*models.SeatReservation),
		byStudent: make(map[string]*models.SeatReservation),
	}
}

// Load rebuilds the active reservations from the database
func (l *ReservationLedger) Load() error {
	reservations, err := l.store.ListActive()
	if err != nil {
		return fmt.Errorf("failed to load reservations: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	loaded := 0
	for _, r := range reservations {
		if _, taken := l.bySeat[r.SeatKey()]; taken {
			l.logger.WithField("reservation_id", r.ID).Warn("Skipping stored reservation for an occupied seat")
			continue
		}
		if _, holds := l.byStudent[r.StudentID]; holds {
			l.logger.WithField("reservation_id", r.ID).Warn("Skipping second stored reservation for a student")
			continue
		}
		l.bySeat[r.SeatKey()] = r
		l.byStudent[r.StudentID] = r
		loaded++
	}

	l.logger.WithField("count", loaded).Info("✓ Seat reservations loaded")
	return nil
}

// Reserve gives seatNumber on busID to studentID. Re-reserving the seat the
// student already holds returns the existing reservation with Created false.
func (l *ReservationLedger) Reserve(busID, seatNumber, studentID, qrData string) (*models.ReserveSeatResult, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidContent)
	}

	bus, ok := l.fleet.Bus(busID)
	if !ok {
		l.logger.WithField("bus_id", busID).Warn("Reservation for a bus missing from the fleet registry")
		return nil, ErrUnknownBus
	}

	seat, err := validator.CanonicalSeat(seatNumber, bus.Capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeat, err)
	}
	key := models.SeatKey(bus.ID, seat)

	unlockStudent := l.locks.Lock("student:" + studentID)
	defer unlockStudent()
	unlockSeat := l.locks.Lock("seat:" + key)
	defer unlockSeat()

	l.mu.RLock()
	held := l.byStudent[studentID]
	holder := l.bySeat[key]
	l.mu.RUnlock()

	if held != nil {
		if held.SeatKey() == key {
			copied := *held
			return &models.ReserveSeatResult{Reservation: &copied, Created: false}, nil
		}
		return nil, ErrAlreadyHasReservation
	}
	if holder != nil {
		return nil, ErrSeatTaken
	}

	reservation := &models.SeatReservation{
		ID:         uuid.New().String(),
		BusID:      bus.ID,
		SeatNumber: seat,
		StudentID:  studentID,
		Status:     models.ReservationStatusActive,
		QRData:     qrData,
		CreatedAt:  l.now().UTC(),
	}

	l.mu.Lock()
	l.bySeat[key] = reservation
	l.byStudent[studentID] = reservation
	l.mu.Unlock()

	copied := *reservation
	l.persist(copied)
	l.publisher.Publish(models.BusChannel(bus.ID), models.NewEvent(models.EventSeatReserved, models.NewSeatPayload(&copied)))

	l.logger.WithFields(logrus.Fields{
		"reservation_id": copied.ID,
		"bus_id":         copied.BusID,
		"seat_number":    copied.SeatNumber,
		"student_id":     studentID,
	}).Info("Seat reserved")

	return &models.ReserveSeatResult{Reservation: &copied, Created: true}, nil
}

// ReserveFromLabel reserves the seat named by a scanned seat label. busID and
// seatNumber are optional; when given they must agree with the label.
func (l *ReservationLedger) ReserveFromLabel(student models.Identity, qrData, busID, seatNumber string) (*models.ReserveSeatResult, error) {
	if student.Role != models.RoleStudent {
		return nil, ErrForbidden
	}

	label, err := validator.ParseSeatLabel(qrData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}

	if busID != "" && busID != label.BusID {
		return nil, fmt.Errorf("%w: label is for bus %s", ErrInvalidQR, label.BusID)
	}
	if seatNumber != "" && !sameSeat(seatNumber, label.SeatNumber) {
		return nil, fmt.Errorf("%w: label is for seat %s", ErrInvalidQR, label.SeatNumber)
	}

	return l.Reserve(label.BusID, label.SeatNumber, student.UserID, qrData)
}

// Cancel releases the student's active reservation
func (l *ReservationLedger) Cancel(studentID string) (*models.SeatReservation, error) {
	unlockStudent := l.locks.Lock("student:" + studentID)
	defer unlockStudent()

	l.mu.RLock()
	held := l.byStudent[studentID]
	l.mu.RUnlock()
	if held == nil {
		return nil, ErrNotFound
	}

	unlockSeat := l.locks.Lock("seat:" + held.SeatKey())
	defer unlockSeat()

	cancelledAt := l.now().UTC()

	l.mu.Lock()
	held.Status = models.ReservationStatusCancelled
	held.CancelledAt = &cancelledAt
	delete(l.bySeat, held.SeatKey())
	delete(l.byStudent, studentID)
	copied := *held
	l.mu.Unlock()

	l.persist(copied)
	l.publisher.Publish(models.BusChannel(copied.BusID), models.NewEvent(models.EventSeatReleased, models.NewSeatPayload(&copied)))

	l.logger.WithFields(logrus.Fields{
		"reservation_id": copied.ID,
		"bus_id":         copied.BusID,
		"seat_number":    copied.SeatNumber,
		"student_id":     studentID,
	}).Info("Seat released")

	return &copied, nil
}

// GetForStudent returns the student's active reservation
func (l *ReservationLedger) GetForStudent(studentID string) (*models.SeatReservation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	held, ok := l.byStudent[studentID]
	if !ok {
		return nil, false
	}
	copied := *held
	return &copied, true
}

// ListForBus returns the active reservations on a bus ordered by seat
func (l *ReservationLedger) ListForBus(busID string) ([]*models.SeatReservation, error) {
	if _, ok := l.fleet.Bus(busID); !ok {
		return nil, ErrUnknownBus
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []*models.SeatReservation{}
	for _, r := range l.bySeat {
		if r.BusID == busID {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

// ActiveCount returns the number of active reservations
func (l *ReservationLedger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bySeat)
}

// persist must be called while holding the student lock so writes for one
// reservation reach the queue in the order they happened
func (l *ReservationLedger) persist(reservation models.SeatReservation) {
	if l.sync == nil || l.store == nil {
		return
	}
	l.sync.Submit("reservation:"+reservation.ID, func() error {
		err := l.store.Save(&reservation)
		if errors.Is(err, database.ErrActiveReservationConflict) {
			l.logger.WithFields(logrus.Fields{
				"reservation_id": reservation.ID,
				"bus_id":         reservation.BusID,
				"seat_number":    reservation.SeatNumber,
				"student_id":     reservation.StudentID,
			}).Warn("Active reservation conflict in storage, will retry")
		}
		return err
	})
}

func sameSeat(a, b string) bool {
	na, errA := validator.CanonicalSeat(a, maxSeatLabel)
	nb, errB := validator.CanonicalSeat(b, maxSeatLabel)
	if errA == nil && errB == nil {
		return na == nb
	}
	return a == b
}

// maxSeatLabel bounds seat comparison only; capacity is checked in Reserve
const maxSeatLabel = 1 << 16
