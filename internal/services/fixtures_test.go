package services

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/config"
	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
)

const testFleetYAML = `
routes:
  - id: route-a
    name: North Loop
  - id: route-b
    name: South Loop
buses:
  - id: A-101
    route_id: route-a
    capacity: 40
    driver_id: driver-1
  - id: B-102
    route_id: route-b
    capacity: 30
    driver_id: driver-2
  - id: A-103
    route_id: route-a
    capacity: 12
    driver_id: driver-3
`

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestFleet(t *testing.T) *fleet.Registry {
	t.Helper()
	registry, err := fleet.Parse([]byte(testFleetYAML))
	require.NoError(t, err)
	return registry
}

func newTestSync() *SyncService {
	return NewSyncService(config.SyncConfig{
		RetrySchedule: "@every 1s",
		BaseBackoff:   5 * time.Second,
		MaxBackoff:    time.Minute,
		MaxAttempts:   3,
	}, newTestLogger())
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	Channel string
	Event   models.Event
}

// recordingPublisher remembers every publish and reports a fixed delivery count
type recordingPublisher struct {
	mu        sync.Mutex
	published []published
	delivered int
}

func (p *recordingPublisher) Publish(channel string, event models.Event) models.DeliveryReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.Channel = channel
	p.published = append(p.published, published{Channel: channel, Event: event})
	return models.DeliveryReport{Channel: channel, Attempted: p.delivered, Delivered: p.delivered}
}

func (p *recordingPublisher) All() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.published...)
}

func (p *recordingPublisher) Named(name string) []published {
	var out []published
	for _, pub := range p.All() {
		if pub.Event.Name == name {
			out = append(out, pub)
		}
	}
	return out
}

// memoryReservationStore is an in-memory ReservationStore
type memoryReservationStore struct {
	mu     sync.Mutex
	saved  []models.SeatReservation
	active []*models.SeatReservation
	fail   error
}

func (s *memoryReservationStore) Save(r *models.SeatReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saved = append(s.saved, *r)
	return nil
}

func (s *memoryReservationStore) ListActive() ([]*models.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return s.active, nil
}

func (s *memoryReservationStore) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *memoryReservationStore) Saved() []models.SeatReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SeatReservation(nil), s.saved...)
}

// memorySOSStore is an in-memory SOSAlertStore
type memorySOSStore struct {
	mu     sync.Mutex
	saved  []models.SOSAlert
	active []*models.SOSAlert
}

func (s *memorySOSStore) Save(alert *models.SOSAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *alert)
	return nil
}

func (s *memorySOSStore) ListActive() ([]*models.SOSAlert, error) {
	return s.active, nil
}

func (s *memorySOSStore) Saved() []models.SOSAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SOSAlert(nil), s.saved...)
}

var errDatabaseDown = errors.New("connection refused")

var (
	student1 = models.Identity{UserID: "s1", Role: models.RoleStudent}
	student2 = models.Identity{UserID: "s2", Role: models.RoleStudent}
	driver1  = models.Identity{UserID: "driver-1", Role: models.RoleDriver}
	driver2  = models.Identity{UserID: "driver-2", Role: models.RoleDriver}
	admin    = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
)
