package services

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
)

// busEntry is the latest report for one bus. Each bus has its own lock so a
// report for one bus never waits on another.
type busEntry struct {
	mu          sync.Mutex
	reported    bool
	location    models.Location
	occupancy   int
	lastUpdated time.Time
}

// FleetStateService keeps the latest location and occupancy of every bus and
// broadcasts driver reports to the bus's subscribers. Route, capacity and
// status are read from the fleet registry on every call so admin changes are
// visible immediately.
type FleetStateService struct {
	fleet     *fleet.Registry
	publisher EventPublisher
	logger    *logrus.Logger
	now       func() time.Time

	// built once; only the entries themselves change
	entries map[string]*busEntry
}

// NewFleetStateService creates a store with one empty entry per registered bus
func NewFleetStateService(registry *fleet.Registry, publisher EventPublisher, logger *logrus.Logger) *FleetStateService {
	buses := registry.Buses()
	entries := make(map[string]*busEntry, len(buses))
	for _, bus := range buses {
		entries[bus.ID] = &busEntry{}
	}

	return &FleetStateService{
		fleet:     registry,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		entries:   entries,
	}
}

// ReportLocation stores a driver's report and publishes it to the bus
// channel. Reports are ordered by arrival, not by any device timestamp.
func (s *FleetStateService) ReportLocation(busID string, location models.Location, occupancy int, reporter models.Identity) (models.BusState, error) {
	if reporter.Role != models.RoleDriver {
		return models.BusState{}, ErrUnauthorized
	}

	bus, ok := s.fleet.Bus(busID)
	entry, known := s.entries[busID]
	if !ok || !known {
		s.logger.WithFields(logrus.Fields{
			"bus_id":    busID,
			"driver_id": reporter.UserID,
		}).Warn("Location report for a bus missing from the fleet registry")
		return models.BusState{}, ErrUnknownBus
	}

	if !s.fleet.IsAssignedDriver(busID, reporter.UserID) {
		return models.BusState{}, ErrUnauthorized
	}

	if err := validateLocation(location); err != nil {
		return models.BusState{}, err
	}

	if occupancy < 0 || occupancy > bus.Capacity {
		clamped := clamp(occupancy, 0, bus.Capacity)
		s.logger.WithFields(logrus.Fields{
			"bus_id":    busID,
			"reported":  occupancy,
			"stored":    clamped,
			"capacity":  bus.Capacity,
			"driver_id": reporter.UserID,
		}).Warn("Occupancy outside capacity, clamping")
		occupancy = clamped
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := s.now().UTC()
	if !now.After(entry.lastUpdated) {
		now = entry.lastUpdated.Add(time.Microsecond)
	}
	entry.reported = true
	entry.location = location
	entry.occupancy = occupancy
	entry.lastUpdated = now

	state := s.stateLocked(bus, entry)

	// Published under the entry lock so subscribers see reports in store order
	s.publisher.Publish(models.BusChannel(busID), models.NewEvent(models.EventBusLocationUpdate, models.NewBusLocationPayload(state)))

	return state, nil
}

// Get returns the latest state of a bus that has reported at least once
func (s *FleetStateService) Get(busID string) (models.BusState, bool) {
	bus, ok := s.fleet.Bus(busID)
	entry, known := s.entries[busID]
	if !ok || !known {
		return models.BusState{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.reported {
		return models.BusState{}, false
	}
	return s.stateLocked(bus, entry), true
}

// ListByRoute returns the reported state of every bus currently on a route
func (s *FleetStateService) ListByRoute(routeID string) ([]models.BusState, error) {
	if _, ok := s.fleet.Route(routeID); !ok {
		return nil, ErrNotFound
	}

	states := []models.BusState{}
	for _, bus := range s.fleet.BusesOnRoute(routeID) {
		if state, ok := s.Get(bus.ID); ok {
			states = append(states, state)
		}
	}
	return states, nil
}

// Snapshot returns the reported state of every bus visible from the given
// channels: the bus itself for a bus channel, every bus on the route for a
// route channel. Each bus appears once.
func (s *FleetStateService) Snapshot(channels []string) []models.BusState {
	seen := make(map[string]bool)
	var busIDs []string

	add := func(busID string) {
		if !seen[busID] {
			seen[busID] = true
			busIDs = append(busIDs, busID)
		}
	}

	for _, channel := range channels {
		kind, id, ok := models.ParseChannel(channel)
		if !ok {
			continue
		}
		switch kind {
		case models.ChannelKindBus:
			add(id)
		case models.ChannelKindRoute:
			for _, bus := range s.fleet.BusesOnRoute(id) {
				add(bus.ID)
			}
		}
	}
	sort.Strings(busIDs)

	states := []models.BusState{}
	for _, busID := range busIDs {
		if state, ok := s.Get(busID); ok {
			states = append(states, state)
		}
	}
	return states
}

// SetStatus changes a bus's operational status and broadcasts it
func (s *FleetStateService) SetStatus(busID string, status models.BusStatus, actor models.Identity) (*models.BusStatusPayload, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown bus status %q", ErrInvalidContent, status)
	}

	previous, err := s.fleet.SetStatus(busID, status)
	if err != nil {
		return nil, translateFleetError(err)
	}

	payload := &models.BusStatusPayload{
		BusID:     busID,
		Status:    status,
		Previous:  previous,
		Timestamp: s.now().UTC(),
	}
	s.publisher.Publish(models.BusChannel(busID), models.NewEvent(models.EventBusStatusUpdate, payload))

	s.logger.WithFields(logrus.Fields{
		"bus_id":   busID,
		"status":   status,
		"previous": previous,
		"admin_id": actor.UserID,
	}).Info("Bus status changed")

	return payload, nil
}

// AssignRoute moves a bus to another route. The update goes to the bus
// channel, which now reaches the new route, and to the old route's channel.
func (s *FleetStateService) AssignRoute(busID, routeID string, actor models.Identity) (*models.RouteUpdatePayload, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	previous, err := s.fleet.AssignRoute(busID, routeID)
	if err != nil {
		return nil, translateFleetError(err)
	}

	bus, _ := s.fleet.Bus(busID)
	route, _ := s.fleet.Route(routeID)

	payload := &models.RouteUpdatePayload{
		Message:         fmt.Sprintf("Bus %s is now running on %s", bus.Number, route.Name),
		BusID:           busID,
		RouteID:         routeID,
		PreviousRouteID: previous,
		Timestamp:       s.now().UTC(),
	}
	event := models.NewEvent(models.EventRouteUpdate, payload)

	s.publisher.Publish(models.BusChannel(busID), event)
	if previous != routeID {
		s.publisher.Publish(models.RouteChannel(previous), event)
	}

	s.logger.WithFields(logrus.Fields{
		"bus_id":         busID,
		"route_id":       routeID,
		"previous_route": previous,
		"admin_id":       actor.UserID,
	}).Info("Bus reassigned")

	return payload, nil
}

func (s *FleetStateService) stateLocked(bus fleet.Bus, entry *busEntry) models.BusState {
	return models.BusState{
		BusID:       bus.ID,
		RouteID:     bus.RouteID,
		Location:    entry.location,
		Occupancy:   entry.occupancy,
		Capacity:    bus.Capacity,
		Status:      bus.Status,
		LastUpdated: entry.lastUpdated,
	}
}

func validateLocation(loc models.Location) error {
	if math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude) {
		return fmt.Errorf("%w: coordinates must be numbers", ErrInvalidContent)
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidContent)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func translateFleetError(err error) error {
	switch {
	case errors.Is(err, fleet.ErrUnknownBus):
		return ErrUnknownBus
	case errors.Is(err, fleet.ErrUnknownRoute):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
