package fleet

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/smarttransit/fleet-sync/internal/models"
)

var (
	// ErrUnknownBus is returned when a bus id is not in the registry
	ErrUnknownBus = errors.New("bus not in fleet registry")
	// ErrUnknownRoute is returned when a route id is not in the registry
	ErrUnknownRoute = errors.New("route not in fleet registry")
)

// Route is a named shuttle route
type Route struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Bus is a registered vehicle and its driver assignment
type Bus struct {
	ID       string           `yaml:"id" json:"id"`
	Number   string           `yaml:"number" json:"number"`
	RouteID  string           `yaml:"route_id" json:"routeId"`
	Capacity int              `yaml:"capacity" json:"capacity"`
	DriverID string           `yaml:"driver_id" json:"driverId"`
	Status   models.BusStatus `yaml:"status" json:"status"`
}

// File is the on-disk layout of the fleet registry
type File struct {
	Routes []Route `yaml:"routes"`
	Buses  []Bus   `yaml:"buses"`
}

// Registry is the set of known buses and routes. Capacity and driver
// assignment are fixed at load; route assignment and status can be changed
// by an admin at runtime.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
	buses  map[string]*Bus
	order  []string
}

// Load reads and validates a fleet registry from a YAML file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML content
func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fleet registry: %w", err)
	}
	return New(file)
}

// New builds a registry from an already decoded file
func New(file File) (*Registry, error) {
	r := &Registry{
		routes: make(map[string]Route, len(file.Routes)),
		buses:  make(map[string]*Bus, len(file.Buses)),
	}

	for _, route := range file.Routes {
		if route.ID == "" {
			return nil, fmt.Errorf("route id is required")
		}
		if _, dup := r.routes[route.ID]; dup {
			return nil, fmt.Errorf("route %q: duplicate id", route.ID)
		}
		r.routes[route.ID] = route
	}

	for i := range file.Buses {
		bus := file.Buses[i]
		if bus.ID == "" {
			return nil, fmt.Errorf("bus id is required")
		}
		if _, dup := r.buses[bus.ID]; dup {
			return nil, fmt.Errorf("bus %q: duplicate id", bus.ID)
		}
		if bus.Capacity <= 0 {
			return nil, fmt.Errorf("bus %q: capacity must be positive", bus.ID)
		}
		if _, ok := r.routes[bus.RouteID]; !ok {
			return nil, fmt.Errorf("bus %q: unknown route %q", bus.ID, bus.RouteID)
		}
		if bus.Status == "" {
			bus.Status = models.BusStatusActive
		}
		if !bus.Status.IsValid() {
			return nil, fmt.Errorf("bus %q: invalid status %q", bus.ID, bus.Status)
		}
		if bus.Number == "" {
			bus.Number = bus.ID
		}
		r.buses[bus.ID] = &bus
		r.order = append(r.order, bus.ID)
	}

	return r, nil
}

// Bus returns a copy of the registered bus
func (r *Registry) Bus(busID string) (Bus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bus, ok := r.buses[busID]
	if !ok {
		return Bus{}, false
	}
	return *bus, true
}

// Buses returns every registered bus in file order
func (r *Registry) Buses() []Bus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Bus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.buses[id])
	}
	return out
}

// Route returns a registered route
func (r *Registry) Route(routeID string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[routeID]
	return route, ok
}

// Routes returns every registered route sorted by id
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RouteOf returns the route a bus is currently assigned to
func (r *Registry) RouteOf(busID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bus, ok := r.buses[busID]
	if !ok {
		return "", false
	}
	return bus.RouteID, true
}

// BusesOnRoute returns the buses currently assigned to a route
func (r *Registry) BusesOnRoute(routeID string) []Bus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Bus
	for _, id := range r.order {
		if bus := r.buses[id]; bus.RouteID == routeID {
			out = append(out, *bus)
		}
	}
	return out
}

// IsAssignedDriver reports whether userID drives busID
func (r *Registry) IsAssignedDriver(busID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bus, ok := r.buses[busID]
	return ok && userID != "" && bus.DriverID == userID
}

// AssignedBus returns the bus a driver is assigned to
func (r *Registry) AssignedBus(driverID string) (Bus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if bus := r.buses[id]; bus.DriverID == driverID {
			return *bus, true
		}
	}
	return Bus{}, false
}

// AssignRoute moves a bus to another route and returns the previous route
func (r *Registry) AssignRoute(busID, routeID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bus, ok := r.buses[busID]
	if !ok {
		return "", ErrUnknownBus
	}
	if _, ok := r.routes[routeID]; !ok {
		return "", ErrUnknownRoute
	}

	previous := bus.RouteID
	bus.RouteID = routeID
	return previous, nil
}

// SetStatus changes a bus's operational status and returns the previous one
func (r *Registry) SetStatus(busID string, status models.BusStatus) (models.BusStatus, error) {
	if !status.IsValid() {
		return "", fmt.Errorf("invalid bus status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bus, ok := r.buses[busID]
	if !ok {
		return "", ErrUnknownBus
	}

	previous := bus.Status
	bus.Status = status
	return previous, nil
}
