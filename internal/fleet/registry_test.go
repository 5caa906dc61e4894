package fleet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/models"
)

const testFleet = `
routes:
  - id: route-a
    name: Route A
  - id: route-b
    name: Route B
buses:
  - {id: A-101, route_id: route-a, capacity: 40, driver_id: driver-1}
  - {id: A-102, route_id: route-a, capacity: 45, driver_id: driver-2, status: maintenance}
  - {id: B-103, number: "103", route_id: route-b, capacity: 35, driver_id: driver-3}
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(testFleet))
	require.NoError(t, err)

	bus, ok := reg.Bus("A-101")
	require.True(t, ok)
	assert.Equal(t, "A-101", bus.Number, "number defaults to id")
	assert.Equal(t, models.BusStatusActive, bus.Status, "status defaults to active")
	assert.Equal(t, 40, bus.Capacity)

	bus, _ = reg.Bus("A-102")
	assert.Equal(t, models.BusStatusMaintenance, bus.Status)

	assert.Len(t, reg.Buses(), 3)
	assert.Len(t, reg.BusesOnRoute("route-a"), 2)
	assert.Len(t, reg.Routes(), 2)

	_, ok = reg.Bus("Z-999")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{"Unknown route", "routes: [{id: r}]\nbuses: [{id: X, route_id: nope, capacity: 1}]", "unknown route"},
		{"Zero capacity", "routes: [{id: r}]\nbuses: [{id: X, route_id: r, capacity: 0}]", "capacity"},
		{"Duplicate bus", "routes: [{id: r}]\nbuses: [{id: X, route_id: r, capacity: 1}, {id: X, route_id: r, capacity: 1}]", "duplicate"},
		{"Bad status", "routes: [{id: r}]\nbuses: [{id: X, route_id: r, capacity: 1, status: flying}]", "invalid status"},
		{"Malformed", "routes: [", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFleet), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reg.Buses(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDriverAssignment(t *testing.T) {
	reg, err := Parse([]byte(testFleet))
	require.NoError(t, err)

	assert.True(t, reg.IsAssignedDriver("A-101", "driver-1"))
	assert.False(t, reg.IsAssignedDriver("A-101", "driver-2"))
	assert.False(t, reg.IsAssignedDriver("Z-999", "driver-1"))
	assert.False(t, reg.IsAssignedDriver("A-101", ""))

	bus, ok := reg.AssignedBus("driver-3")
	require.True(t, ok)
	assert.Equal(t, "B-103", bus.ID)

	_, ok = reg.AssignedBus("driver-99")
	assert.False(t, ok)
}

func TestAssignRoute(t *testing.T) {
	reg, err := Parse([]byte(testFleet))
	require.NoError(t, err)

	previous, err := reg.AssignRoute("A-101", "route-b")
	require.NoError(t, err)
	assert.Equal(t, "route-a", previous)

	route, _ := reg.RouteOf("A-101")
	assert.Equal(t, "route-b", route)
	assert.Len(t, reg.BusesOnRoute("route-b"), 2)
	assert.Len(t, reg.BusesOnRoute("route-a"), 1)

	_, err = reg.AssignRoute("A-101", "route-z")
	assert.ErrorIs(t, err, ErrUnknownRoute)

	_, err = reg.AssignRoute("Z-999", "route-a")
	assert.ErrorIs(t, err, ErrUnknownBus)
}

func TestSetStatus(t *testing.T) {
	reg, err := Parse([]byte(testFleet))
	require.NoError(t, err)

	previous, err := reg.SetStatus("A-102", models.BusStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.BusStatusMaintenance, previous)

	_, err = reg.SetStatus("A-102", models.BusStatus("flying"))
	assert.Error(t, err)

	_, err = reg.SetStatus("Z-999", models.BusStatusActive)
	assert.ErrorIs(t, err, ErrUnknownBus)
}
