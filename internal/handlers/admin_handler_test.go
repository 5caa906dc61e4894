package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/services"
)

func TestUpdateBusStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "PUT", "/api/v1/admin/buses/A-101/status", "driver-1", "driver", statusBody("maintenance"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, "PUT", "/api/v1/admin/buses/A-101/status", "admin-1", "admin", statusBody("parked"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CONTENT", errorCode(t, w))

	w = s.do(t, "PUT", "/api/v1/admin/buses/Z-999/status", "admin-1", "admin", statusBody("inactive"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, "PUT", "/api/v1/admin/buses/A-101/status", "admin-1", "admin", statusBody("maintenance"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payload models.BusStatusPayload
	decodeJSON(t, w, &payload)
	assert.Equal(t, models.BusStatusMaintenance, payload.Status)
	assert.Equal(t, models.BusStatusActive, payload.Previous)

	bus, _ := s.fleet.Bus("A-101")
	assert.Equal(t, models.BusStatusMaintenance, bus.Status)
}

func statusBody(status string) models.UpdateBusStatusRequest {
	return models.UpdateBusStatusRequest{Status: status}
}

func TestAssignRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "PUT", "/api/v1/admin/buses/A-101/route", "admin-1", "admin", models.AssignRouteRequest{RouteID: "route-b"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payload models.RouteUpdatePayload
	decodeJSON(t, w, &payload)
	assert.Equal(t, "route-a", payload.PreviousRouteID)
	assert.Equal(t, "route-b", payload.RouteID)

	routeID, _ := s.fleet.RouteOf("A-101")
	assert.Equal(t, "route-b", routeID)

	w = s.do(t, "PUT", "/api/v1/admin/buses/A-101/route", "admin-1", "admin", models.AssignRouteRequest{RouteID: "route-z"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "PUT", "/api/v1/admin/buses/A-101/route", "admin-1", "admin", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSyncStatus(t *testing.T) {
	s := newTestServer(t)

	// The mocked database rejects the write, so it is queued for retry
	_, err := s.ledger.Reserve("A-101", "05", "s1", "")
	require.NoError(t, err)

	w := s.do(t, "GET", "/api/v1/admin/sync/status", "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status services.SyncStatus
	decodeJSON(t, w, &status)
	require.Len(t, status.Pending, 1)
	assert.Contains(t, status.Pending[0].Key, "reservation:")
	assert.Equal(t, 1, status.Pending[0].Attempts)
}

func TestListConnections(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "GET", "/api/v1/admin/connections", "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	decodeJSON(t, w, &body)
	assert.Equal(t, 0, body.Count)
}
