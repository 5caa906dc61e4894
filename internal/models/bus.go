package models

import (
	"errors"
	"time"
)

// BusStatus represents the current operational status of a bus
type BusStatus string

const (
	BusStatusActive      BusStatus = "active"
	BusStatusMaintenance BusStatus = "maintenance"
	BusStatusInactive    BusStatus = "inactive"
)

// IsValid reports whether s is one of the known bus statuses
func (s BusStatus) IsValid() bool {
	switch s {
	case BusStatusActive, BusStatusMaintenance, BusStatusInactive:
		return true
	}
	return false
}

// Location is a WGS84 coordinate reported by a bus-mounted device
type Location struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Address   string  `json:"address,omitempty" db:"address"`
}

// BusState is the latest known location/occupancy/status of a bus
type BusState struct {
	BusID       string    `json:"busId"`
	RouteID     string    `json:"routeId"`
	Location    Location  `json:"location"`
	Occupancy   int       `json:"occupancy"`
	Capacity    int       `json:"capacity"`
	Status      BusStatus `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// IsFull reports whether the bus has no free seats left
func (b *BusState) IsFull() bool {
	return b.Occupancy >= b.Capacity
}

// LocationReport is what a driver device pushes over the socket
type LocationReport struct {
	BusID     string   `json:"busId"`
	Location  Location `json:"location"`
	Occupancy int      `json:"occupancy"`
}

// UpdateBusStatusRequest represents an admin status change for a bus
type UpdateBusStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Validate validates the status change request
func (r *UpdateBusStatusRequest) Validate() error {
	if !BusStatus(r.Status).IsValid() {
		return errors.New("status must be one of: active, maintenance, inactive")
	}
	return nil
}

// AssignRouteRequest represents an admin route reassignment for a bus
type AssignRouteRequest struct {
	RouteID string `json:"routeId" binding:"required"`
}
