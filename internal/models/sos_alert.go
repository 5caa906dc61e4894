package models

import "time"

// SOSStatus represents the state of an emergency alert
type SOSStatus string

const (
	SOSStatusActive   SOSStatus = "active"
	SOSStatusResolved SOSStatus = "resolved"
)

// SOSAlert is an emergency raised by any authenticated user.
// Alerts are never deleted; only an admin can resolve one.
type SOSAlert struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"userId" db:"user_id"`
	UserType    Role       `json:"userType" db:"user_type"`
	BusID       string     `json:"busId" db:"bus_id"`
	Latitude    float64    `json:"-" db:"latitude"`
	Longitude   float64    `json:"-" db:"longitude"`
	Address     string     `json:"-" db:"address"`
	Location    Location   `json:"location" db:"-"`
	Description string     `json:"description,omitempty" db:"description"`
	Status      SOSStatus  `json:"status" db:"status"`
	Timestamp   time.Time  `json:"timestamp" db:"created_at"`
	ResolvedBy  *string    `json:"resolvedBy,omitempty" db:"resolved_by"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// IsActive checks if the alert is still open
func (a *SOSAlert) IsActive() bool {
	return a.Status == SOSStatusActive
}

// FlattenLocation copies Location into the column fields before persisting
func (a *SOSAlert) FlattenLocation() {
	a.Latitude = a.Location.Latitude
	a.Longitude = a.Location.Longitude
	a.Address = a.Location.Address
}

// ExpandLocation rebuilds Location from the column fields after loading
func (a *SOSAlert) ExpandLocation() {
	a.Location = Location{Latitude: a.Latitude, Longitude: a.Longitude, Address: a.Address}
}

// RaiseSOSRequest is the inbound sosAlert payload.
// UserID and UserType are accepted for client compatibility but the
// authenticated identity always wins.
type RaiseSOSRequest struct {
	UserID      string   `json:"userId,omitempty"`
	UserType    string   `json:"userType,omitempty"`
	BusID       string   `json:"busId"`
	Location    Location `json:"location"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Description string   `json:"description,omitempty"`
}
