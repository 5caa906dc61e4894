package models

import "time"

// BusLocationPayload is the body of busLocationUpdate
type BusLocationPayload struct {
	BusID     string    `json:"busId"`
	RouteID   string    `json:"routeId,omitempty"`
	Location  Location  `json:"location"`
	Occupancy int       `json:"occupancy"`
	Capacity  int       `json:"capacity"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBusLocationPayload projects a bus state into its wire form
func NewBusLocationPayload(state BusState) BusLocationPayload {
	return BusLocationPayload{
		BusID:     state.BusID,
		RouteID:   state.RouteID,
		Location:  state.Location,
		Occupancy: state.Occupancy,
		Capacity:  state.Capacity,
		Timestamp: state.LastUpdated,
	}
}

// BusStatusPayload is the body of busStatusUpdate
type BusStatusPayload struct {
	BusID     string    `json:"busId"`
	Status    BusStatus `json:"status"`
	Previous  BusStatus `json:"previousStatus,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RouteUpdatePayload is the body of routeUpdate
type RouteUpdatePayload struct {
	Message         string    `json:"message"`
	BusID           string    `json:"busId"`
	RouteID         string    `json:"routeId"`
	PreviousRouteID string    `json:"previousRouteId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// EmergencyAlertPayload is the body of emergencyAlert and sosResolved
type EmergencyAlertPayload struct {
	Message string    `json:"message"`
	Alert   *SOSAlert `json:"alert"`
}

// MessageDeliveredPayload tells a sender how many connections got the message
type MessageDeliveredPayload struct {
	MessageID      string `json:"messageId"`
	RecipientCount int    `json:"recipientCount"`
}

// SeatPayload is the body of seatReserved and seatReleased
type SeatPayload struct {
	ReservationID string    `json:"reservationId"`
	BusID         string    `json:"busId"`
	SeatNumber    string    `json:"seatNumber"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewSeatPayload projects a reservation into its public wire form.
// Student ids are not broadcast to other passengers.
func NewSeatPayload(r *SeatReservation) SeatPayload {
	ts := r.CreatedAt
	if r.CancelledAt != nil {
		ts = *r.CancelledAt
	}
	return SeatPayload{
		ReservationID: r.ID,
		BusID:         r.BusID,
		SeatNumber:    r.SeatNumber,
		Timestamp:     ts,
	}
}

// HistoryPayload is the body of history
type HistoryPayload struct {
	Channel string  `json:"channel"`
	Events  []Event `json:"events"`
}

// SubscribedPayload confirms a join/leave
type SubscribedPayload struct {
	Channel    string `json:"channel"`
	Subscribed bool   `json:"subscribed"`
}

// ChannelRequest is the inbound payload for channel-scoped commands
type ChannelRequest struct {
	BusID   string `json:"busId,omitempty"`
	RouteID string `json:"routeId,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// SocketReserveRequest is the inbound reserveSeat payload
type SocketReserveRequest struct {
	QRData string `json:"qrData"`
}
