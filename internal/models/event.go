package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Outbound event names (service -> client)
const (
	EventBusLocationUpdate = "busLocationUpdate"
	EventBusStatusUpdate   = "busStatusUpdate"
	EventNewMessage        = "newMessage"
	EventEmergencyAlert    = "emergencyAlert"
	EventSOSResolved       = "sosResolved"
	EventRouteUpdate       = "routeUpdate"
	EventMessageDelivered  = "messageDelivered"
	EventSeatReserved      = "seatReserved"
	EventSeatReleased      = "seatReleased"
	EventHistory           = "history"
	EventReservation       = "reservation"
	EventSubscribed        = "subscribed"
	EventError             = "error"
	EventPong              = "pong"
)

// Inbound command names (client -> service)
const (
	CommandJoinBus           = "joinBus"
	CommandLeaveBus          = "leaveBus"
	CommandJoinRoute         = "joinRoute"
	CommandLeaveRoute        = "leaveRoute"
	CommandSendMessage       = "sendMessage"
	CommandLocationUpdate    = "locationUpdate"
	CommandSOSAlert          = "sosAlert"
	CommandRequestBusUpdates = "requestBusUpdates"
	CommandRequestHistory    = "requestHistory"
	CommandReserveSeat       = "reserveSeat"
	CommandCancelReservation = "cancelReservation"
	CommandPing              = "ping"
)

// Event is the outbound envelope written to every socket
type Event struct {
	Name      string      `json:"event"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time
func NewEvent(name string, data interface{}) Event {
	return Event{Name: name, Data: data, Timestamp: time.Now().UTC()}
}

// InboundFrame is the envelope read from a socket
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DeliveryReport summarises one fan-out. It is a courtesy count, not an ack.
type DeliveryReport struct {
	Channel   string `json:"channel"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`

	// connection id -> delivered
	recipients map[string]bool
}

// Record counts one delivery attempt. A connection is counted once per
// report; a later success for it replaces an earlier failure.
func (r *DeliveryReport) Record(connectionID string, delivered bool) {
	if r.recipients == nil {
		r.recipients = make(map[string]bool)
	}

	prev, seen := r.recipients[connectionID]
	switch {
	case !seen:
		r.Attempted++
		if delivered {
			r.Delivered++
		} else {
			r.Failed++
		}
	case !prev && delivered:
		r.Failed--
		r.Delivered++
	default:
		return
	}
	r.recipients[connectionID] = delivered
}

// Merge folds another report into r, counting a connection reached by both
// only once. Reports built without recipient ids are added as they are.
func (r *DeliveryReport) Merge(other DeliveryReport) {
	if other.recipients == nil {
		r.Attempted += other.Attempted
		r.Delivered += other.Delivered
		r.Failed += other.Failed
		return
	}
	for id, delivered := range other.recipients {
		r.Record(id, delivered)
	}
}

// ErrorPayload is the body of an outbound error event
type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Channel prefixes
const (
	busChannelPrefix   = "bus:"
	routeChannelPrefix = "route:"

	// AdminChannel receives every SOS alert fleet-wide
	AdminChannel = "admin:alerts"
)

// ChannelKind classifies a channel id
type ChannelKind string

const (
	ChannelKindBus   ChannelKind = "bus"
	ChannelKindRoute ChannelKind = "route"
	ChannelKindAdmin ChannelKind = "admin"
)

// BusChannel returns the channel id for a bus
func BusChannel(busID string) string {
	return busChannelPrefix + busID
}

// RouteChannel returns the channel id for a route
func RouteChannel(routeID string) string {
	return routeChannelPrefix + routeID
}

// ParseChannel splits a channel id into its kind and scope id
func ParseChannel(channel string) (ChannelKind, string, bool) {
	switch {
	case channel == AdminChannel:
		return ChannelKindAdmin, "", true
	case strings.HasPrefix(channel, busChannelPrefix):
		id := strings.TrimPrefix(channel, busChannelPrefix)
		return ChannelKindBus, id, id != ""
	case strings.HasPrefix(channel, routeChannelPrefix):
		id := strings.TrimPrefix(channel, routeChannelPrefix)
		return ChannelKindRoute, id, id != ""
	}
	return "", "", false
}
