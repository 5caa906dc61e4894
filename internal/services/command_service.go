package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/realtime"
)

type commandFunc func(ctx context.Context, conn *realtime.Connection, data json.RawMessage) error

// CommandService decodes inbound socket frames and applies them. Failures
// are answered with an error event to the sending connection only.
type CommandService struct {
	registry   *realtime.Registry
	router     *realtime.Router
	fleet      *fleet.Registry
	ledger     *ReservationLedger
	fleetState *FleetStateService
	messaging  *MessagingService
	sos        *SOSService
	logger     *logrus.Logger

	commands map[string]commandFunc
}

// NewCommandService creates a new CommandService
func NewCommandService(
	registry *realtime.Registry,
	router *realtime.Router,
	fleetRegistry *fleet.Registry,
	ledger *ReservationLedger,
	fleetState *FleetStateService,
	messaging *MessagingService,
	sos *SOSService,
	logger *logrus.Logger,
) *CommandService {
	s := &CommandService{
		registry:   registry,
		router:     router,
		fleet:      fleetRegistry,
		ledger:     ledger,
		fleetState: fleetState,
		messaging:  messaging,
		sos:        sos,
		logger:     logger,
	}

	s.commands = map[string]commandFunc{
		models.CommandJoinBus:           s.joinBus,
		models.CommandLeaveBus:          s.leaveBus,
		models.CommandJoinRoute:         s.joinRoute,
		models.CommandLeaveRoute:        s.leaveRoute,
		models.CommandSendMessage:       s.sendMessage,
		models.CommandLocationUpdate:    s.locationUpdate,
		models.CommandSOSAlert:          s.sosAlert,
		models.CommandRequestBusUpdates: s.requestBusUpdates,
		models.CommandRequestHistory:    s.requestHistory,
		models.CommandReserveSeat:       s.reserveSeat,
		models.CommandCancelReservation: s.cancelReservation,
		models.CommandPing:              s.ping,
	}
	return s
}

// HandleFrame implements realtime.FrameHandler
func (s *CommandService) HandleFrame(ctx context.Context, conn *realtime.Connection, frame models.InboundFrame) {
	command, ok := s.commands[frame.Event]
	if !ok {
		s.fail(conn, frame.Event, fmt.Errorf("%w: %s", ErrUnknownCommand, frame.Event))
		return
	}

	if err := command(ctx, conn, frame.Data); err != nil {
		s.fail(conn, frame.Event, err)
	}
}

// Greet sends a newly connected student their current reservation, so a
// reconnect after a dropped socket shows the seat is still held
func (s *CommandService) Greet(conn *realtime.Connection) {
	if conn.Role != models.RoleStudent {
		return
	}
	if reservation, ok := s.ledger.GetForStudent(conn.UserID); ok {
		s.reply(conn, models.EventReservation, models.ReserveSeatResult{Reservation: reservation})
	}
}

func (s *CommandService) joinBus(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.ChannelRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.BusID == "" {
		return fmt.Errorf("%w: busId is required", ErrInvalidContent)
	}
	if _, ok := s.fleet.Bus(req.BusID); !ok {
		return ErrUnknownBus
	}

	channel := models.BusChannel(req.BusID)
	if err := s.registry.Subscribe(conn.ID, channel); err != nil {
		return err
	}
	s.reply(conn, models.EventSubscribed, models.SubscribedPayload{Channel: channel, Subscribed: true})

	if state, ok := s.fleetState.Get(req.BusID); ok {
		s.reply(conn, models.EventBusLocationUpdate, models.NewBusLocationPayload(state))
	}
	return nil
}

func (s *CommandService) leaveBus(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.ChannelRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.BusID == "" {
		return fmt.Errorf("%w: busId is required", ErrInvalidContent)
	}
	return s.leave(conn, models.BusChannel(req.BusID))
}

func (s *CommandService) joinRoute(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.ChannelRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.RouteID == "" {
		return fmt.Errorf("%w: routeId is required", ErrInvalidContent)
	}
	if _, ok := s.fleet.Route(req.RouteID); !ok {
		return fmt.Errorf("%w: unknown route %q", ErrNotFound, req.RouteID)
	}

	channel := models.RouteChannel(req.RouteID)
	if err := s.registry.Subscribe(conn.ID, channel); err != nil {
		return err
	}
	s.reply(conn, models.EventSubscribed, models.SubscribedPayload{Channel: channel, Subscribed: true})
	return nil
}

func (s *CommandService) leaveRoute(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.ChannelRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.RouteID == "" {
		return fmt.Errorf("%w: routeId is required", ErrInvalidContent)
	}
	return s.leave(conn, models.RouteChannel(req.RouteID))
}

func (s *CommandService) leave(conn *realtime.Connection, channel string) error {
	if err := s.registry.Unsubscribe(conn.ID, channel); err != nil {
		return err
	}
	s.reply(conn, models.EventSubscribed, models.SubscribedPayload{Channel: channel, Subscribed: false})
	return nil
}

func (s *CommandService) sendMessage(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	msg, report, err := s.messaging.Send(conn.Identity(), req)
	if err != nil {
		return err
	}

	s.reply(conn, models.EventMessageDelivered, models.MessageDeliveredPayload{
		MessageID:      msg.ID,
		RecipientCount: report.Delivered,
	})
	return nil
}

func (s *CommandService) locationUpdate(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.LocationReport
	if err := decode(data, &req); err != nil {
		return err
	}

	_, err := s.fleetState.ReportLocation(req.BusID, req.Location, req.Occupancy, conn.Identity())
	return err
}

func (s *CommandService) sosAlert(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	// A malformed body still raises the alert with whatever could be read
	var req models.RaiseSOSRequest
	if err := decode(data, &req); err != nil {
		s.logger.WithField("connection_id", conn.ID).WithError(err).Warn("Malformed SOS payload, raising anyway")
		req = models.RaiseSOSRequest{}
	}

	s.sos.Raise(conn.Identity(), req)
	return nil
}

func (s *CommandService) requestBusUpdates(_ context.Context, conn *realtime.Connection, _ json.RawMessage) error {
	for _, state := range s.fleetState.Snapshot(s.registry.ChannelsOf(conn.ID)) {
		s.reply(conn, models.EventBusLocationUpdate, models.NewBusLocationPayload(state))
	}
	return nil
}

func (s *CommandService) requestHistory(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.ChannelRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	channel := req.Channel
	switch {
	case channel != "":
	case req.BusID != "":
		channel = models.BusChannel(req.BusID)
	case req.RouteID != "":
		channel = models.RouteChannel(req.RouteID)
	default:
		return fmt.Errorf("%w: channel, busId or routeId is required", ErrInvalidContent)
	}

	kind, _, ok := models.ParseChannel(channel)
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidContent, channel)
	}
	if kind == models.ChannelKindAdmin && conn.Role != models.RoleAdmin {
		return ErrForbidden
	}

	s.reply(conn, models.EventHistory, models.HistoryPayload{
		Channel: channel,
		Events:  s.router.GetRecent(channel),
	})
	return nil
}

func (s *CommandService) reserveSeat(_ context.Context, conn *realtime.Connection, data json.RawMessage) error {
	var req models.SocketReserveRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	result, err := s.ledger.ReserveFromLabel(conn.Identity(), req.QRData, "", "")
	if err != nil {
		return err
	}
	s.reply(conn, models.EventReservation, result)
	return nil
}

func (s *CommandService) cancelReservation(_ context.Context, conn *realtime.Connection, _ json.RawMessage) error {
	if conn.Role != models.RoleStudent {
		return ErrForbidden
	}

	cancelled, err := s.ledger.Cancel(conn.UserID)
	if err != nil {
		return err
	}
	s.reply(conn, models.EventReservation, models.ReserveSeatResult{Reservation: cancelled})
	return nil
}

func (s *CommandService) ping(_ context.Context, conn *realtime.Connection, _ json.RawMessage) error {
	s.reply(conn, models.EventPong, nil)
	return nil
}

func (s *CommandService) reply(conn *realtime.Connection, name string, data interface{}) {
	if err := conn.Deliver(models.NewEvent(name, data)); err != nil {
		s.logger.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"event":         name,
		}).WithError(err).Debug("Reply delivery failed")
	}
}

func (s *CommandService) fail(conn *realtime.Connection, command string, err error) {
	message := err.Error()
	logger := s.logger.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"user_id":       conn.UserID,
		"command":       command,
	}).WithError(err)

	if IsDomainError(err) {
		logger.Debug("Command rejected")
	} else {
		logger.Error("Command failed")
		message = "Internal error"
	}

	s.reply(conn, models.EventError, models.ErrorPayload{
		Command: command,
		Code:    ErrorCode(err),
		Message: message,
	})
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload", ErrInvalidContent)
	}
	return nil
}
