package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/models"
)

// MessagingService broadcasts driver and admin messages to passengers
type MessagingService struct {
	fleet     *fleet.Registry
	publisher EventPublisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewMessagingService creates a new MessagingService
func NewMessagingService(registry *fleet.Registry, publisher EventPublisher, logger *logrus.Logger) *MessagingService {
	return &MessagingService{
		fleet:     registry,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Send validates and publishes a message. The report counts the
// connections the message was handed to.
func (s *MessagingService) Send(sender models.Identity, req models.SendMessageRequest) (*models.Message, models.DeliveryReport, error) {
	if !sender.Role.CanBroadcast() {
		return nil, models.DeliveryReport{}, ErrForbidden
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, models.DeliveryReport{}, fmt.Errorf("%w: message is empty", ErrInvalidContent)
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return nil, models.DeliveryReport{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidContent, models.MaxMessageLength)
	}

	msgType := models.MessageType(req.Type)
	if msgType == "" {
		msgType = models.MessageTypeInfo
	}
	if !msgType.IsValid() {
		return nil, models.DeliveryReport{}, fmt.Errorf("%w: unknown message type %q", ErrInvalidContent, req.Type)
	}

	if req.BusID == "" && req.RouteID == "" {
		return nil, models.DeliveryReport{}, fmt.Errorf("%w: a bus or route is required", ErrInvalidContent)
	}
	if req.BusID != "" {
		if _, ok := s.fleet.Bus(req.BusID); !ok {
			return nil, models.DeliveryReport{}, ErrUnknownBus
		}
	}
	if req.RouteID != "" {
		if _, ok := s.fleet.Route(req.RouteID); !ok {
			return nil, models.DeliveryReport{}, fmt.Errorf("%w: unknown route %q", ErrInvalidContent, req.RouteID)
		}
	}

	if sender.Role == models.RoleDriver {
		if err := s.checkDriverScope(sender.UserID, req.BusID, req.RouteID); err != nil {
			return nil, models.DeliveryReport{}, err
		}
	}

	msg := &models.Message{
		ID:         uuid.New().String(),
		Content:    content,
		SenderID:   sender.UserID,
		SenderRole: sender.Role,
		Type:       msgType,
		BusID:      req.BusID,
		RouteID:    req.RouteID,
		Timestamp:  s.now().UTC(),
	}
	event := models.NewEvent(models.EventNewMessage, msg)

	var report models.DeliveryReport
	switch {
	case msg.BusID != "":
		// A bus channel already reaches the bus's current route
		report = s.publisher.Publish(models.BusChannel(msg.BusID), event)
		report.Channel = models.BusChannel(msg.BusID)
		if routeID, _ := s.fleet.RouteOf(msg.BusID); msg.RouteID != "" && msg.RouteID != routeID {
			report.Merge(s.publisher.Publish(models.RouteChannel(msg.RouteID), event))
		}
	default:
		report = s.publisher.Publish(models.RouteChannel(msg.RouteID), event)
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"sender_id":  sender.UserID,
		"type":       msg.Type,
		"bus_id":     msg.BusID,
		"route_id":   msg.RouteID,
		"delivered":  report.Delivered,
	}).Info("Message sent")

	return msg, report, nil
}

// checkDriverScope limits drivers to their own bus and its current route
func (s *MessagingService) checkDriverScope(driverID, busID, routeID string) error {
	bus, ok := s.fleet.AssignedBus(driverID)
	if !ok {
		return ErrForbidden
	}
	if busID != "" && busID != bus.ID {
		return ErrForbidden
	}
	if routeID != "" && routeID != bus.RouteID {
		return ErrForbidden
	}
	return nil
}
