package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/models"
)

func newMessagingFixture(t *testing.T) (*MessagingService, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{delivered: 3}
	return NewMessagingService(newTestFleet(t), publisher, newTestLogger()), publisher
}

func TestMessagingService_DriverAnnouncement(t *testing.T) {
	svc, publisher := newMessagingFixture(t)

	msg, report, err := svc.Send(driver1, models.SendMessageRequest{
		Content: "  Approaching next stop in 3 minutes  ",
		Type:    "announcement",
		BusID:   "A-101",
		RouteID: "route-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "Approaching next stop in 3 minutes", msg.Content)
	assert.Equal(t, models.MessageTypeAnnouncement, msg.Type)
	assert.Equal(t, "driver-1", msg.SenderID)
	assert.Equal(t, 3, report.Delivered)

	sent := publisher.Named(models.EventNewMessage)
	require.Len(t, sent, 1, "the bus channel already reaches the bus's route")
	assert.Equal(t, "bus:A-101", sent[0].Channel)
}

func TestMessagingService_DefaultsToInfo(t *testing.T) {
	svc, _ := newMessagingFixture(t)

	msg, _, err := svc.Send(admin, models.SendMessageRequest{Content: "Service resumes at 9", RouteID: "route-b"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeInfo, msg.Type)
}

func TestMessagingService_AdminToBusOnAnotherRoute(t *testing.T) {
	svc, publisher := newMessagingFixture(t)

	_, report, err := svc.Send(admin, models.SendMessageRequest{Content: "Detour", BusID: "A-101", RouteID: "route-b"})
	require.NoError(t, err)
	assert.Equal(t, 6, report.Delivered)

	sent := publisher.Named(models.EventNewMessage)
	require.Len(t, sent, 2)
	assert.Equal(t, "bus:A-101", sent[0].Channel)
	assert.Equal(t, "route:route-b", sent[1].Channel)
}

func TestMessagingService_Rejections(t *testing.T) {
	svc, publisher := newMessagingFixture(t)

	tests := []struct {
		name    string
		sender  models.Identity
		req     models.SendMessageRequest
		wantErr error
	}{
		{"student", student1, models.SendMessageRequest{Content: "hi", BusID: "A-101"}, ErrForbidden},
		{"blank", driver1, models.SendMessageRequest{Content: "   ", BusID: "A-101"}, ErrInvalidContent},
		{"too long", driver1, models.SendMessageRequest{Content: strings.Repeat("x", 201), BusID: "A-101"}, ErrInvalidContent},
		{"unknown type", driver1, models.SendMessageRequest{Content: "hi", Type: "gossip", BusID: "A-101"}, ErrInvalidContent},
		{"no scope", admin, models.SendMessageRequest{Content: "hi"}, ErrInvalidContent},
		{"unknown bus", admin, models.SendMessageRequest{Content: "hi", BusID: "Z-999"}, ErrUnknownBus},
		{"unknown route", admin, models.SendMessageRequest{Content: "hi", RouteID: "route-z"}, ErrInvalidContent},
		{"driver to another bus", driver1, models.SendMessageRequest{Content: "hi", BusID: "B-102"}, ErrForbidden},
		{"driver to another route", driver1, models.SendMessageRequest{Content: "hi", RouteID: "route-b"}, ErrForbidden},
		{"unassigned driver", models.Identity{UserID: "driver-9", Role: models.RoleDriver}, models.SendMessageRequest{Content: "hi", BusID: "A-101"}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, _, err := svc.Send(tt.sender, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, msg)
		})
	}

	assert.Empty(t, publisher.All())
}

func TestMessagingService_LengthCountsCharacters(t *testing.T) {
	svc, _ := newMessagingFixture(t)

	_, _, err := svc.Send(admin, models.SendMessageRequest{Content: strings.Repeat("é", 200), BusID: "A-101"})
	assert.NoError(t, err, "200 multi-byte characters fit")
}
