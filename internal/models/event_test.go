package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryReport_MergeCountsConnectionsOnce(t *testing.T) {
	admins := DeliveryReport{Channel: AdminChannel}
	admins.Record("c1", true)
	admins.Record("c2", false)

	bus := DeliveryReport{Channel: BusChannel("A-101")}
	bus.Record("c1", true)
	bus.Record("c2", true)
	bus.Record("c3", true)

	admins.Merge(bus)

	assert.Equal(t, 3, admins.Attempted)
	assert.Equal(t, 3, admins.Delivered, "a later success replaces an earlier failure")
	assert.Equal(t, 0, admins.Failed)
	assert.Equal(t, AdminChannel, admins.Channel)
}

func TestDeliveryReport_MergeWithoutRecipients(t *testing.T) {
	report := DeliveryReport{Attempted: 2, Delivered: 2}
	report.Merge(DeliveryReport{Attempted: 3, Delivered: 2, Failed: 1})

	assert.Equal(t, 5, report.Attempted)
	assert.Equal(t, 4, report.Delivered)
	assert.Equal(t, 1, report.Failed)
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel string
		kind    ChannelKind
		id      string
		ok      bool
	}{
		{"bus:A-101", ChannelKindBus, "A-101", true},
		{"route:route-a", ChannelKindRoute, "route-a", true},
		{AdminChannel, ChannelKindAdmin, "", true},
		{"bus:", ChannelKindBus, "", false},
		{"lobby", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			kind, id, ok := ParseChannel(tt.channel)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
