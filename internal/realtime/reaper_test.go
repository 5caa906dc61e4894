package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smarttransit/fleet-sync/internal/models"
)

func TestReaper_Sweep(t *testing.T) {
	reg := NewRegistry()
	reaper := NewReaper(reg, 30*time.Second, 0, newTestLogger())

	alive, aliveSink := newTestConnection(reg, "s1", models.RoleStudent)
	silent, silentSink := newTestConnection(reg, "s2", models.RoleStudent)
	reg.Subscribe(alive.ID, "bus:A-101")
	reg.Subscribe(silent.ID, "bus:A-101")
	silent.lastSeen.Store(time.Now().Add(-45 * time.Second).UnixNano())

	assert.Equal(t, 1, reaper.Sweep(time.Now()))

	assert.Equal(t, []string{alive.ID}, reg.SubscribersOf("bus:A-101"))
	assert.True(t, silentSink.Closed())
	assert.False(t, aliveSink.Closed())

	assert.Equal(t, 0, reaper.Sweep(time.Now()), "second sweep finds nothing")
	assert.Equal(t, 10*time.Second, reaper.interval)
}

func TestReaper_StartStop(t *testing.T) {
	reg := NewRegistry()
	reaper := NewReaper(reg, 30*time.Millisecond, 10*time.Millisecond, newTestLogger())

	_, sink := newTestConnection(reg, "s1", models.RoleStudent)

	reaper.Start()
	defer reaper.Stop()

	assert.Eventually(t, func() bool { return reg.Count() == 0 && sink.Closed() }, time.Second, 5*time.Millisecond)
}
