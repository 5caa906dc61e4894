package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/models"
)

// recordingGateway captures escalation texts
type recordingGateway struct {
	mu    sync.Mutex
	sent  []string
	to    [][]string
	fail  error
	calls int
}

func (g *recordingGateway) Send(_ context.Context, phones []string, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return "", g.fail
	}
	g.sent = append(g.sent, message)
	g.to = append(g.to, phones)
	return "txn-1", nil
}

func (g *recordingGateway) Name() string { return "Recording Gateway" }

type sosFixture struct {
	svc       *SOSService
	store     *memorySOSStore
	publisher *recordingPublisher
	gateway   *recordingGateway
}

func newSOSFixture(t *testing.T, phones ...string) sosFixture {
	t.Helper()
	store := &memorySOSStore{}
	publisher := &recordingPublisher{delivered: 1}
	gateway := &recordingGateway{}
	return sosFixture{
		svc:       NewSOSService(store, newTestSync(), publisher, gateway, phones, newTestLogger()),
		store:     store,
		publisher: publisher,
		gateway:   gateway,
	}
}

func TestSOSService_Raise(t *testing.T) {
	f := newSOSFixture(t, "+94 77 123 4567", "not-a-phone")

	alert, report := f.svc.Raise(student1, models.RaiseSOSRequest{
		UserID:   "someone-else",
		UserType: "admin",
		BusID:    "A-101",
		Location: models.Location{Latitude: 37.78825, Longitude: -122.4324, Address: "Current Location"},
	})
	require.NoError(t, f.svc.Wait(context.Background()))

	assert.Equal(t, "s1", alert.UserID, "the connection's identity wins")
	assert.Equal(t, models.RoleStudent, alert.UserType)
	assert.Equal(t, models.SOSStatusActive, alert.Status)
	assert.Equal(t, "Emergency alert triggered by user", alert.Description)
	assert.Equal(t, 2, report.Delivered)

	alerts := f.publisher.Named(models.EventEmergencyAlert)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.AdminChannel, alerts[0].Channel)
	assert.Equal(t, "bus:A-101", alerts[1].Channel)
	payload := alerts[0].Event.Data.(models.EmergencyAlertPayload)
	assert.Contains(t, payload.Message, "bus A-101")

	require.Len(t, f.store.Saved(), 1)

	require.Len(t, f.gateway.sent, 1)
	assert.Equal(t, []string{"+94771234567"}, f.gateway.to[0], "invalid escalation phones are skipped")
	assert.Contains(t, f.gateway.sent[0], "Current Location")
}

func TestSOSService_AcceptsEmptyAlert(t *testing.T) {
	f := newSOSFixture(t)

	alert, _ := f.svc.Raise(driver1, models.RaiseSOSRequest{})
	require.NoError(t, f.svc.Wait(context.Background()))

	require.NotNil(t, alert)
	assert.Empty(t, alert.BusID)

	alerts := f.publisher.Named(models.EventEmergencyAlert)
	require.Len(t, alerts, 1, "without a bus only admins are alerted")
	assert.Equal(t, models.AdminChannel, alerts[0].Channel)
	assert.Equal(t, 0, f.gateway.calls, "no escalation phones configured")
}

func TestSOSService_EscalationFailureIsIgnored(t *testing.T) {
	f := newSOSFixture(t, "+14155550100")
	f.gateway.fail = errors.New("gateway timeout")

	alert, _ := f.svc.Raise(student1, models.RaiseSOSRequest{BusID: "A-101"})
	require.NoError(t, f.svc.Wait(context.Background()))

	assert.True(t, alert.IsActive())
	assert.Equal(t, 1, f.gateway.calls)
	assert.Len(t, f.svc.List(true), 1)
}

func TestSOSService_Resolve(t *testing.T) {
	f := newSOSFixture(t)
	alert, _ := f.svc.Raise(student1, models.RaiseSOSRequest{BusID: "A-101"})

	_, err := f.svc.Resolve(alert.ID, driver1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Resolve("missing", admin)
	assert.ErrorIs(t, err, ErrNotFound)

	resolved, err := f.svc.Resolve(alert.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.SOSStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "admin-1", *resolved.ResolvedBy)

	again, err := f.svc.Resolve(alert.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, resolved.ResolvedAt, again.ResolvedAt)

	require.NoError(t, f.svc.Wait(context.Background()))
	assert.Len(t, f.publisher.Named(models.EventSOSResolved), 2, "admin and bus channels, once")
	assert.Empty(t, f.svc.List(true))
	assert.Len(t, f.svc.List(false), 1)

	saved := f.store.Saved()
	require.Len(t, saved, 2)
	assert.Equal(t, models.SOSStatusResolved, saved[1].Status)
}

// stallingSOSStore blocks every Save until released
type stallingSOSStore struct {
	memorySOSStore
	release chan struct{}
}

func (s *stallingSOSStore) Save(alert *models.SOSAlert) error {
	<-s.release
	return s.memorySOSStore.Save(alert)
}

func TestSOSService_BroadcastDoesNotWaitForDatabase(t *testing.T) {
	store := &stallingSOSStore{release: make(chan struct{})}
	publisher := &recordingPublisher{delivered: 1}
	svc := NewSOSService(store, newTestSync(), publisher, nil, nil, newTestLogger())

	raised := make(chan *models.SOSAlert, 1)
	go func() {
		alert, _ := svc.Raise(student1, models.RaiseSOSRequest{BusID: "A-101"})
		raised <- alert
	}()

	var alert *models.SOSAlert
	select {
	case alert = <-raised:
	case <-time.After(2 * time.Second):
		t.Fatal("Raise blocked on a stalled database write")
	}
	assert.Len(t, publisher.Named(models.EventEmergencyAlert), 2)

	resolvedCh := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(alert.ID, admin)
		resolvedCh <- err
	}()
	select {
	case err := <-resolvedCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve blocked on a stalled database write")
	}
	assert.Len(t, publisher.Named(models.EventSOSResolved), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(ctx), context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, svc.Wait(context.Background()))

	saved := store.Saved()
	require.NotEmpty(t, saved)
	assert.Equal(t, models.SOSStatusResolved, saved[len(saved)-1].Status, "the latest state is stored last")
}

func TestSOSService_ListNewestFirst(t *testing.T) {
	f := newSOSFixture(t)
	clock := newFakeClock()
	f.svc.now = clock.Now

	first, _ := f.svc.Raise(student1, models.RaiseSOSRequest{})
	clock.Advance(time.Minute)
	second, _ := f.svc.Raise(student2, models.RaiseSOSRequest{})

	alerts := f.svc.List(false)
	require.Len(t, alerts, 2)
	assert.Equal(t, second.ID, alerts[0].ID)
	assert.Equal(t, first.ID, alerts[1].ID)
}

func TestSOSService_Load(t *testing.T) {
	f := newSOSFixture(t)
	f.store.active = []*models.SOSAlert{
		{ID: "alert-1", UserID: "s1", UserType: models.RoleStudent, Status: models.SOSStatusActive, Timestamp: time.Now()},
	}

	require.NoError(t, f.svc.Load())
	_, err := f.svc.Resolve("alert-1", admin)
	assert.NoError(t, err)
}
