package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/pkg/sms"
	"github.com/smarttransit/fleet-sync/pkg/validator"
)

const (
	defaultSOSDescription = "Emergency alert triggered by user"
	escalationTimeout     = 15 * time.Second
)

// SOSAlertStore persists emergency alerts
type SOSAlertStore interface {
	Save(alert *models.SOSAlert) error
	ListActive() ([]*models.SOSAlert, error)
}

// SOSService accepts emergency alerts from any authenticated user, broadcasts
// them to the bus and to every admin, and texts the escalation phones.
// Alerts are never rejected once the sender is authenticated.
type SOSService struct {
	store     SOSAlertStore
	sync      *SyncService
	publisher EventPublisher
	gateway   sms.Gateway
	phones    []string
	logger    *logrus.Logger
	now       func() time.Time

	mu     sync.RWMutex
	alerts map[string]*models.SOSAlert

	// database writes and SMS escalations run off the caller's goroutine
	background sync.WaitGroup
}

// NewSOSService creates a new SOSService. Escalation phones that fail
// validation are logged and skipped.
func NewSOSService(
	store SOSAlertStore,
	syncService *SyncService,
	publisher EventPublisher,
	gateway sms.Gateway,
	escalationPhones []string,
	logger *logrus.Logger,
) *SOSService {
	phones, invalid := validator.NewPhoneValidator().ValidateMultiple(escalationPhones)
	for phone, err := range invalid {
		logger.WithField("phone", phone).WithError(err).Warn("Ignoring invalid SOS escalation phone")
	}

	return &SOSService{
		store:     store,
		sync:      syncService,
		publisher: publisher,
		gateway:   gateway,
		phones:    phones,
		logger:    logger,
		now:       time.Now,
		alerts:    make(map[string]*models.SOSAlert),
	}
}

// Load restores unresolved alerts from the database
func (s *SOSService) Load() error {
	alerts, err := s.store.ListActive()
	if err != nil {
		return fmt.Errorf("failed to load sos alerts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range alerts {
		s.alerts[alert.ID] = alert
	}

	s.logger.WithField("count", len(alerts)).Info("✓ Active SOS alerts loaded")
	return nil
}

// Raise records an alert and broadcasts it. The authenticated reporter
// always overrides any user id or type in the request.
func (s *SOSService) Raise(reporter models.Identity, req models.RaiseSOSRequest) (*models.SOSAlert, models.DeliveryReport) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultSOSDescription
	}

	if (req.UserID != "" && req.UserID != reporter.UserID) || (req.UserType != "" && models.Role(req.UserType) != reporter.Role) {
		s.logger.WithFields(logrus.Fields{
			"user_id":         reporter.UserID,
			"claimed_user_id": req.UserID,
			"claimed_type":    req.UserType,
		}).Warn("SOS identity does not match the connection, using the connection")
	}

	alert := &models.SOSAlert{
		ID:          uuid.New().String(),
		UserID:      reporter.UserID,
		UserType:    reporter.Role,
		BusID:       strings.TrimSpace(req.BusID),
		Location:    req.Location,
		Description: description,
		Status:      models.SOSStatusActive,
		Timestamp:   s.now().UTC(),
	}

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	copied := *alert
	s.mu.Unlock()

	payload := models.EmergencyAlertPayload{
		Message: alertMessage(&copied),
		Alert:   &copied,
	}
	event := models.NewEvent(models.EventEmergencyAlert, payload)

	report := s.publisher.Publish(models.AdminChannel, event)
	if copied.BusID != "" {
		report.Merge(s.publisher.Publish(models.BusChannel(copied.BusID), event))
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id":  copied.ID,
		"user_id":   copied.UserID,
		"user_type": copied.UserType,
		"bus_id":    copied.BusID,
		"delivered": report.Delivered,
	}).Warn("🚨 SOS alert raised")

	s.persist(copied.ID)
	s.escalate(copied)

	return &copied, report
}

// Resolve marks an alert resolved. Resolving an already resolved alert
// returns it unchanged.
func (s *SOSService) Resolve(alertID string, actor models.Identity) (*models.SOSAlert, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	s.mu.Lock()
	alert, ok := s.alerts[alertID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !alert.IsActive() {
		copied := *alert
		s.mu.Unlock()
		return &copied, nil
	}

	resolvedAt := s.now().UTC()
	resolvedBy := actor.UserID
	alert.Status = models.SOSStatusResolved
	alert.ResolvedAt = &resolvedAt
	alert.ResolvedBy = &resolvedBy
	copied := *alert
	s.mu.Unlock()

	event := models.NewEvent(models.EventSOSResolved, models.EmergencyAlertPayload{
		Message: "SOS alert resolved",
		Alert:   &copied,
	})
	s.publisher.Publish(models.AdminChannel, event)
	if copied.BusID != "" {
		s.publisher.Publish(models.BusChannel(copied.BusID), event)
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id": copied.ID,
		"admin_id": actor.UserID,
	}).Info("SOS alert resolved")

	s.persist(copied.ID)

	return &copied, nil
}

// List returns alerts newest first, optionally only the active ones
func (s *SOSService) List(activeOnly bool) []*models.SOSAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.SOSAlert{}
	for _, alert := range s.alerts {
		if activeOnly && !alert.IsActive() {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Wait blocks until in-flight database writes and SMS escalations finish,
// or ctx is done
func (s *SOSService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist queues a write of the alert's state at the time the write runs,
// so writes finishing out of order still leave the latest state stored
func (s *SOSService) persist(alertID string) {
	if s.sync == nil || s.store == nil {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.sync.Submit("sos:"+alertID, func() error {
			alert, ok := s.snapshot(alertID)
			if !ok {
				return nil
			}
			return s.store.Save(&alert)
		})
	}()
}

func (s *SOSService) snapshot(alertID string) (models.SOSAlert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return models.SOSAlert{}, false
	}
	return *alert, true
}

// escalate texts the escalation phones in the background; a failure is
// logged and never affects the alert
func (s *SOSService) escalate(alert models.SOSAlert) {
	if s.gateway == nil || len(s.phones) == 0 {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), escalationTimeout)
		defer cancel()

		logger := s.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"gateway":  s.gateway.Name(),
		})

		transactionID, err := s.gateway.Send(ctx, s.phones, smsText(&alert))
		if err != nil {
			logger.WithError(err).Error("Failed to send SOS escalation SMS")
			return
		}
		logger.WithField("transaction_id", transactionID).Info("SOS escalation SMS sent")
	}()
}

func alertMessage(alert *models.SOSAlert) string {
	if alert.BusID != "" {
		return fmt.Sprintf("Emergency alert from %s %s on bus %s", alert.UserType, alert.UserID, alert.BusID)
	}
	return fmt.Sprintf("Emergency alert from %s %s", alert.UserType, alert.UserID)
}

func smsText(alert *models.SOSAlert) string {
	text := fmt.Sprintf("SOS: %s. %s. Location %.5f,%.5f",
		alertMessage(alert), alert.Description, alert.Location.Latitude, alert.Location.Longitude)
	if alert.Location.Address != "" {
		text += " (" + alert.Location.Address + ")"
	}
	return text
}
