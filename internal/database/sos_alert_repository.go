package database

import (
	"fmt"

	"github.com/smarttransit/fleet-sync/internal/models"
)

// SOSAlertRepository handles database operations for sos_alerts table
type SOSAlertRepository struct {
	db DB
}

// NewSOSAlertRepository creates a new SOSAlertRepository
func NewSOSAlertRepository(db DB) *SOSAlertRepository {
	return &SOSAlertRepository{db: db}
}

// Save inserts an alert or records its resolution
func (r *SOSAlertRepository) Save(alert *models.SOSAlert) error {
	alert.FlattenLocation()

	query := `
		INSERT INTO sos_alerts (
			id, user_id, user_type, bus_id, latitude, longitude, address,
			description, status, created_at, resolved_by, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.db.Exec(query,
		alert.ID,
		alert.UserID,
		alert.UserType,
		alert.BusID,
		alert.Latitude,
		alert.Longitude,
		alert.Address,
		alert.Description,
		alert.Status,
		alert.Timestamp,
		alert.ResolvedBy,
		alert.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sos alert %s: %w", alert.ID, err)
	}

	return nil
}

// ListActive returns unresolved alerts, newest first
func (r *SOSAlertRepository) ListActive() ([]*models.SOSAlert, error) {
	query := `
		SELECT id, user_id, user_type, bus_id, latitude, longitude, address,
			description, status, created_at, resolved_by, resolved_at
		FROM sos_alerts
		WHERE status = 'active'
		ORDER BY created_at DESC
	`

	var alerts []*models.SOSAlert
	if err := r.db.Select(&alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list active sos alerts: %w", err)
	}

	for _, alert := range alerts {
		alert.ExpandLocation()
	}

	return alerts, nil
}
