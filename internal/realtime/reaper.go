package realtime

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper unregisters connections that stopped sending heartbeats. Seat
// reservations and other state owned by the user are left alone.
type Reaper struct {
	registry *Registry
	logger   *logrus.Logger
	timeout  time.Duration
	interval time.Duration
	stopCh   chan struct{}
}

// NewReaper creates a reaper sweeping every interval for connections silent
// longer than timeout
func NewReaper(registry *Registry, timeout, interval time.Duration, logger *logrus.Logger) *Reaper {
	if interval <= 0 {
		interval = timeout / 3
	}
	return &Reaper{
		registry: registry,
		logger:   logger,
		timeout:  timeout,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep
func (r *Reaper) Start() {
	r.logger.WithFields(logrus.Fields{
		"timeout":  r.timeout.String(),
		"interval": r.interval.String(),
	}).Info("Starting connection reaper")
	go r.run()
}

// Stop stops the background sweep
func (r *Reaper) Stop() {
	r.logger.Info("Stopping connection reaper")
	close(r.stopCh)
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-r.stopCh:
			return
		}
	}
}

// Sweep removes every connection silent since before now-timeout and returns
// how many were removed
func (r *Reaper) Sweep(now time.Time) int {
	stale := r.registry.Stale(now.Add(-r.timeout))

	reaped := 0
	for _, conn := range stale {
		if _, ok := r.registry.Unregister(conn.ID); !ok {
			continue
		}
		conn.Close()
		reaped++

		r.logger.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"user_id":       conn.UserID,
			"last_seen":     conn.LastSeen(),
		}).Info("Reaped silent connection")
	}
	return reaped
}
