package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/config"
	"github.com/smarttransit/fleet-sync/internal/utils"
)

// WriteFunc persists the current version of one record
type WriteFunc func() error

// DeadLetter is a write that exhausted its retries
type DeadLetter struct {
	Key       string    `json:"key"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}

// PendingWrite is a queued write waiting for its next attempt
type PendingWrite struct {
	Key         string    `json:"key"`
	Attempts    int       `json:"attempts"`
	NextAttempt time.Time `json:"nextAttempt"`
	LastError   string    `json:"lastError"`
}

// SyncStatus is the admin view of the retry queue
type SyncStatus struct {
	Pending     []PendingWrite `json:"pending"`
	DeadLetters []DeadLetter   `json:"deadLetters"`
	Written     int64          `json:"written"`
	Retried     int64          `json:"retried"`
	LastRun     *time.Time     `json:"lastRun,omitempty"`
	NextRun     *time.Time     `json:"nextRun,omitempty"`
}

type syncItem struct {
	key         string
	write       WriteFunc
	attempts    int
	nextAttempt time.Time
	lastError   string
}

// SyncService writes in-memory state through to the database. A write that
// fails is kept per record key (a newer write for the same key replaces it)
// and retried by a cron job with exponential backoff until it succeeds or
// runs out of attempts.
type SyncService struct {
	cron    *cron.Cron
	entryID cron.EntryID
	cfg     config.SyncConfig
	logger  *logrus.Logger
	now     func() time.Time

	keys *utils.KeyedMutex

	mu      sync.Mutex
	pending map[string]*syncItem
	dead    []DeadLetter
	written int64
	retried int64
	lastRun *time.Time
}

const maxDeadLetters = 100

// NewSyncService creates a new SyncService
func NewSyncService(cfg config.SyncConfig, logger *logrus.Logger) *SyncService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.RetrySchedule == "" {
		cfg.RetrySchedule = "@every 10s"
	}

	return &SyncService{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		keys:    utils.NewKeyedMutex(),
		pending: make(map[string]*syncItem),
	}
}

// Start schedules the retry job
func (s *SyncService) Start() error {
	id, err := s.cron.AddFunc(s.cfg.RetrySchedule, s.retryJob)
	if err != nil {
		return fmt.Errorf("failed to schedule sync retry job: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.RetrySchedule).Info("✓ Sync retry job scheduled")
	return nil
}

// Stop stops the retry job and waits for a running pass to finish
func (s *SyncService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Sync retry job stopped")
}

// Submit attempts a write immediately. On failure the write is queued and
// Submit still returns nil; the error is only logged. Writes for the same
// key run one at a time in submission order.
func (s *SyncService) Submit(key string, write WriteFunc) {
	unlock := s.keys.Lock(key)
	defer unlock()

	err := write()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		// A successful write supersedes any older queued version
		delete(s.pending, key)
		s.written++
		return
	}

	item := &syncItem{key: key, write: write, attempts: 1, lastError: err.Error()}
	item.nextAttempt = s.now().Add(s.backoff(item.attempts))
	s.pending[key] = item

	s.logger.WithFields(logrus.Fields{
		"key":          key,
		"next_attempt": item.nextAttempt,
	}).WithError(err).Warn("Database write failed, queued for retry")
}

// RetryDue runs every queued write whose backoff has elapsed and returns the
// number that succeeded
func (s *SyncService) RetryDue() int {
	return s.retry(false)
}

// Drain retries every queued write regardless of backoff and returns how
// many are still pending afterwards. Used on shutdown.
func (s *SyncService) Drain(ctx context.Context) int {
	for _, key := range s.dueKeys(true) {
		if ctx.Err() != nil {
			break
		}
		s.attempt(key, true)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Status returns a snapshot of the queue
func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SyncStatus{
		Pending:     make([]PendingWrite, 0, len(s.pending)),
		DeadLetters: append([]DeadLetter{}, s.dead...),
		Written:     s.written,
		Retried:     s.retried,
		LastRun:     s.lastRun,
	}
	for _, item := range s.pending {
		status.Pending = append(status.Pending, PendingWrite{
			Key:         item.key,
			Attempts:    item.attempts,
			NextAttempt: item.nextAttempt,
			LastError:   item.lastError,
		})
	}
	sort.Slice(status.Pending, func(i, j int) bool {
		return status.Pending[i].Key < status.Pending[j].Key
	})

	if s.entryID != 0 {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// PendingCount returns the number of queued writes
func (s *SyncService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *SyncService) retryJob() {
	startTime := s.now()
	succeeded := s.retry(false)

	if succeeded > 0 {
		s.logger.WithFields(logrus.Fields{
			"written":  succeeded,
			"duration": time.Since(startTime),
		}).Info("[SYNC] Retried queued writes")
	}
}

func (s *SyncService) retry(force bool) int {
	now := s.now()
	s.mu.Lock()
	s.lastRun = &now
	s.mu.Unlock()

	succeeded := 0
	for _, key := range s.dueKeys(force) {
		if s.attempt(key, force) {
			succeeded++
		}
	}
	return succeeded
}

func (s *SyncService) dueKeys(force bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.pending))
	for key, item := range s.pending {
		if force || !item.nextAttempt.After(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// attempt re-reads the item under the key lock, since a Submit may have
// replaced or cleared it since it was listed
func (s *SyncService) attempt(key string, force bool) bool {
	unlock := s.keys.Lock(key)
	defer unlock()

	s.mu.Lock()
	item, ok := s.pending[key]
	if !ok || (!force && item.nextAttempt.After(s.now())) {
		s.mu.Unlock()
		return false
	}
	write := item.write
	s.mu.Unlock()

	err := write()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried++

	if err == nil {
		delete(s.pending, key)
		s.written++
		s.logger.WithFields(logrus.Fields{
			"key":      key,
			"attempts": item.attempts + 1,
		}).Info("Queued database write succeeded")
		return true
	}

	item.attempts++
	item.lastError = err.Error()

	if item.attempts >= s.cfg.MaxAttempts {
		delete(s.pending, key)
		s.dead = append(s.dead, DeadLetter{
			Key:       key,
			Attempts:  item.attempts,
			LastError: item.lastError,
			FailedAt:  s.now(),
		})
		if len(s.dead) > maxDeadLetters {
			s.dead = s.dead[len(s.dead)-maxDeadLetters:]
		}
		s.logger.WithFields(logrus.Fields{
			"key":      key,
			"attempts": item.attempts,
		}).WithError(err).Error("Giving up on database write")
		return false
	}

	item.nextAttempt = s.now().Add(s.backoff(item.attempts))
	s.logger.WithFields(logrus.Fields{
		"key":          key,
		"attempts":     item.attempts,
		"next_attempt": item.nextAttempt,
	}).WithError(err).Warn("Queued database write failed again")
	return false
}

// backoff returns base * 2^(attempts-1), capped at MaxBackoff
func (s *SyncService) backoff(attempts int) time.Duration {
	delay := s.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return delay
}
