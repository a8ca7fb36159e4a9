package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/repository"

	"github.com/rs/zerolog"
)

// RetentionScheduler trims rank history on its own ticker, independent of
// the poll loop.
type RetentionScheduler struct {
	repo      *repository.HistoryRepository
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger

	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	done      chan struct{}
	lastRun   time.Time
	lastError error
	removed   int64
}

// RetentionStatus is a point-in-time view of the scheduler.
type RetentionStatus struct {
	Running   bool
	Interval  time.Duration
	LastRun   time.Time
	LastError error
	Removed   int64
}

func NewRetentionScheduler(repo *repository.HistoryRepository, cfg *config.Config, logger zerolog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		repo:      repo,
		retention: cfg.RetentionWindow,
		interval:  cfg.TrimInterval,
		logger:    logger.With().Str("component", "retention").Logger(),
	}
}

// Start trims once immediately, then every interval.
func (s *RetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("retention scheduler is already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid trim interval: %s", s.interval)
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stopChan, s.done)

	s.logger.Info().Dur("interval", s.interval).Dur("retention", s.retention).Msg("retention scheduler started")
	return nil
}

// Stop blocks until an in-progress trim completes.
func (s *RetentionScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention scheduler is not running")
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("retention scheduler stopped")
	return nil
}

func (s *RetentionScheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-stop:
			return
		}
	}
}

// RunOnce trims expired observations and records the outcome.
func (s *RetentionScheduler) RunOnce() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	removed, err := s.repo.Trim(ctx, s.retention)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastError = err
	if err == nil {
		s.removed += removed
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("retention trim failed")
	}
	return removed, err
}

func (s *RetentionScheduler) Status() RetentionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RetentionStatus{
		Running:   s.running,
		Interval:  s.interval,
		LastRun:   s.lastRun,
		LastError: s.lastError,
		Removed:   s.removed,
	}
}
