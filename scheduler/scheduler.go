package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the daily rank cache as seen by the scheduler.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context, asOf time.Time) error
}

// Scheduler warms the rank cache shortly after midnight so the first reader
// of a new day does not pay for the scan. Lazy refresh on read stays in place.
type Scheduler struct {
	cron      *cron.Cron
	location  *time.Location
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

func New(loc *time.Location, refresher Refresher, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		location:  loc,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule sets the refresh job to spec, a standard five field cron
// expression evaluated in the scheduler's location. It replaces any job set
// before.
func (s *Scheduler) Schedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(context.Background()) })
	if err != nil {
		return fmt.Errorf("add cron job %q: %w", spec, err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = entryID
	return nil
}

// RunNow refreshes the rank cache for the current day.
func (s *Scheduler) RunNow(ctx context.Context) error {
	asOf := s.now().In(s.location)
	if err := s.refresher.RefreshIfNeeded(ctx, asOf); err != nil {
		s.logger.Error("scheduled rank refresh failed", "asOf", asOf, "error", err)
		return err
	}
	s.logger.Debug("scheduled rank refresh done", "asOf", asOf)
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}
