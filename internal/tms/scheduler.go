package tms

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Upper bound for a single scheduled run.
const scheduledRunTimeout = 30 * time.Minute

// Scheduler runs Sync on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	running atomic.Bool
	// RFC 3339 start time of the last complete run, used as updated_since.
	lastSync atomic.Value
	logger   *slog.Logger
}

func NewScheduler(service *Service, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  slog.With("component", "tms-scheduler", "schedule", schedule),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("TMS sync scheduler started")
}

// Stop prevents new runs and waits for a running one to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous TMS sync still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), scheduledRunTimeout)
	defer cancel()

	started := time.Now().UTC()
	filter := Filter{}
	if since, ok := s.lastSync.Load().(string); ok {
		filter.UpdatedSince = since
	}

	result, err := s.service.Sync(ctx, filter)
	if err != nil {
		s.logger.Error("Scheduled TMS sync failed", "error", err)
		return
	}
	s.advance(started, result)
	s.logger.Info("Scheduled TMS sync complete", "synced", result.Synced, "created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
}

// advance moves the incremental window forward. A run that skipped records
// keeps the old window so they are fetched again once their owner exists.
func (s *Scheduler) advance(started time.Time, result *Result) {
	if result.Skipped > 0 {
		s.logger.Warn("Keeping TMS sync window, records were skipped", "skipped", result.Skipped)
		return
	}
	s.lastSync.Store(started.Format(time.RFC3339))
}
