package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Defaults for the housekeeping jobs.
const (
	DefaultPruneSpec      = "@daily"
	DefaultDigestSpec     = "@every 15m"
	DefaultEventRetention = 30 * 24 * time.Hour

	jobTimeout = time.Minute
)

// PendingCounter counts signals by status.
type PendingCounter interface {
	CountByStatus(ctx context.Context, status models.SignalStatus) (int, error)
}

// PendingNotifier receives the pending backlog digest.
type PendingNotifier interface {
	PendingCount(count int)
}

// Options configures the housekeeping jobs. An empty spec disables a job.
type Options struct {
	PruneSpec      string
	EventRetention time.Duration
	DigestSpec     string
}

// Scheduler runs periodic housekeeping: audit trail pruning and the pending
// backlog digest.
type Scheduler struct {
	cron     *cron.Cron
	eventSvc services.EventServiceProvider
	signals  PendingCounter
	notifier PendingNotifier
	opts     Options
}

// NewScheduler creates a new scheduler instance and registers its jobs.
// notifier may be nil.
func NewScheduler(eventSvc services.EventServiceProvider, signals PendingCounter, notifier PendingNotifier, opts Options) (*Scheduler, error) {
	if opts.EventRetention <= 0 {
		opts.EventRetention = DefaultEventRetention
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		eventSvc: eventSvc,
		signals:  signals,
		notifier: notifier,
		opts:     opts,
	}

	if opts.PruneSpec != "" {
		if _, err := s.cron.AddFunc(opts.PruneSpec, func() { s.runJob("prune_events", s.pruneEvents) }); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", opts.PruneSpec, err)
		}
	}
	if opts.DigestSpec != "" {
		if _, err := s.cron.AddFunc(opts.DigestSpec, func() { s.runJob("pending_digest", s.pendingDigest) }); err != nil {
			return nil, fmt.Errorf("invalid digest schedule %q: %w", opts.DigestSpec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting background scheduler...")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info().Msg("Background scheduler stopped.")
	case <-ctx.Done():
		log.Warn().Msg("Background scheduler stop timed out with jobs still running.")
	}
}

func (s *Scheduler) runJob(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := job(ctx); err != nil {
		log.Error().Err(err).Str("job", name).Msg("Scheduler: job failed")
	}
}

// pruneEvents deletes audit events older than the retention window.
func (s *Scheduler) pruneEvents(ctx context.Context) error {
	n, err := s.eventSvc.PruneEvents(ctx, s.opts.EventRetention)
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", n).Dur("retention", s.opts.EventRetention).Msg("Scheduler: pruned audit events")
	if n > 0 {
		msg := fmt.Sprintf("Pruned %d audit events older than %s.", n, s.opts.EventRetention)
		if err := s.eventSvc.CreateEvent(ctx, "events.prune", "info", msg, nil, nil); err != nil {
			log.Warn().Err(err).Msg("Scheduler: failed to record prune event")
		}
	}
	return nil
}

// pendingDigest reports the review backlog to admins.
func (s *Scheduler) pendingDigest(ctx context.Context) error {
	count, err := s.signals.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		return err
	}
	log.Info().Int("pending", count).Msg("Scheduler: pending signal backlog")
	if s.notifier != nil {
		s.notifier.PendingCount(count)
	}
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
