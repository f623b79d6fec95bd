package orchestrator

import (
	"context"
	"time"

	"github.com/adloophq/adloop-backend/internal/logger"
)

type SchedulerConfig struct {
	PollInterval  time.Duration
	MaxJobsPerRun int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:  5 * time.Second,
		MaxJobsPerRun: 10,
	}
}

// Scheduler polls the orchestrator for due jobs and executes them serially.
type Scheduler struct {
	log  *logger.Logger
	orch *Orchestrator
	cfg  SchedulerConfig
}

func NewScheduler(log *logger.Logger, orch *Orchestrator, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxJobsPerRun <= 0 {
		cfg.MaxJobsPerRun = 10
	}
	return &Scheduler{
		log:  log.With("service", "Scheduler"),
		orch: orch,
		cfg:  cfg,
	}
}

// RunOnce drains up to MaxJobsPerRun due jobs. It stops early on the first
// failed job: the failed flow's state is unchanged, so continuing would
// retry it immediately in the same pass.
func (s *Scheduler) RunOnce(ctx context.Context) ([]JobResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	results, err := s.orch.RunJobs(ctx, nil, s.cfg.MaxJobsPerRun)
	if err != nil {
		return results, err
	}
	if n := len(results); n > 0 && !results[n-1].Success {
		s.log.Warn("Stopped pass on failed job", "type", results[n-1].Job.Type, "error", results[n-1].Error)
	}
	return results, nil
}

// RunLoop polls until the context is canceled.
func (s *Scheduler) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.log.Info("Scheduler started", "poll_interval", s.cfg.PollInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			results, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Error("Scheduler pass failed", "error", err)
				continue
			}
			if len(results) > 0 {
				s.log.Info("Scheduler pass finished", "jobs", len(results))
			}
		}
	}
}
