// Package scheduler computes next run times for scheduled queries and drives
// the optional in-process cron tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var descriptors = map[domain.Frequency]string{
	domain.FrequencyDaily:   "@daily",
	domain.FrequencyWeekly:  "@weekly",
	domain.FrequencyMonthly: "@monthly",
}

// NextRun returns the first boundary of freq strictly after from, in UTC.
func NextRun(freq domain.Frequency, from time.Time) (time.Time, error) {
	spec, ok := descriptors[freq]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", freq)
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", spec, err)
	}
	return schedule.Next(from.UTC()), nil
}

// Tick is the work run on every cron fire.
type Tick func(ctx context.Context) error

// Scheduler fires a Tick on a cron expression. Overlapping fires are skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	tick   Tick
	logger infralogger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	busy   bool
}

func New(spec string, tick Tick, log infralogger.Logger) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{cron: c, spec: spec, tick: tick, logger: log}, nil
}

// Start registers the tick and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.spec, s.fire); err != nil {
		s.cancel()
		return fmt.Errorf("add cron func: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", infralogger.String("spec", s.spec))
	return nil
}

// Stop cancels in-flight work and waits for the running tick to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.logger.Warn("Previous scheduler tick still running, skipping")
		return
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	started := time.Now()
	if err := s.tick(s.ctx); err != nil {
		s.logger.Error("Scheduler tick failed", infralogger.Error(err))
		return
	}
	s.logger.Info("Scheduler tick completed", infralogger.Duration("duration", time.Since(started)))
}
