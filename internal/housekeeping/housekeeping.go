// Package housekeeping runs the periodic cleanup the API depends on:
// sweeping expired artifact tokens and reaping finished generation jobs.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"edugen/internal/clock"
	"edugen/internal/infra"
)

// DefaultSpec runs both tasks once a minute.
const DefaultSpec = "@every 1m"

// Sweeper is implemented by token stores.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reaper is implemented by the generation orchestrator.
type Reaper interface {
	Reap(now time.Time) int
}

type Options struct {
	Tokens    Sweeper
	Jobs      Reaper
	Clock     clock.Clock
	Logger    *infra.Logger
	SweepSpec string
	ReapSpec  string
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron   *cron.Cron
	tokens Sweeper
	jobs   Reaper
	clock  clock.Clock
	logger *infra.Logger
}

// New registers the tasks. Either collaborator may be nil to skip its task.
func New(opts Options) (*Scheduler, error) {
	if opts.Tokens == nil && opts.Jobs == nil {
		return nil, errors.New("housekeeping: nothing to schedule")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		l := zerolog.New(io.Discard)
		opts.Logger = &l
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		tokens: opts.Tokens,
		jobs:   opts.Jobs,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if s.tokens != nil {
		if _, err := s.cron.AddFunc(specOr(opts.SweepSpec), func() { s.SweepTokens(context.Background()) }); err != nil {
			return nil, fmt.Errorf("housekeeping: sweep schedule: %w", err)
		}
	}
	if s.jobs != nil {
		if _, err := s.cron.AddFunc(specOr(opts.ReapSpec), func() { s.ReapJobs() }); err != nil {
			return nil, fmt.Errorf("housekeeping: reap schedule: %w", err)
		}
	}
	return s, nil
}

func specOr(spec string) string {
	if spec == "" {
		return DefaultSpec
	}
	return spec
}

// Start begins running tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("tasks", len(s.cron.Entries())).Msg("housekeeping: scheduler started")
}

// Stop prevents new runs and waits for running tasks or ctx, whichever
// ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info().Msg("housekeeping: scheduler stopped")
}

// SweepTokens removes expired tokens once.
func (s *Scheduler) SweepTokens(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.tokens.Sweep(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("housekeeping: token sweep failed")
		return 0
	}
	if n > 0 {
		s.logger.Debug().Int("removed", n).Msg("housekeeping: swept tokens")
	}
	return n
}

// ReapJobs drops finished jobs past their retention once.
func (s *Scheduler) ReapJobs() int {
	n := s.jobs.Reap(s.clock.Now())
	if n > 0 {
		s.logger.Debug().Int("removed", n).Msg("housekeeping: reaped jobs")
	}
	return n
}
