// Package schedule triggers cycles on a cron expression.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/orchestrator"
)

// Starter starts a cycle in the background.
type Starter interface {
	StartCycle(ctx context.Context) (string, error)
}

// Scheduler fires StartCycle on a standard five-field cron spec.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	spec    string
}

// New parses spec and returns a stopped Scheduler. Pass cron.WithLocation
// to evaluate the spec outside the local zone.
func New(spec string, starter Starter, opts ...cron.Option) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, eris.Wrapf(err, "schedule: parse %q", spec)
	}
	return &Scheduler{cron: cron.New(opts...), starter: starter, spec: spec}, nil
}

// Run registers the trigger and blocks until ctx is done. Starts rejected
// because a cycle is already running are logged and dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Fire(ctx) }); err != nil {
		return eris.Wrapf(err, "schedule: register %q", s.spec)
	}
	s.cron.Start()
	zap.L().Info("schedule: started", zap.String("cron", s.spec))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	zap.L().Info("schedule: stopped")
	return nil
}

// Fire runs one trigger.
func (s *Scheduler) Fire(ctx context.Context) {
	id, err := s.starter.StartCycle(ctx)
	switch {
	case eris.Is(err, orchestrator.ErrCycleRunning):
		zap.L().Info("schedule: cycle already running, trigger skipped")
	case err != nil:
		zap.L().Error("schedule: start cycle", zap.Error(err))
	default:
		zap.L().Info("schedule: cycle triggered", zap.String("cycle_id", id))
	}
}
