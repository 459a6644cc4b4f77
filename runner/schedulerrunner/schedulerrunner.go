// Package schedulerrunner enqueues periodic sync tasks.
package schedulerrunner

import (
	"context"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/redis"
	"github.com/Vector/gbp-ops-sync/redis/config"
	"github.com/Vector/gbp-ops-sync/runner"
)

type schedulerrunner struct {
	scheduler *redis.Scheduler
	cfg       *runner.Config
	log       *zap.Logger
}

// New creates the periodic scheduler. It needs no database access, only
// Redis.
func New(cfg *runner.Config) (runner.Runner, error) {
	redisCfg, err := config.NewRedisConfig()
	if err != nil {
		return nil, err
	}

	log := runner.NewLogger(cfg.Debug)

	return &schedulerrunner{
		scheduler: redis.NewScheduler(redisCfg, log),
		cfg:       cfg,
		log:       log,
	}, nil
}

func (s *schedulerrunner) Run(ctx context.Context) error {
	done := make(chan error, 1)

	go func() {
		done <- s.scheduler.Run(s.cfg.App.GBPAccountID, s.cfg.App.GBPLocationID)
	}()

	select {
	case <-ctx.Done():
		s.scheduler.Shutdown()

		return <-done
	case err := <-done:
		return err
	}
}

func (s *schedulerrunner) Close(context.Context) error {
	_ = s.log.Sync()

	return nil
}
