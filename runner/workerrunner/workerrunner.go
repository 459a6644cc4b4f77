// Package workerrunner consumes queued sync tasks from Redis.
package workerrunner

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/Vector/gbp-ops-sync/redis"
	"github.com/Vector/gbp-ops-sync/redis/config"
	"github.com/Vector/gbp-ops-sync/redis/tasks"
	"github.com/Vector/gbp-ops-sync/runner"
)

type workerrunner struct {
	srv  *redis.Server
	mux  *asynq.ServeMux
	deps *runner.Deps
}

// New wires the queue worker on top of the shared dependency graph.
func New(cfg *runner.Config) (runner.Runner, error) {
	redisCfg, err := config.NewRedisConfig()
	if err != nil {
		return nil, err
	}

	deps, err := runner.BuildDeps(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	handler := tasks.NewHandler(deps.Engine,
		tasks.WithDefaultTargets(cfg.App.GBPAccountID, cfg.App.GBPLocationID),
		tasks.WithLogger(deps.Log))

	return &workerrunner{
		srv:  redis.NewServer(redisCfg, deps.Log),
		mux:  tasks.NewServeMux(handler),
		deps: deps,
	}, nil
}

func (w *workerrunner) Run(ctx context.Context) error {
	if err := w.srv.Start(w.mux); err != nil {
		return err
	}

	<-ctx.Done()

	w.srv.Shutdown(ctx)

	return nil
}

func (w *workerrunner) Close(context.Context) error {
	return w.deps.Close()
}
