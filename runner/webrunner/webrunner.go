// Package webrunner serves the HTTP API.
package webrunner

import (
	"context"

	"github.com/Vector/gbp-ops-sync/runner"
	"github.com/Vector/gbp-ops-sync/web"
)

type webrunner struct {
	srv  *web.Server
	deps *runner.Deps
}

// New wires the API server on top of the shared dependency graph.
func New(cfg *runner.Config) (runner.Runner, error) {
	deps, err := runner.BuildDeps(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	svc := web.NewService(deps.Engine, deps.Jobs, deps.Connections, deps.Tokens,
		cfg.App.GBPAccountID, cfg.App.GBPLocationID, deps.Log)

	srv := web.NewServer(svc, web.Config{
		Addr:       cfg.Addr,
		APIKey:     cfg.App.APIKey,
		CronSecret: cfg.App.CronSecret,
	}, deps.Log)

	return &webrunner{srv: srv, deps: deps}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	return w.srv.Start(ctx)
}

func (w *webrunner) Close(context.Context) error {
	return w.deps.Close()
}
