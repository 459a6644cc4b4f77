// Package syncrunner performs one sync pass over every entity and
// exits. It backs cron-style deployments that have no long-lived
// process.
package syncrunner

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/models"
	"github.com/Vector/gbp-ops-sync/runner"
	"github.com/Vector/gbp-ops-sync/syncer"
)

type syncrunner struct {
	deps *runner.Deps
	mode syncer.Mode
}

// New wires a one-shot sync run.
func New(cfg *runner.Config) (runner.Runner, error) {
	mode, err := syncer.ParseMode(cfg.SyncMode)
	if err != nil {
		return nil, err
	}

	deps, err := runner.BuildDeps(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &syncrunner{deps: deps, mode: mode}, nil
}

// Run syncs every entity in dependency order. A failing entity is
// reported but does not stop the remaining syncs.
func (s *syncrunner) Run(ctx context.Context) error {
	eng := s.deps.Engine
	log := s.deps.Log

	steps := []struct {
		entity string
		run    func(context.Context) (*models.SyncJob, error)
	}{
		{"locations", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncLocations(ctx, "", s.mode)
		}},
		{"reviews", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncReviews(ctx, "", "", s.mode)
		}},
		{"media", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncMedia(ctx, "", "", s.mode)
		}},
		{"posts", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncPosts(ctx, "", "", s.mode)
		}},
		{"analytics", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncAnalytics(ctx, "")
		}},
		{"contacts", func(ctx context.Context) (*models.SyncJob, error) {
			return eng.SyncContacts(ctx, s.mode)
		}},
	}

	var errs error

	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := step.run(ctx)
		if err != nil {
			log.Error("entity sync failed",
				zap.String("entity", step.entity),
				zap.Error(err))

			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.entity, err))

			continue
		}

		log.Info("entity sync finished",
			zap.String("entity", step.entity),
			zap.String("job_id", job.ID),
			zap.String("status", job.Status),
			zap.Int("fetched", job.Counts.Fetched),
			zap.Int("created", job.Counts.Created),
			zap.Int("updated", job.Counts.Updated),
			zap.Int("skipped", job.Counts.Skipped))
	}

	return errs
}

func (s *syncrunner) Close(context.Context) error {
	return s.deps.Close()
}
