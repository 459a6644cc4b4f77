package runner

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/credentials"
	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/gbp/token"
	"github.com/Vector/gbp-ops-sync/hubspot"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/postgres"
	"github.com/Vector/gbp-ops-sync/syncer"
)

// Deps is the shared dependency graph behind every run mode: the two
// database layers, the credential chain and the sync engine.
type Deps struct {
	SQL         *sql.DB
	Connections postgres.ConnectionRepository
	Jobs        postgres.JobLogRepository
	Store       *database.Db
	Tokens      *token.Manager
	GBP         *gbp.Client
	HubSpot     *hubspot.Client
	Engine      *syncer.Syncer
	Log         *zap.Logger
}

// BuildDeps wires the full dependency graph from the resolved
// configuration.
func BuildDeps(ctx context.Context, cfg *Config) (*Deps, error) {
	log := NewLogger(cfg.Debug)
	app := cfg.App

	db, err := postgres.Open(ctx, app.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := postgres.CreateSchema(ctx, db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	engine, err := database.OpenEngine(app.DatabaseDSN)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to open entity store: %w", err)
	}

	store, err := database.New(engine, log)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	connections := postgres.NewConnectionRepository(db)
	jobs := postgres.NewJobLogRepository(db)

	var broker credentials.Broker

	if app.PipedreamAPIToken != "" && app.PipedreamProjectID != "" {
		broker = credentials.NewPipedreamClient(app.PipedreamAPIToken, app.PipedreamProjectID, app.PipedreamEnv, log)
	}

	resolver := credentials.NewResolver(connections, broker, app, log)

	tokens := token.NewManager(resolver, log,
		token.WithStaticFallback(app.GoogleAccessToken))

	gbpClient := gbp.NewClient(app.GoogleAccessToken, tokens,
		gbp.WithAccountID(app.GBPAccountID),
		gbp.WithLocationID(app.GBPLocationID),
		gbp.WithLogger(log))

	var hs *hubspot.Client

	if app.HubSpotToken != "" {
		hs = hubspot.NewClient(app.HubSpotToken, log)
	} else {
		log.Warn("HUBSPOT_ACCESS_TOKEN not set, contact sync disabled")
	}

	// A nil *hubspot.Client must stay a nil interface inside the
	// syncer so the disabled-CRM check fires.
	var crm syncer.HubSpotClient
	if hs != nil {
		crm = hs
	}

	eng := syncer.New(gbpClient, crm, store, jobs, log)

	return &Deps{
		SQL:         db,
		Connections: connections,
		Jobs:        jobs,
		Store:       store,
		Tokens:      tokens,
		GBP:         gbpClient,
		HubSpot:     hs,
		Engine:      eng,
		Log:         log,
	}, nil
}

// Close releases both database handles.
func (d *Deps) Close() error {
	var errs error

	if d.Store != nil && d.Store.Engine != nil {
		if gormDB, err := d.Store.Engine.DB(); err == nil {
			errs = multierr.Append(errs, gormDB.Close())
		}
	}

	if d.SQL != nil {
		errs = multierr.Append(errs, d.SQL.Close())
	}

	_ = d.Log.Sync()

	return errs
}
