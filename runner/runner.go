// Package runner selects and configures the process entry points: the
// HTTP API server, the one-shot sync run, the queue worker and the
// periodic scheduler.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/config"
)

// RunMode selects which entry point the process runs.
type RunMode int

const (
	// RunModeWeb serves the HTTP API.
	RunModeWeb RunMode = iota + 1
	// RunModeSync performs one scheduled sync pass over every entity
	// and exits.
	RunModeSync
	// RunModeWorker consumes queued sync tasks.
	RunModeWorker
	// RunModeScheduler enqueues periodic sync tasks.
	RunModeScheduler
)

// ErrInvalidRunMode is returned by the runner factory for modes it does
// not know.
var ErrInvalidRunMode = errors.New("invalid run mode")

// Runner is a process entry point.
type Runner interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config is the parsed command line plus the resolved environment
// configuration.
type Config struct {
	RunMode RunMode
	Addr    string
	Debug   bool
	// SyncMode is the sync mode for one-shot runs: insert, sync or
	// incremental.
	SyncMode string

	App *config.AppConfig
}

// ParseConfig parses flags and the environment. It panics on invalid
// configuration since nothing can run without it.
func ParseConfig() *Config {
	cfg := Config{}

	var (
		web       bool
		syncOnce  bool
		worker    bool
		scheduler bool
	)

	flag.BoolVar(&web, "web", false, "run the HTTP API server")
	flag.BoolVar(&syncOnce, "sync", false, "run one full sync pass and exit")
	flag.BoolVar(&worker, "worker", false, "run the queue worker")
	flag.BoolVar(&scheduler, "scheduler", false, "run the periodic task scheduler")
	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on in web mode")
	flag.StringVar(&cfg.SyncMode, "mode", "sync", "sync mode for -sync runs (insert, sync, incremental)")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	flag.Parse()

	selected := 0

	for _, on := range []bool{web, syncOnce, worker, scheduler} {
		if on {
			selected++
		}
	}

	if selected > 1 {
		panic("only one of -web, -sync, -worker, -scheduler may be set")
	}

	switch {
	case syncOnce:
		cfg.RunMode = RunModeSync
	case worker:
		cfg.RunMode = RunModeWorker
	case scheduler:
		cfg.RunMode = RunModeScheduler
	default:
		cfg.RunMode = RunModeWeb
	}

	app, err := config.NewAppConfig()
	if err != nil {
		panic(err)
	}

	if app.DatabaseDSN == "" {
		panic("DATABASE_URL is required")
	}

	cfg.App = app

	return &cfg
}

// NewLogger builds the process logger.
func NewLogger(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)

	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}

	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}

	return log
}
