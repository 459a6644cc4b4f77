package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/redis/config"
)

// Server wraps the asynq worker server.
type Server struct {
	server *asynq.Server
	cfg    *config.RedisConfig
	log    *zap.Logger
	mu     sync.Mutex
}

// NewServer creates a worker server with exponential retry backoff
// capped at the configured retry interval.
func NewServer(cfg *config.RedisConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Workers,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				if n >= cfg.MaxRetries {
					log.Error("task exhausted retries",
						zap.String("task_type", task.Type()),
						zap.Error(err))

					return -1 * time.Second
				}

				delay := time.Duration(1<<uint(n)) * time.Second
				if delay > cfg.RetryInterval {
					delay = cfg.RetryInterval
				}

				log.Warn("task failed, retry scheduled",
					zap.String("task_type", task.Type()),
					zap.Int("attempt", n),
					zap.Duration("delay", delay),
					zap.Error(err))

				return delay
			},
			Queues:         cfg.QueuePriorities,
			StrictPriority: true,
		},
	)

	return &Server{
		server: srv,
		cfg:    cfg,
		log:    log,
	}
}

// Start runs the worker with the provided mux.
func (s *Server) Start(mux *asynq.ServeMux) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight tasks and stops the worker.
func (s *Server) Shutdown(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server.Shutdown()
}
