package redis

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/redis/config"
	"github.com/Vector/gbp-ops-sync/redis/tasks"
)

// Scheduler registers periodic sync tasks for every entity.
type Scheduler struct {
	scheduler *asynq.Scheduler
	cfg       *config.RedisConfig
	log       *zap.Logger
}

// NewScheduler creates the periodic enqueuer.
func NewScheduler(cfg *config.RedisConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	return &Scheduler{
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{}),
		cfg:       cfg,
		log:       log,
	}
}

// Run registers one periodic entry per entity and blocks until shutdown.
func (s *Scheduler) Run(accountID, locationID string) error {
	payload, err := json.Marshal(tasks.SyncPayload{
		AccountID:  accountID,
		LocationID: locationID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal schedule payload: %w", err)
	}

	spec := fmt.Sprintf("@every %s", s.cfg.SyncInterval)

	for _, taskType := range tasks.AllSyncTypes {
		entryID, err := s.scheduler.Register(
			spec,
			asynq.NewTask(taskType, payload),
			asynq.Queue(tasks.PriorityDefault),
		)
		if err != nil {
			return fmt.Errorf("failed to register %s schedule: %w", taskType, err)
		}

		s.log.Info("registered periodic sync",
			zap.String("task_type", taskType),
			zap.String("entry_id", entryID),
			zap.String("spec", spec))
	}

	return s.scheduler.Run()
}

// Shutdown stops the scheduler.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
