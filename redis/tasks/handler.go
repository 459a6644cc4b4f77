// Package tasks provides the asynq task handler for queued sync runs.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/models"
	"github.com/Vector/gbp-ops-sync/syncer"
)

// SyncEngine is the slice of the syncer the worker drives.
type SyncEngine interface {
	SyncReviews(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncMedia(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncPosts(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncLocations(ctx context.Context, accountID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncAnalytics(ctx context.Context, locationID string) (*models.SyncJob, error)
	SyncContacts(ctx context.Context, mode syncer.Mode) (*models.SyncJob, error)
}

// TaskHandler handles processing of queued tasks.
type TaskHandler interface {
	ProcessTask(ctx context.Context, task *asynq.Task) error
}

// Handler implements TaskHandler on top of a SyncEngine.
type Handler struct {
	engine      SyncEngine
	log         *zap.Logger
	taskTimeout time.Duration

	// Defaults applied when a payload does not name its own targets.
	accountID  string
	locationID string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithTaskTimeout bounds the processing of a single task.
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

// WithDefaultTargets sets the account and location used when the task
// payload omits them.
func WithDefaultTargets(accountID, locationID string) HandlerOption {
	return func(h *Handler) {
		h.accountID = accountID
		h.locationID = locationID
	}
}

// WithLogger sets the handler logger.
func WithLogger(log *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler creates a task handler for the given engine.
func NewHandler(engine SyncEngine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:      engine,
		log:         zap.NewNop(),
		taskTimeout: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask dispatches a task to the matching synchronizer.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	if task.Type() == TypeHealthCheck {
		return nil
	}

	payload, err := h.decodePayload(task)
	if err != nil {
		return err
	}

	mode, err := syncer.ParseMode(payload.Mode)
	if err != nil {
		return fmt.Errorf("task %s: %w", task.Type(), err)
	}

	var job *models.SyncJob

	switch task.Type() {
	case TypeSyncReviews:
		job, err = h.engine.SyncReviews(ctx, payload.AccountID, payload.LocationID, mode)
	case TypeSyncMedia:
		job, err = h.engine.SyncMedia(ctx, payload.AccountID, payload.LocationID, mode)
	case TypeSyncPosts:
		job, err = h.engine.SyncPosts(ctx, payload.AccountID, payload.LocationID, mode)
	case TypeSyncLocations:
		job, err = h.engine.SyncLocations(ctx, payload.AccountID, mode)
	case TypeSyncAnalytics:
		job, err = h.engine.SyncAnalytics(ctx, payload.LocationID)
	case TypeSyncContacts:
		job, err = h.engine.SyncContacts(ctx, mode)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type())
	}

	if err != nil {
		return fmt.Errorf("task %s: %w", task.Type(), err)
	}

	h.log.Info("task completed",
		zap.String("task_type", task.Type()),
		zap.String("job_id", job.ID),
		zap.Int("fetched", job.Counts.Fetched))

	return nil
}

// NewServeMux registers the handler for every known task type. asynq
// muxes match by pattern prefix, so each type is registered explicitly.
func NewServeMux(h TaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.Handle(TypeHealthCheck, h)

	for _, taskType := range AllSyncTypes {
		mux.Handle(taskType, h)
	}

	return mux
}

func (h *Handler) decodePayload(task *asynq.Task) (*SyncPayload, error) {
	payload := &SyncPayload{}

	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), payload); err != nil {
			return nil, fmt.Errorf("task %s: malformed payload: %w", task.Type(), err)
		}
	}

	if payload.AccountID == "" {
		payload.AccountID = h.accountID
	}

	if payload.LocationID == "" {
		payload.LocationID = h.locationID
	}

	return payload, nil
}
