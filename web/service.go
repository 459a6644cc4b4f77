// Package web exposes the HTTP trigger surface of the sync service:
// manual and scheduled sync triggers, the job log, and connection
// management.
package web

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/models"
	"github.com/Vector/gbp-ops-sync/syncer"
)

// SyncEngine is the slice of the syncer the API drives.
type SyncEngine interface {
	SyncReviews(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncMedia(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncPosts(ctx context.Context, accountID, locationID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncLocations(ctx context.Context, accountID string, mode syncer.Mode) (*models.SyncJob, error)
	SyncAnalytics(ctx context.Context, locationID string) (*models.SyncJob, error)
	SyncContacts(ctx context.Context, mode syncer.Mode) (*models.SyncJob, error)
}

// JobStore lists job-log entries.
type JobStore interface {
	Select(ctx context.Context, params models.SelectJobsParams) ([]models.SyncJob, error)
}

// ConnectionStore manages connection records.
type ConnectionStore interface {
	Create(ctx context.Context, conn *models.Connection) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Connection, error)
}

// TokenCache is the token-manager surface the connection endpoints use.
type TokenCache interface {
	CacheToken(connectionID, accessToken, refreshToken string, expiresIn time.Duration)
	ClearCache(connectionID string)
}

// Service wires the API handlers to the sync engine and stores.
type Service struct {
	engine      SyncEngine
	jobs        JobStore
	connections ConnectionStore
	tokens      TokenCache
	log         *zap.Logger

	// Defaults for scheduled full syncs.
	accountID  string
	locationID string
}

// NewService creates the API service. accountID and locationID are the
// defaults applied when a trigger does not name its own.
func NewService(engine SyncEngine, jobs JobStore, connections ConnectionStore, tokens TokenCache, accountID, locationID string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		engine:      engine,
		jobs:        jobs,
		connections: connections,
		tokens:      tokens,
		log:         log,
		accountID:   accountID,
		locationID:  locationID,
	}
}

// TriggerSync runs one entity sync synchronously and returns its job
// record.
func (s *Service) TriggerSync(ctx context.Context, entity string, mode syncer.Mode, accountID, locationID string) (*models.SyncJob, error) {
	if accountID == "" {
		accountID = s.accountID
	}

	if locationID == "" {
		locationID = s.locationID
	}

	switch entity {
	case "reviews":
		return s.engine.SyncReviews(ctx, accountID, locationID, mode)
	case "media":
		return s.engine.SyncMedia(ctx, accountID, locationID, mode)
	case "posts":
		return s.engine.SyncPosts(ctx, accountID, locationID, mode)
	case "locations":
		return s.engine.SyncLocations(ctx, accountID, mode)
	case "analytics":
		return s.engine.SyncAnalytics(ctx, locationID)
	case "contacts":
		return s.engine.SyncContacts(ctx, mode)
	default:
		return nil, validationError("unknown sync entity %q", entity)
	}
}

// cronEntities is the fixed order of the scheduled full sync.
var cronEntities = []string{"locations", "reviews", "media", "posts", "analytics", "contacts"}

// RunScheduledSync runs every entity sync in order. Individual failures
// are reported per entity and do not stop the remaining syncs.
func (s *Service) RunScheduledSync(ctx context.Context) []ScheduledResult {
	results := make([]ScheduledResult, 0, len(cronEntities))

	for _, entity := range cronEntities {
		job, err := s.TriggerSync(ctx, entity, syncer.ModeSync, "", "")

		result := ScheduledResult{Entity: entity}
		if err != nil {
			result.Error = err.Error()
		}

		if job != nil {
			result.JobID = job.ID
			result.Status = job.Status
			result.Counts = job.Counts
		}

		results = append(results, result)
	}

	return results
}

// ScheduledResult is the per-entity outcome of a scheduled sync run.
type ScheduledResult struct {
	Entity string            `json:"entity"`
	JobID  string            `json:"jobId,omitempty"`
	Status string            `json:"status,omitempty"`
	Counts models.SyncCounts `json:"counts"`
	Error  string            `json:"error,omitempty"`
}

// Jobs lists job-log entries.
func (s *Service) Jobs(ctx context.Context, params models.SelectJobsParams) ([]models.SyncJob, error) {
	return s.jobs.Select(ctx, params)
}

// CreateConnection persists a connection and primes the token cache
// when the caller supplies an initial token.
func (s *Service) CreateConnection(ctx context.Context, conn *models.Connection, accessToken, refreshToken string, expiresIn time.Duration) error {
	if err := conn.Validate(); err != nil {
		return validationError("%s", err.Error())
	}

	if err := s.connections.Create(ctx, conn); err != nil {
		return err
	}

	if accessToken != "" {
		s.tokens.CacheToken(conn.ID, accessToken, refreshToken, expiresIn)
	}

	return nil
}

// DeleteConnection removes a connection and evicts its cached token.
func (s *Service) DeleteConnection(ctx context.Context, id string) error {
	if err := s.connections.Delete(ctx, id); err != nil {
		return err
	}

	s.tokens.ClearCache(id)

	return nil
}

// ListConnections returns all connection records.
func (s *Service) ListConnections(ctx context.Context) ([]models.Connection, error) {
	return s.connections.List(ctx)
}
