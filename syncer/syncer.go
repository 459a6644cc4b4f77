// Package syncer contains the per-entity synchronizers that page
// through source data, reconcile it into the local cache and record the
// outcome in the job log.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/hubspot"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

// Mode selects the reconciliation strategy of a run.
type Mode string

const (
	// ModeInsert only creates rows that do not exist yet. Existing rows
	// are never touched.
	ModeInsert Mode = "insert"
	// ModeSync is the default fetch-merge-upsert.
	ModeSync Mode = "sync"
	// ModeIncremental merges like ModeSync but only processes records
	// modified since the last completed run of the same type.
	ModeIncremental Mode = "incremental"
)

// ParseMode validates a mode string, defaulting to ModeSync when empty.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeSync, nil
	case ModeInsert, ModeSync, ModeIncremental:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid sync mode %q", s)
	}
}

// maxPages caps page-token pagination so a remote paging bug cannot
// spin a run forever.
const maxPages = 10

// GBPClient is the slice of the GBP API the synchronizers consume.
type GBPClient interface {
	ListReviews(ctx context.Context, accountID, locationID, pageToken string) (*gbp.ReviewsPage, error)
	ListMedia(ctx context.Context, accountID, locationID, pageToken string) (*gbp.MediaPage, error)
	ListLocalPosts(ctx context.Context, accountID, locationID, pageToken string) (*gbp.LocalPostsPage, error)
	ListLocations(ctx context.Context, accountID, readMask, pageToken string) (*gbp.LocationsPage, error)
	SearchKeywordImpressions(ctx context.Context, locationID string, from, to time.Time) ([]gbp.SearchKeywordCount, error)
}

// HubSpotClient is the slice of the HubSpot API the contact sync
// consumes.
type HubSpotClient interface {
	ListContacts(ctx context.Context, after string, properties []string) (*hubspot.ContactsPage, error)
	SearchContactsModifiedSince(ctx context.Context, since time.Time, after string, properties []string) (*hubspot.ContactsPage, error)
}

// JobLog records run outcomes.
type JobLog interface {
	Create(ctx context.Context, jobType string, metadata map[string]any) (*models.SyncJob, error)
	Complete(ctx context.Context, job *models.SyncJob) error
	GetLastCompleted(ctx context.Context, jobType string) (*models.SyncJob, error)
}

// Syncer drives all entity synchronizers.
type Syncer struct {
	gbp     GBPClient
	hubspot HubSpotClient
	store   *database.Db
	jobs    JobLog
	log     *zap.Logger
}

// New creates a Syncer. The hubspot client may be nil when no CRM token
// is configured; SyncContacts then fails fast.
func New(gbpClient GBPClient, hubspotClient HubSpotClient, store *database.Db, jobs JobLog, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Syncer{
		gbp:     gbpClient,
		hubspot: hubspotClient,
		store:   store,
		jobs:    jobs,
		log:     log,
	}
}

// run wraps one sync run with job-log bookkeeping: a running row before
// any upstream I/O and exactly one terminal update when fn returns.
func (s *Syncer) run(ctx context.Context, jobType string, metadata map[string]any, fn func(job *models.SyncJob) error) (*models.SyncJob, error) {
	job, err := s.jobs.Create(ctx, jobType, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log entry: %w", err)
	}

	runErr := fn(job)
	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = runErr.Error()

		s.log.Error("sync run failed",
			zap.String("job_type", jobType),
			zap.String("job_id", job.ID),
			zap.Error(runErr))
	} else {
		job.Status = models.JobStatusCompleted
	}

	if err := s.jobs.Complete(ctx, job); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("failed to close job log entry: %w", err))
	}

	if runErr == nil {
		s.log.Info("sync run completed",
			zap.String("job_type", jobType),
			zap.String("job_id", job.ID),
			zap.Int("fetched", job.Counts.Fetched),
			zap.Int("created", job.Counts.Created),
			zap.Int("updated", job.Counts.Updated),
			zap.Int("skipped", job.Counts.Skipped),
			zap.Int64("duration_ms", job.DurationMs))
	}

	return job, runErr
}

// since returns the modified-since cursor for incremental runs: the
// start time of the last completed run of the same type, or the zero
// time when there is none.
func (s *Syncer) since(ctx context.Context, jobType string) (time.Time, error) {
	last, err := s.jobs.GetLastCompleted(ctx, jobType)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve incremental cursor: %w", err)
	}

	if last == nil {
		return time.Time{}, nil
	}

	return last.CreatedAt, nil
}
