// Package models contains the shared domain types for the sync service.
package models

import (
	"errors"
	"time"
)

// ErrConnectionNotFound is returned when a connection id has no
// matching record. Route handlers map it to a 404.
var ErrConnectionNotFound = errors.New("connection not found")

// CredentialSource identifies where the OAuth credentials for a
// connection live.
type CredentialSource string

const (
	// SourceEnv means the credentials come from environment configuration.
	SourceEnv CredentialSource = "env"
	// SourceBroker means the credentials are held by the OAuth broker.
	SourceBroker CredentialSource = "broker"
)

// Connection is a persisted record of one external OAuth-authorized
// account. Token state is never stored on this record; it lives in the
// in-process token cache.
type Connection struct {
	ID              string
	ExternalUserID  string
	Source          CredentialSource
	BrokerAccountID string
	CreatedAt       time.Time
}

func (c *Connection) Validate() error {
	if c.ID == "" {
		return errors.New("missing id")
	}

	if c.Source == "" {
		return errors.New("missing credential source")
	}

	if c.Source == SourceBroker && c.BrokerAccountID == "" {
		return errors.New("missing broker account id")
	}

	return nil
}

// Sync job statuses.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Sync job types.
const (
	JobTypeReviews   = "gbp_reviews"
	JobTypeMedia     = "gbp_media"
	JobTypePosts     = "gbp_posts"
	JobTypeLocations = "gbp_locations"
	JobTypeAnalytics = "gbp_analytics"
	JobTypeContacts  = "hubspot_contacts_sync"
)

// SyncCounts aggregates the outcome of one sync run.
type SyncCounts struct {
	Fetched int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// Add merges another set of counts into this one.
func (c *SyncCounts) Add(other SyncCounts) {
	c.Fetched += other.Fetched
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Errors += other.Errors
}

// SyncJob is the audit record of one synchronization run. It is created
// in running state before any network I/O and receives exactly one
// terminal update when the run returns. A crash mid-run leaves the row
// in running state forever; there is no reaper.
type SyncJob struct {
	ID          string
	JobType     string
	Status      string
	Counts      SyncCounts
	Metadata    map[string]any
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
	DurationMs  int64
}

func (j *SyncJob) Validate() error {
	if j.ID == "" {
		return errors.New("missing id")
	}

	if j.JobType == "" {
		return errors.New("missing job type")
	}

	if j.Status == "" {
		return errors.New("missing status")
	}

	return nil
}

// SelectJobsParams filters job-log listings.
type SelectJobsParams struct {
	JobType string
	Status  string
	Limit   int
}
