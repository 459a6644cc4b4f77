package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/hubspot"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

type fakeGBP struct {
	reviewPages   []*gbp.ReviewsPage
	mediaPages    []*gbp.MediaPage
	postPages     []*gbp.LocalPostsPage
	locationPages []*gbp.LocationsPage
	keywords      []gbp.SearchKeywordCount

	reviewCalls int
	pageErrAt   int // fail the n-th review page fetch (1-based), 0 disables
	repeatPages bool
}

func (f *fakeGBP) ListReviews(_ context.Context, _, _, _ string) (*gbp.ReviewsPage, error) {
	f.reviewCalls++

	if f.pageErrAt > 0 && f.reviewCalls == f.pageErrAt {
		return nil, fmt.Errorf("upstream unavailable")
	}

	if f.repeatPages {
		return &gbp.ReviewsPage{
			Reviews:       []gbp.Review{{ReviewID: fmt.Sprintf("r-%d", f.reviewCalls)}},
			NextPageToken: "again",
		}, nil
	}

	idx := f.reviewCalls - 1
	if idx >= len(f.reviewPages) {
		return &gbp.ReviewsPage{}, nil
	}

	return f.reviewPages[idx], nil
}

func (f *fakeGBP) ListMedia(_ context.Context, _, _, _ string) (*gbp.MediaPage, error) {
	if len(f.mediaPages) == 0 {
		return &gbp.MediaPage{}, nil
	}

	page := f.mediaPages[0]
	f.mediaPages = f.mediaPages[1:]

	return page, nil
}

func (f *fakeGBP) ListLocalPosts(_ context.Context, _, _, _ string) (*gbp.LocalPostsPage, error) {
	if len(f.postPages) == 0 {
		return &gbp.LocalPostsPage{}, nil
	}

	page := f.postPages[0]
	f.postPages = f.postPages[1:]

	return page, nil
}

func (f *fakeGBP) ListLocations(_ context.Context, _, _, _ string) (*gbp.LocationsPage, error) {
	if len(f.locationPages) == 0 {
		return &gbp.LocationsPage{}, nil
	}

	page := f.locationPages[0]
	f.locationPages = f.locationPages[1:]

	return page, nil
}

func (f *fakeGBP) SearchKeywordImpressions(_ context.Context, _ string, _, _ time.Time) ([]gbp.SearchKeywordCount, error) {
	return f.keywords, nil
}

type fakeHubSpot struct {
	pages       []*hubspot.ContactsPage
	searchSince time.Time
	searchCalls int
	listCalls   int
}

func (f *fakeHubSpot) next() *hubspot.ContactsPage {
	if len(f.pages) == 0 {
		return &hubspot.ContactsPage{}
	}

	page := f.pages[0]
	f.pages = f.pages[1:]

	return page
}

func (f *fakeHubSpot) ListContacts(_ context.Context, _ string, _ []string) (*hubspot.ContactsPage, error) {
	f.listCalls++

	return f.next(), nil
}

func (f *fakeHubSpot) SearchContactsModifiedSince(_ context.Context, since time.Time, _ string, _ []string) (*hubspot.ContactsPage, error) {
	f.searchCalls++
	f.searchSince = since

	return f.next(), nil
}

// memJobLog is an in-memory JobLog.
type memJobLog struct {
	mu   sync.Mutex
	jobs []*models.SyncJob
}

func (m *memJobLog) Create(_ context.Context, jobType string, metadata map[string]any) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &models.SyncJob{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    models.JobStatusRunning,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	m.jobs = append(m.jobs, job)

	return job, nil
}

func (m *memJobLog) Complete(_ context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == job.ID {
			if j != job {
				*j = *job
			}

			now := time.Now().UTC()
			j.CompletedAt = &now

			return nil
		}
	}

	return errors.New("job not found")
}

func (m *memJobLog) GetLastCompleted(_ context.Context, jobType string) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].JobType == jobType && m.jobs[i].Status == models.JobStatusCompleted {
			return m.jobs[i], nil
		}
	}

	return nil, nil
}

func newTestStore(t *testing.T) *database.Db {
	t.Helper()

	engine, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	db, err := database.New(engine, zap.NewNop())
	require.NoError(t, err)

	return db
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeSync, false},
		{"sync", ModeSync, false},
		{"insert", ModeInsert, false},
		{"incremental", ModeIncremental, false},
		{"merge", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSyncReviews_PartialFailureCompletesJob(t *testing.T) {
	reviews := make([]gbp.Review, 0, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("r-%d", i)
		if i == 3 {
			// Malformed record without an id.
			id = ""
		}

		reviews = append(reviews, gbp.Review{ReviewID: id, Comment: "c"})
	}

	source := &fakeGBP{reviewPages: []*gbp.ReviewsPage{{Reviews: reviews}}}
	jobs := &memJobLog{}
	s := New(source, nil, newTestStore(t), jobs, zap.NewNop())

	job, err := s.SyncReviews(context.Background(), "acc-1", "loc-1", ModeSync)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 10, job.Counts.Fetched)
	assert.Equal(t, 9, job.Counts.Created)
	assert.Equal(t, 1, job.Counts.Skipped)
	assert.Equal(t, 1, job.Counts.Errors)
}

func TestSyncReviews_TransportFailureFailsJob(t *testing.T) {
	source := &fakeGBP{
		reviewPages: []*gbp.ReviewsPage{
			{Reviews: []gbp.Review{{ReviewID: "r-1"}}, NextPageToken: "p2"},
		},
		pageErrAt: 2,
	}
	jobs := &memJobLog{}
	s := New(source, nil, newTestStore(t), jobs, zap.NewNop())

	job, err := s.SyncReviews(context.Background(), "acc-1", "loc-1", ModeSync)
	require.Error(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "upstream unavailable")
	// The first page's records are still accounted for.
	assert.Equal(t, 1, job.Counts.Fetched)
}

func TestSyncReviews_PaginationCap(t *testing.T) {
	source := &fakeGBP{repeatPages: true}
	jobs := &memJobLog{}
	s := New(source, nil, newTestStore(t), jobs, zap.NewNop())

	job, err := s.SyncReviews(context.Background(), "acc-1", "loc-1", ModeSync)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, maxPages, source.reviewCalls)
	assert.Equal(t, maxPages, job.Counts.Fetched)
}

func TestSyncReviews_InsertModeNeverUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertReview(ctx, &database.Review{
		LocationID: "loc-1",
		ReviewID:   "r-1",
		Comment:    "original",
	})
	require.NoError(t, err)

	source := &fakeGBP{reviewPages: []*gbp.ReviewsPage{{Reviews: []gbp.Review{
		{ReviewID: "r-1", Comment: "changed upstream"},
		{ReviewID: "r-2", Comment: "brand new"},
	}}}}
	s := New(source, nil, store, &memJobLog{}, zap.NewNop())

	job, err := s.SyncReviews(ctx, "acc-1", "loc-1", ModeInsert)
	require.NoError(t, err)

	assert.Equal(t, 1, job.Counts.Created)
	assert.Equal(t, 1, job.Counts.Skipped)
	assert.Equal(t, 0, job.Counts.Updated)

	stored, err := store.GetReview(ctx, "loc-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Comment)
}

func TestSyncReviews_SyncModeIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pages := func() []*gbp.ReviewsPage {
		return []*gbp.ReviewsPage{{Reviews: []gbp.Review{
			{ReviewID: "r-1", Comment: "steady"},
		}}}
	}

	jobs := &memJobLog{}

	s := New(&fakeGBP{reviewPages: pages()}, nil, store, jobs, zap.NewNop())
	job, err := s.SyncReviews(ctx, "acc-1", "loc-1", ModeSync)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Counts.Created)

	s = New(&fakeGBP{reviewPages: pages()}, nil, store, jobs, zap.NewNop())
	job, err = s.SyncReviews(ctx, "acc-1", "loc-1", ModeSync)
	require.NoError(t, err)
	assert.Equal(t, 0, job.Counts.Created)
	assert.Equal(t, 1, job.Counts.Updated)

	reviews, err := store.ListReviews(ctx, "loc-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "steady", reviews[0].Comment)
}

func TestSyncAnalytics_SameDayRerunOverwrites(t *testing.T) {
	store := newTestStore(t)
	jobs := &memJobLog{}

	first := &fakeGBP{keywords: []gbp.SearchKeywordCount{
		{SearchKeyword: "plumber", InsightsValue: gbp.InsightsValue{Value: "100"}},
		{SearchKeyword: "heating", InsightsValue: gbp.InsightsValue{Threshold: "15"}},
	}}

	s := New(first, nil, store, jobs, zap.NewNop())
	job, err := s.SyncAnalytics(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Counts.Created)

	second := &fakeGBP{keywords: []gbp.SearchKeywordCount{
		{SearchKeyword: "plumber", InsightsValue: gbp.InsightsValue{Value: "140"}},
	}}

	s = New(second, nil, store, jobs, zap.NewNop())
	job, err = s.SyncAnalytics(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Counts.Updated)

	day := time.Now().UTC().Format("2006-01-02")
	snapshot, err := store.GetAnalyticsSnapshot(context.Background(), "loc-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(140), snapshot.TotalImpressions)
}

func TestSyncContacts_IncrementalUsesLastRunCursor(t *testing.T) {
	store := newTestStore(t)
	jobs := &memJobLog{}
	ctx := context.Background()

	// A previous completed run provides the cursor.
	prev, err := jobs.Create(ctx, models.JobTypeContacts, nil)
	require.NoError(t, err)
	prev.Status = models.JobStatusCompleted
	require.NoError(t, jobs.Complete(ctx, prev))

	crm := &fakeHubSpot{pages: []*hubspot.ContactsPage{
		{Results: []hubspot.Contact{{ID: "1", Properties: map[string]string{"email": "a@example.com"}}}},
	}}

	s := New(&fakeGBP{}, crm, store, jobs, zap.NewNop())

	job, err := s.SyncContacts(ctx, ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, crm.searchCalls)
	assert.Equal(t, 0, crm.listCalls)
	assert.WithinDuration(t, prev.CreatedAt, crm.searchSince, time.Second)

	stored, err := store.GetContact(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", stored.Email)
}

func TestSyncContacts_WithoutClient(t *testing.T) {
	s := New(&fakeGBP{}, nil, newTestStore(t), &memJobLog{}, zap.NewNop())

	_, err := s.SyncContacts(context.Background(), ModeSync)
	assert.ErrorIs(t, err, ErrNoCRMClient)
}

func TestSyncLocations(t *testing.T) {
	store := newTestStore(t)

	source := &fakeGBP{locationPages: []*gbp.LocationsPage{{
		Locations: []gbp.Location{
			{Name: "locations/loc-1", Title: "Joe's Plumbing"},
			{Name: "locations/loc-2", Title: "Joe's Heating"},
		},
	}}}

	s := New(source, nil, store, &memJobLog{}, zap.NewNop())

	job, err := s.SyncLocations(context.Background(), "acc-1", ModeSync)
	require.NoError(t, err)

	assert.Equal(t, 2, job.Counts.Created)

	locations, err := store.ListLocations(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "loc-1", locations[1].LocationID)
}
