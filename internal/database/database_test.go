package database

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDb(t *testing.T) *Db {
	t.Helper()

	engine, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	db, err := New(engine, zap.NewNop())
	require.NoError(t, err)

	return db
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidDBObject)

	engine, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	_, err = New(engine, nil)
	assert.ErrorIs(t, err, ErrInvalidDBObject)
}

func TestUpsertReview_CreateThenMerge(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	review := &Review{
		LocationID:   "loc-1",
		ReviewID:     "r-1",
		ReviewerName: "Ann",
		StarRating:   "FOUR",
		Comment:      "Good service",
	}

	created, err := db.UpsertReview(ctx, review)
	require.NoError(t, err)
	assert.True(t, created)

	// Operator annotates the review locally.
	stored, err := db.GetReview(ctx, "loc-1", "r-1")
	require.NoError(t, err)

	stored.InternalNotes = "follow up by phone"
	stored.Assignee = "sam"
	require.NoError(t, db.Engine.Save(stored).Error)

	// Next sync sees an edited comment; local annotations must survive.
	created, err = db.UpsertReview(ctx, &Review{
		LocationID:   "loc-1",
		ReviewID:     "r-1",
		ReviewerName: "Ann",
		StarRating:   "FIVE",
		Comment:      "Great service after all",
	})
	require.NoError(t, err)
	assert.False(t, created)

	merged, err := db.GetReview(ctx, "loc-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "FIVE", merged.StarRating)
	assert.Equal(t, "Great service after all", merged.Comment)
	assert.Equal(t, "follow up by phone", merged.InternalNotes)
	assert.Equal(t, "sam", merged.Assignee)
}

func TestUpsertReview_Idempotent(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	source := Review{
		LocationID:   "loc-1",
		ReviewID:     "r-1",
		ReviewerName: "Bob",
		StarRating:   "THREE",
		Comment:      "ok",
	}

	first := source
	_, err := db.UpsertReview(ctx, &first)
	require.NoError(t, err)

	second := source
	created, err := db.UpsertReview(ctx, &second)
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Engine.Model(&Review{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := db.GetReview(ctx, "loc-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", stored.Comment)
	assert.Equal(t, "THREE", stored.StarRating)
}

func TestInsertReview_NeverUpdates(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	created, err := db.InsertReview(ctx, &Review{
		LocationID: "loc-1",
		ReviewID:   "r-1",
		Comment:    "original",
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.InsertReview(ctx, &Review{
		LocationID: "loc-1",
		ReviewID:   "r-1",
		Comment:    "changed upstream",
	})
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := db.GetReview(ctx, "loc-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Comment)
}

func TestUpsertMedia_PreservesLocalFields(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	media := &Media{LocationID: "loc-1", MediaName: "media/m1", MediaFormat: "PHOTO"}

	created, err := db.UpsertMedia(ctx, media)
	require.NoError(t, err)
	assert.True(t, created)

	media.Hidden = true
	media.AltText = "storefront at dusk"
	require.NoError(t, db.Engine.Save(media).Error)

	_, err = db.UpsertMedia(ctx, &Media{
		LocationID:  "loc-1",
		MediaName:   "media/m1",
		MediaFormat: "PHOTO",
		GoogleURL:   "https://lh3.example/m1",
	})
	require.NoError(t, err)

	items, err := db.ListMedia(ctx, "loc-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Hidden)
	assert.Equal(t, "storefront at dusk", items[0].AltText)
	assert.Equal(t, "https://lh3.example/m1", items[0].GoogleURL)
}

func TestUpsertAnalyticsSnapshot_SameDayOverwrites(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	day := time.Now().UTC().Format("2006-01-02")

	created, err := db.UpsertAnalyticsSnapshot(ctx, &AnalyticsSnapshot{
		LocationID:       "loc-1",
		SnapshotDate:     day,
		Keywords:         `[{"keyword":"plumber","impressions":100}]`,
		TotalImpressions: 100,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.UpsertAnalyticsSnapshot(ctx, &AnalyticsSnapshot{
		LocationID:       "loc-1",
		SnapshotDate:     day,
		Keywords:         `[{"keyword":"plumber","impressions":140}]`,
		TotalImpressions: 140,
	})
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Engine.Model(&AnalyticsSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := db.GetAnalyticsSnapshot(ctx, "loc-1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(140), stored.TotalImpressions)
}

func TestUpsertContact_MergeByHubspotID(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	created, err := db.UpsertContact(ctx, &Contact{
		HubspotID: "42",
		Email:     "a@example.com",
		FirstName: "Ann",
	})
	require.NoError(t, err)
	assert.True(t, created)

	stored, err := db.GetContact(ctx, "42")
	require.NoError(t, err)

	stored.OwnerNotes = "met at trade show"
	stored.DoNotContact = true
	require.NoError(t, db.Engine.Save(stored).Error)

	created, err = db.UpsertContact(ctx, &Contact{
		HubspotID: "42",
		Email:     "ann@example.com",
		FirstName: "Ann",
		LastName:  "Lee",
	})
	require.NoError(t, err)
	assert.False(t, created)

	merged, err := db.GetContact(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", merged.Email)
	assert.Equal(t, "Lee", merged.LastName)
	assert.Equal(t, "met at trade show", merged.OwnerNotes)
	assert.True(t, merged.DoNotContact)
}

func TestUpsertLocation_PreservesLocalFields(t *testing.T) {
	db := newTestDb(t)
	ctx := context.Background()

	loc := &Location{AccountID: "acc-1", LocationID: "loc-1", Title: "Joe's Plumbing"}

	_, err := db.UpsertLocation(ctx, loc)
	require.NoError(t, err)

	loc.Nickname = "HQ"
	require.NoError(t, db.Engine.Save(loc).Error)

	_, err = db.UpsertLocation(ctx, &Location{
		AccountID:  "acc-1",
		LocationID: "loc-1",
		Title:      "Joe's Plumbing & Heating",
	})
	require.NoError(t, err)

	locations, err := db.ListLocations(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Joe's Plumbing & Heating", locations[0].Title)
	assert.Equal(t, "HQ", locations[0].Nickname)
}
