package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

// SyncAnalytics captures one search-keyword impressions snapshot for a
// location. One row per location per calendar day; running twice the
// same day overwrites in place.
func (s *Syncer) SyncAnalytics(ctx context.Context, locationID string) (*models.SyncJob, error) {
	metadata := map[string]any{
		"location_id": locationID,
	}

	return s.run(ctx, models.JobTypeAnalytics, metadata, func(job *models.SyncJob) error {
		counts, err := s.gbp.SearchKeywordImpressions(ctx, locationID, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("failed to fetch keyword impressions: %w", err)
		}

		job.Counts.Fetched = len(counts)

		snapshot, err := snapshotFromKeywords(locationID, counts)
		if err != nil {
			return err
		}

		created, err := s.store.UpsertAnalyticsSnapshot(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("failed to store analytics snapshot: %w", err)
		}

		if created {
			job.Counts.Created = 1
		} else {
			job.Counts.Updated = 1
		}

		return nil
	})
}

type keywordImpressions struct {
	Keyword     string `json:"keyword"`
	Impressions int64  `json:"impressions"`
}

func snapshotFromKeywords(locationID string, counts []gbp.SearchKeywordCount) (*database.AnalyticsSnapshot, error) {
	keywords := make([]keywordImpressions, 0, len(counts))

	var total int64

	for _, c := range counts {
		n, err := impressionsValue(c.InsightsValue)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", c.SearchKeyword, err)
		}

		keywords = append(keywords, keywordImpressions{Keyword: c.SearchKeyword, Impressions: n})
		total += n
	}

	data, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	return &database.AnalyticsSnapshot{
		LocationID:       locationID,
		SnapshotDate:     time.Now().UTC().Format("2006-01-02"),
		Keywords:         string(data),
		TotalImpressions: total,
	}, nil
}

// impressionsValue resolves an insights value to a number. Google
// reports low-volume keywords as a threshold rather than an exact
// count; the threshold is used as the value.
func impressionsValue(v gbp.InsightsValue) (int64, error) {
	raw := v.Value
	if raw == "" {
		raw = v.Threshold
	}

	if raw == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable impression count %q", raw)
	}

	return n, nil
}
