package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

// SyncMedia reconciles the media items of one location.
func (s *Syncer) SyncMedia(ctx context.Context, accountID, locationID string, mode Mode) (*models.SyncJob, error) {
	metadata := map[string]any{
		"account_id":  accountID,
		"location_id": locationID,
		"mode":        string(mode),
	}

	return s.run(ctx, models.JobTypeMedia, metadata, func(job *models.SyncJob) error {
		var since time.Time

		if mode == ModeIncremental {
			var err error

			since, err = s.since(ctx, models.JobTypeMedia)
			if err != nil {
				return err
			}
		}

		pageToken := ""

		for page := 0; page < maxPages; page++ {
			mediaPage, err := s.gbp.ListMedia(ctx, accountID, locationID, pageToken)
			if err != nil {
				return fmt.Errorf("failed to fetch media page: %w", err)
			}

			for i := range mediaPage.MediaItems {
				item := &mediaPage.MediaItems[i]
				job.Counts.Fetched++

				if mode == ModeIncremental && !since.IsZero() && item.CreateTime.Before(since) {
					job.Counts.Skipped++
					continue
				}

				if err := s.persistMedia(ctx, locationID, item, mode, &job.Counts); err != nil {
					job.Counts.Skipped++
					job.Counts.Errors++

					s.log.Warn("skipping media item",
						zap.String("location_id", locationID),
						zap.String("media_name", item.Name),
						zap.Error(err))
				}
			}

			pageToken = mediaPage.NextPageToken
			if pageToken == "" {
				break
			}
		}

		return nil
	})
}

func (s *Syncer) persistMedia(ctx context.Context, locationID string, item *gbp.MediaItem, mode Mode, counts *models.SyncCounts) error {
	if item.Name == "" {
		return fmt.Errorf("media item has no name")
	}

	row := mediaToRow(locationID, item)

	if mode == ModeInsert {
		created, err := s.store.InsertMedia(ctx, row)
		if err != nil {
			return err
		}

		if created {
			counts.Created++
		} else {
			counts.Skipped++
		}

		return nil
	}

	created, err := s.store.UpsertMedia(ctx, row)
	if err != nil {
		return err
	}

	if created {
		counts.Created++
	} else {
		counts.Updated++
	}

	return nil
}

func mediaToRow(locationID string, item *gbp.MediaItem) *database.Media {
	row := &database.Media{
		LocationID:   locationID,
		MediaName:    item.Name,
		MediaFormat:  item.MediaFormat,
		SourceURL:    item.SourceURL,
		GoogleURL:    item.GoogleURL,
		ThumbnailURL: item.ThumbnailURL,
		CreateTime:   item.CreateTime,
	}

	if item.Association != nil {
		row.Category = item.Association.Category
	}

	return row
}
