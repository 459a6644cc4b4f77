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

// SyncPosts reconciles the local posts of one location.
func (s *Syncer) SyncPosts(ctx context.Context, accountID, locationID string, mode Mode) (*models.SyncJob, error) {
	metadata := map[string]any{
		"account_id":  accountID,
		"location_id": locationID,
		"mode":        string(mode),
	}

	return s.run(ctx, models.JobTypePosts, metadata, func(job *models.SyncJob) error {
		var since time.Time

		if mode == ModeIncremental {
			var err error

			since, err = s.since(ctx, models.JobTypePosts)
			if err != nil {
				return err
			}
		}

		pageToken := ""

		for page := 0; page < maxPages; page++ {
			postsPage, err := s.gbp.ListLocalPosts(ctx, accountID, locationID, pageToken)
			if err != nil {
				return fmt.Errorf("failed to fetch posts page: %w", err)
			}

			for i := range postsPage.LocalPosts {
				post := &postsPage.LocalPosts[i]
				job.Counts.Fetched++

				if mode == ModeIncremental && !since.IsZero() && post.UpdateTime.Before(since) {
					job.Counts.Skipped++
					continue
				}

				if err := s.persistPost(ctx, locationID, post, mode, &job.Counts); err != nil {
					job.Counts.Skipped++
					job.Counts.Errors++

					s.log.Warn("skipping local post",
						zap.String("location_id", locationID),
						zap.String("post_name", post.Name),
						zap.Error(err))
				}
			}

			pageToken = postsPage.NextPageToken
			if pageToken == "" {
				break
			}
		}

		return nil
	})
}

func (s *Syncer) persistPost(ctx context.Context, locationID string, post *gbp.LocalPost, mode Mode, counts *models.SyncCounts) error {
	if post.Name == "" {
		return fmt.Errorf("local post has no name")
	}

	row := postToRow(locationID, post)

	if mode == ModeInsert {
		created, err := s.store.InsertLocalPost(ctx, row)
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

	created, err := s.store.UpsertLocalPost(ctx, row)
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

func postToRow(locationID string, post *gbp.LocalPost) *database.LocalPost {
	row := &database.LocalPost{
		LocationID: locationID,
		PostName:   post.Name,
		Summary:    post.Summary,
		State:      post.State,
		TopicType:  post.TopicType,
		SearchURL:  post.SearchURL,
		CreateTime: post.CreateTime,
		UpdateTime: post.UpdateTime,
	}

	if post.CallToAction != nil {
		row.CTAType = post.CallToAction.ActionType
		row.CTAURL = post.CallToAction.URL
	}

	return row
}
