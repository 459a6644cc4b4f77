package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertReview writes a review through merge semantics: remote fields
// overlay the existing row, local-only fields are preserved. Reports
// whether a new row was created.
func (db *Db) UpsertReview(ctx context.Context, review *Review) (bool, error) {
	if review == nil {
		return false, fmt.Errorf("review cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Review

		err := tx.Where("location_id = ? AND review_id = ?", review.LocationID, review.ReviewID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			review.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(review).Error
		}

		if err != nil {
			return err
		}

		mergeReview(&existing, review)
		*review = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert review", zap.Error(err), zap.String("review_id", review.ReviewID))

		return false, fmt.Errorf("failed to upsert review: %w", err)
	}

	return created, nil
}

// InsertReview creates the review only when absent. An existing row is
// left untouched.
func (db *Db) InsertReview(ctx context.Context, review *Review) (bool, error) {
	if review == nil {
		return false, fmt.Errorf("review cannot be nil")
	}

	var count int64

	err := db.Engine.WithContext(ctx).Model(&Review{}).
		Where("location_id = ? AND review_id = ?", review.LocationID, review.ReviewID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check review existence: %w", err)
	}

	if count > 0 {
		return false, nil
	}

	review.FetchedAt = time.Now().UTC()

	if err := db.Engine.WithContext(ctx).Create(review).Error; err != nil {
		return false, fmt.Errorf("failed to insert review: %w", err)
	}

	return true, nil
}

// GetReview fetches one review by its natural key.
func (db *Db) GetReview(ctx context.Context, locationID, reviewID string) (*Review, error) {
	var review Review

	err := db.Engine.WithContext(ctx).
		Where("location_id = ? AND review_id = ?", locationID, reviewID).
		First(&review).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return &review, nil
}

// ListReviews returns the cached reviews of a location.
func (db *Db) ListReviews(ctx context.Context, locationID string) ([]Review, error) {
	var reviews []Review

	err := db.Engine.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("create_time DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	return reviews, nil
}

func mergeReview(existing, incoming *Review) {
	existing.ReviewerName = incoming.ReviewerName
	existing.StarRating = incoming.StarRating
	existing.Comment = incoming.Comment
	existing.ReplyComment = incoming.ReplyComment
	existing.ReplyUpdateTime = incoming.ReplyUpdateTime
	existing.CreateTime = incoming.CreateTime
	existing.UpdateTime = incoming.UpdateTime
	existing.FetchedAt = time.Now().UTC()
}
