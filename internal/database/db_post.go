package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertLocalPost merge-upserts a post on (location_id, post_name).
func (db *Db) UpsertLocalPost(ctx context.Context, post *LocalPost) (bool, error) {
	if post == nil {
		return false, fmt.Errorf("post cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LocalPost

		err := tx.Where("location_id = ? AND post_name = ?", post.LocationID, post.PostName).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			post.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(post).Error
		}

		if err != nil {
			return err
		}

		mergeLocalPost(&existing, post)
		*post = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert local post", zap.Error(err), zap.String("post_name", post.PostName))

		return false, fmt.Errorf("failed to upsert local post: %w", err)
	}

	return created, nil
}

// InsertLocalPost creates the post only when absent.
func (db *Db) InsertLocalPost(ctx context.Context, post *LocalPost) (bool, error) {
	if post == nil {
		return false, fmt.Errorf("post cannot be nil")
	}

	var count int64

	err := db.Engine.WithContext(ctx).Model(&LocalPost{}).
		Where("location_id = ? AND post_name = ?", post.LocationID, post.PostName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check post existence: %w", err)
	}

	if count > 0 {
		return false, nil
	}

	post.FetchedAt = time.Now().UTC()

	if err := db.Engine.WithContext(ctx).Create(post).Error; err != nil {
		return false, fmt.Errorf("failed to insert local post: %w", err)
	}

	return true, nil
}

// ListLocalPosts returns the cached posts of a location.
func (db *Db) ListLocalPosts(ctx context.Context, locationID string) ([]LocalPost, error) {
	var posts []LocalPost

	err := db.Engine.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("create_time DESC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list local posts: %w", err)
	}

	return posts, nil
}

func mergeLocalPost(existing, incoming *LocalPost) {
	existing.Summary = incoming.Summary
	existing.State = incoming.State
	existing.TopicType = incoming.TopicType
	existing.CTAType = incoming.CTAType
	existing.CTAURL = incoming.CTAURL
	existing.SearchURL = incoming.SearchURL
	existing.CreateTime = incoming.CreateTime
	existing.UpdateTime = incoming.UpdateTime
	existing.FetchedAt = time.Now().UTC()
}
