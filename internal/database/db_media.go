package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertMedia merge-upserts a media item on (location_id, media_name).
func (db *Db) UpsertMedia(ctx context.Context, media *Media) (bool, error) {
	if media == nil {
		return false, fmt.Errorf("media cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Media

		err := tx.Where("location_id = ? AND media_name = ?", media.LocationID, media.MediaName).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			media.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(media).Error
		}

		if err != nil {
			return err
		}

		mergeMedia(&existing, media)
		*media = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert media", zap.Error(err), zap.String("media_name", media.MediaName))

		return false, fmt.Errorf("failed to upsert media: %w", err)
	}

	return created, nil
}

// InsertMedia creates the media item only when absent.
func (db *Db) InsertMedia(ctx context.Context, media *Media) (bool, error) {
	if media == nil {
		return false, fmt.Errorf("media cannot be nil")
	}

	var count int64

	err := db.Engine.WithContext(ctx).Model(&Media{}).
		Where("location_id = ? AND media_name = ?", media.LocationID, media.MediaName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check media existence: %w", err)
	}

	if count > 0 {
		return false, nil
	}

	media.FetchedAt = time.Now().UTC()

	if err := db.Engine.WithContext(ctx).Create(media).Error; err != nil {
		return false, fmt.Errorf("failed to insert media: %w", err)
	}

	return true, nil
}

// ListMedia returns the cached media of a location.
func (db *Db) ListMedia(ctx context.Context, locationID string) ([]Media, error) {
	var items []Media

	err := db.Engine.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("create_time DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	return items, nil
}

func mergeMedia(existing, incoming *Media) {
	existing.MediaFormat = incoming.MediaFormat
	existing.Category = incoming.Category
	existing.SourceURL = incoming.SourceURL
	existing.GoogleURL = incoming.GoogleURL
	existing.ThumbnailURL = incoming.ThumbnailURL
	existing.CreateTime = incoming.CreateTime
	existing.FetchedAt = time.Now().UTC()
}
