package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertLocation merge-upserts a location on (account_id, location_id).
func (db *Db) UpsertLocation(ctx context.Context, location *Location) (bool, error) {
	if location == nil {
		return false, fmt.Errorf("location cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Location

		err := tx.Where("account_id = ? AND location_id = ?", location.AccountID, location.LocationID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			location.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(location).Error
		}

		if err != nil {
			return err
		}

		mergeLocation(&existing, location)
		*location = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert location", zap.Error(err), zap.String("location_id", location.LocationID))

		return false, fmt.Errorf("failed to upsert location: %w", err)
	}

	return created, nil
}

// InsertLocation creates the location only when absent.
func (db *Db) InsertLocation(ctx context.Context, location *Location) (bool, error) {
	if location == nil {
		return false, fmt.Errorf("location cannot be nil")
	}

	var count int64

	err := db.Engine.WithContext(ctx).Model(&Location{}).
		Where("account_id = ? AND location_id = ?", location.AccountID, location.LocationID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check location existence: %w", err)
	}

	if count > 0 {
		return false, nil
	}

	location.FetchedAt = time.Now().UTC()

	if err := db.Engine.WithContext(ctx).Create(location).Error; err != nil {
		return false, fmt.Errorf("failed to insert location: %w", err)
	}

	return true, nil
}

// ListLocations returns the cached locations of an account.
func (db *Db) ListLocations(ctx context.Context, accountID string) ([]Location, error) {
	var locations []Location

	err := db.Engine.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("title ASC").
		Find(&locations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	return locations, nil
}

func mergeLocation(existing, incoming *Location) {
	existing.Title = incoming.Title
	existing.StoreCode = incoming.StoreCode
	existing.WebsiteURI = incoming.WebsiteURI
	existing.PrimaryPhone = incoming.PrimaryPhone
	existing.PrimaryCategory = incoming.PrimaryCategory
	existing.Address = incoming.Address
	existing.PlaceID = incoming.PlaceID
	existing.MapsURI = incoming.MapsURI
	existing.HasVoiceOfMerchant = incoming.HasVoiceOfMerchant
	existing.FetchedAt = time.Now().UTC()
}
