package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertContact merge-upserts a CRM contact on its HubSpot id.
func (db *Db) UpsertContact(ctx context.Context, contact *Contact) (bool, error) {
	if contact == nil {
		return false, fmt.Errorf("contact cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Contact

		err := tx.Where("hubspot_id = ?", contact.HubspotID).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			contact.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(contact).Error
		}

		if err != nil {
			return err
		}

		mergeContact(&existing, contact)
		*contact = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert contact", zap.Error(err), zap.String("hubspot_id", contact.HubspotID))

		return false, fmt.Errorf("failed to upsert contact: %w", err)
	}

	return created, nil
}

// InsertContact creates the contact only when absent.
func (db *Db) InsertContact(ctx context.Context, contact *Contact) (bool, error) {
	if contact == nil {
		return false, fmt.Errorf("contact cannot be nil")
	}

	var count int64

	err := db.Engine.WithContext(ctx).Model(&Contact{}).
		Where("hubspot_id = ?", contact.HubspotID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check contact existence: %w", err)
	}

	if count > 0 {
		return false, nil
	}

	contact.FetchedAt = time.Now().UTC()

	if err := db.Engine.WithContext(ctx).Create(contact).Error; err != nil {
		return false, fmt.Errorf("failed to insert contact: %w", err)
	}

	return true, nil
}

// GetContact fetches one contact by HubSpot id.
func (db *Db) GetContact(ctx context.Context, hubspotID string) (*Contact, error) {
	var contact Contact

	err := db.Engine.WithContext(ctx).Where("hubspot_id = ?", hubspotID).First(&contact).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return &contact, nil
}

func mergeContact(existing, incoming *Contact) {
	existing.Email = incoming.Email
	existing.FirstName = incoming.FirstName
	existing.LastName = incoming.LastName
	existing.Phone = incoming.Phone
	existing.Company = incoming.Company
	existing.LifecycleStage = incoming.LifecycleStage
	existing.SourceUpdatedAt = incoming.SourceUpdatedAt
	existing.FetchedAt = time.Now().UTC()
}
