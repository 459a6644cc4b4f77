package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpsertAnalyticsSnapshot writes one day's snapshot for a location.
// Snapshots have no local-only fields; a same-day re-run overwrites the
// keyword data in place.
func (db *Db) UpsertAnalyticsSnapshot(ctx context.Context, snapshot *AnalyticsSnapshot) (bool, error) {
	if snapshot == nil {
		return false, fmt.Errorf("snapshot cannot be nil")
	}

	created := false

	err := db.Engine.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing AnalyticsSnapshot

		err := tx.Where("location_id = ? AND snapshot_date = ?", snapshot.LocationID, snapshot.SnapshotDate).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			snapshot.FetchedAt = time.Now().UTC()
			created = true

			return tx.Create(snapshot).Error
		}

		if err != nil {
			return err
		}

		existing.Keywords = snapshot.Keywords
		existing.TotalImpressions = snapshot.TotalImpressions
		existing.FetchedAt = time.Now().UTC()
		*snapshot = existing

		return tx.Save(&existing).Error
	})
	if err != nil {
		db.Logger.Error("failed to upsert analytics snapshot", zap.Error(err), zap.String("location_id", snapshot.LocationID))

		return false, fmt.Errorf("failed to upsert analytics snapshot: %w", err)
	}

	return created, nil
}

// GetAnalyticsSnapshot fetches one snapshot by its natural key.
func (db *Db) GetAnalyticsSnapshot(ctx context.Context, locationID, snapshotDate string) (*AnalyticsSnapshot, error) {
	var snapshot AnalyticsSnapshot

	err := db.Engine.WithContext(ctx).
		Where("location_id = ? AND snapshot_date = ?", locationID, snapshotDate).
		First(&snapshot).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics snapshot: %w", err)
	}

	return &snapshot, nil
}
