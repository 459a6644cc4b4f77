package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

// SyncLocations reconciles all locations of one account.
func (s *Syncer) SyncLocations(ctx context.Context, accountID string, mode Mode) (*models.SyncJob, error) {
	metadata := map[string]any{
		"account_id": accountID,
		"mode":       string(mode),
	}

	return s.run(ctx, models.JobTypeLocations, metadata, func(job *models.SyncJob) error {
		pageToken := ""

		for page := 0; page < maxPages; page++ {
			locationsPage, err := s.gbp.ListLocations(ctx, accountID, "", pageToken)
			if err != nil {
				return fmt.Errorf("failed to fetch locations page: %w", err)
			}

			for i := range locationsPage.Locations {
				loc := &locationsPage.Locations[i]
				job.Counts.Fetched++

				if err := s.persistLocation(ctx, accountID, loc, mode, &job.Counts); err != nil {
					job.Counts.Skipped++
					job.Counts.Errors++

					s.log.Warn("skipping location",
						zap.String("account_id", accountID),
						zap.String("location", loc.Name),
						zap.Error(err))
				}
			}

			pageToken = locationsPage.NextPageToken
			if pageToken == "" {
				break
			}
		}

		return nil
	})
}

func (s *Syncer) persistLocation(ctx context.Context, accountID string, loc *gbp.Location, mode Mode, counts *models.SyncCounts) error {
	if loc.Name == "" {
		return fmt.Errorf("location has no resource name")
	}

	row := locationToRow(accountID, loc)

	if mode == ModeInsert {
		created, err := s.store.InsertLocation(ctx, row)
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

	created, err := s.store.UpsertLocation(ctx, row)
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

func locationToRow(accountID string, loc *gbp.Location) *database.Location {
	row := &database.Location{
		AccountID:  accountID,
		LocationID: locationID(loc.Name),
		Title:      loc.Title,
		StoreCode:  loc.StoreCode,
		WebsiteURI: loc.WebsiteURI,
	}

	if loc.PhoneNumbers != nil {
		row.PrimaryPhone = loc.PhoneNumbers.PrimaryPhone
	}

	if loc.Categories != nil && loc.Categories.PrimaryCategory != nil {
		row.PrimaryCategory = loc.Categories.PrimaryCategory.DisplayName
	}

	if loc.Address != nil {
		row.Address = formatAddress(loc.Address)
	}

	if loc.Metadata != nil {
		row.PlaceID = loc.Metadata.PlaceID
		row.MapsURI = loc.Metadata.MapsURI
		row.HasVoiceOfMerchant = loc.Metadata.HasVoiceOfMerchant
	}

	return row
}

// locationID strips the "locations/" resource prefix.
func locationID(name string) string {
	return strings.TrimPrefix(name, "locations/")
}

func formatAddress(addr *gbp.PostalAddress) string {
	parts := make([]string, 0, len(addr.AddressLines)+3)
	parts = append(parts, addr.AddressLines...)

	for _, p := range []string{addr.Locality, addr.AdministrativeArea, addr.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	return strings.Join(parts, ", ")
}
