package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/hubspot"
	"github.com/Vector/gbp-ops-sync/internal/database"
	"github.com/Vector/gbp-ops-sync/models"
)

// ErrNoCRMClient is returned when a contact sync is requested without a
// configured HubSpot token.
var ErrNoCRMClient = errors.New("hubspot client not configured")

// SyncContacts reconciles CRM contacts. Incremental mode uses the
// source-side modified-since search, cursored from the last completed
// run.
func (s *Syncer) SyncContacts(ctx context.Context, mode Mode) (*models.SyncJob, error) {
	if s.hubspot == nil {
		return nil, ErrNoCRMClient
	}

	metadata := map[string]any{
		"mode": string(mode),
	}

	return s.run(ctx, models.JobTypeContacts, metadata, func(job *models.SyncJob) error {
		var since time.Time

		if mode == ModeIncremental {
			var err error

			since, err = s.since(ctx, models.JobTypeContacts)
			if err != nil {
				return err
			}
		}

		after := ""

		for page := 0; page < maxPages; page++ {
			contactsPage, err := s.fetchContactsPage(ctx, mode, since, after)
			if err != nil {
				return fmt.Errorf("failed to fetch contacts page: %w", err)
			}

			for i := range contactsPage.Results {
				contact := &contactsPage.Results[i]
				job.Counts.Fetched++

				if err := s.persistContact(ctx, contact, mode, &job.Counts); err != nil {
					job.Counts.Skipped++
					job.Counts.Errors++

					s.log.Warn("skipping contact",
						zap.String("hubspot_id", contact.ID),
						zap.Error(err))
				}
			}

			after = contactsPage.NextAfter()
			if after == "" {
				break
			}
		}

		return nil
	})
}

func (s *Syncer) fetchContactsPage(ctx context.Context, mode Mode, since time.Time, after string) (*hubspot.ContactsPage, error) {
	if mode == ModeIncremental && !since.IsZero() {
		return s.hubspot.SearchContactsModifiedSince(ctx, since, after, nil)
	}

	return s.hubspot.ListContacts(ctx, after, nil)
}

func (s *Syncer) persistContact(ctx context.Context, contact *hubspot.Contact, mode Mode, counts *models.SyncCounts) error {
	if contact.ID == "" {
		return fmt.Errorf("contact has no id")
	}

	row := contactToRow(contact)

	if mode == ModeInsert {
		created, err := s.store.InsertContact(ctx, row)
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

	created, err := s.store.UpsertContact(ctx, row)
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

func contactToRow(contact *hubspot.Contact) *database.Contact {
	props := contact.Properties

	return &database.Contact{
		HubspotID:       contact.ID,
		Email:           props["email"],
		FirstName:       props["firstname"],
		LastName:        props["lastname"],
		Phone:           props["phone"],
		Company:         props["company"],
		LifecycleStage:  props["lifecyclestage"],
		SourceUpdatedAt: contact.UpdatedAt,
	}
}
