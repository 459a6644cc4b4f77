package database

import "time"

// Review is a cached customer review. The pair (location_id, review_id)
// is the natural key from the source system. InternalNotes, Assignee and
// Flagged are entered locally and survive every sync.
type Review struct {
	ID              uint   `gorm:"primarykey"`
	LocationID      string `gorm:"uniqueIndex:idx_reviews_location_review;not null"`
	ReviewID        string `gorm:"uniqueIndex:idx_reviews_location_review;not null"`
	ReviewerName    string
	StarRating      string
	Comment         string
	ReplyComment    string
	ReplyUpdateTime *time.Time
	CreateTime      time.Time
	UpdateTime      time.Time

	InternalNotes string
	Assignee      string
	Flagged       bool

	FetchedAt time.Time
}

// Media is a cached photo or video. Keyed by (location_id, media_name).
// Hidden and AltText are local-only.
type Media struct {
	ID           uint   `gorm:"primarykey"`
	LocationID   string `gorm:"uniqueIndex:idx_media_location_name;not null"`
	MediaName    string `gorm:"uniqueIndex:idx_media_location_name;not null"`
	MediaFormat  string
	Category     string
	SourceURL    string
	GoogleURL    string
	ThumbnailURL string
	CreateTime   time.Time

	Hidden  bool
	AltText string

	FetchedAt time.Time
}

// LocalPost is a cached profile post. Keyed by (location_id, post_name).
// CampaignTag is local-only.
type LocalPost struct {
	ID         uint   `gorm:"primarykey"`
	LocationID string `gorm:"uniqueIndex:idx_posts_location_name;not null"`
	PostName   string `gorm:"uniqueIndex:idx_posts_location_name;not null"`
	Summary    string
	State      string
	TopicType  string
	CTAType    string
	CTAURL     string
	SearchURL  string
	CreateTime time.Time
	UpdateTime time.Time

	CampaignTag string

	FetchedAt time.Time
}

// Location is a cached business location. Keyed by
// (account_id, location_id). Nickname and Notes are local-only.
type Location struct {
	ID                 uint   `gorm:"primarykey"`
	AccountID          string `gorm:"uniqueIndex:idx_locations_account_location;not null"`
	LocationID         string `gorm:"uniqueIndex:idx_locations_account_location;not null"`
	Title              string
	StoreCode          string
	WebsiteURI         string
	PrimaryPhone       string
	PrimaryCategory    string
	Address            string
	PlaceID            string
	MapsURI            string
	HasVoiceOfMerchant bool

	Nickname string
	Notes    string

	FetchedAt time.Time
}

// AnalyticsSnapshot is one day's search-keyword impressions for a
// location. Keyed by (location_id, snapshot_date); re-running on the
// same day overwrites in place.
type AnalyticsSnapshot struct {
	ID               uint   `gorm:"primarykey"`
	LocationID       string `gorm:"uniqueIndex:idx_analytics_location_date;not null"`
	SnapshotDate     string `gorm:"uniqueIndex:idx_analytics_location_date;not null"` // YYYY-MM-DD
	Keywords         string // JSON array of {keyword, impressions}
	TotalImpressions int64

	FetchedAt time.Time
}

// Contact is a cached CRM contact keyed by its HubSpot id. OwnerNotes
// and DoNotContact are local-only.
type Contact struct {
	ID              uint   `gorm:"primarykey"`
	HubspotID       string `gorm:"uniqueIndex:idx_contacts_hubspot_id;not null"`
	Email           string
	FirstName       string
	LastName        string
	Phone           string
	Company         string
	LifecycleStage  string
	SourceUpdatedAt time.Time

	OwnerNotes   string
	DoNotContact bool

	FetchedAt time.Time
}
