package tasks

// Task types.
const (
	TypeSyncReviews   = "sync:reviews"
	TypeSyncMedia     = "sync:media"
	TypeSyncPosts     = "sync:posts"
	TypeSyncLocations = "sync:locations"
	TypeSyncAnalytics = "sync:analytics"
	TypeSyncContacts  = "sync:contacts"
	TypeHealthCheck   = "health:check"
)

// Queue names.
const (
	PriorityLow      = "low"
	PriorityDefault  = "default"
	PriorityCritical = "critical"
)

// SyncPayload is the payload of every sync:* task.
type SyncPayload struct {
	AccountID  string `json:"account_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// AllSyncTypes lists the entity sync task types in scheduling order.
var AllSyncTypes = []string{
	TypeSyncLocations,
	TypeSyncReviews,
	TypeSyncMedia,
	TypeSyncPosts,
	TypeSyncAnalytics,
	TypeSyncContacts,
}
