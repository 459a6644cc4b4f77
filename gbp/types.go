package gbp

import "time"

// Account is a GBP account visible to the authorized user.
type Account struct {
	Name              string `json:"name"`
	AccountName       string `json:"accountName"`
	Type              string `json:"type"`
	Role              string `json:"role"`
	VerificationState string `json:"verificationState"`
	VettedState       string `json:"vettedState"`
}

type listAccountsResponse struct {
	Accounts      []Account `json:"accounts"`
	NextPageToken string    `json:"nextPageToken"`
}

// PhoneNumbers holds the contact numbers of a location.
type PhoneNumbers struct {
	PrimaryPhone     string   `json:"primaryPhone"`
	AdditionalPhones []string `json:"additionalPhones,omitempty"`
}

// PostalAddress is the storefront address of a location.
type PostalAddress struct {
	RegionCode         string   `json:"regionCode"`
	PostalCode         string   `json:"postalCode"`
	Locality           string   `json:"locality"`
	AdministrativeArea string   `json:"administrativeArea"`
	AddressLines       []string `json:"addressLines"`
}

// Category is a GBP business category.
type Category struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Categories groups the primary and additional categories of a location.
type Categories struct {
	PrimaryCategory      *Category  `json:"primaryCategory,omitempty"`
	AdditionalCategories []Category `json:"additionalCategories,omitempty"`
}

// LocationMetadata carries read-only flags and URIs Google derives for a
// location.
type LocationMetadata struct {
	PlaceID              string `json:"placeId"`
	MapsURI              string `json:"mapsUri"`
	NewReviewURI         string `json:"newReviewUri"`
	HasVoiceOfMerchant   bool   `json:"hasVoiceOfMerchant"`
	CanOperateLocalPost  bool   `json:"canOperateLocalPost"`
	CanModifyServiceList bool   `json:"canModifyServiceList"`
	CanHaveFoodMenus     bool   `json:"canHaveFoodMenus"`
	CanHaveBusinessCalls bool   `json:"canHaveBusinessCalls"`
}

// Location is a GBP business location.
type Location struct {
	Name         string            `json:"name"`
	Title        string            `json:"title"`
	StoreCode    string            `json:"storeCode,omitempty"`
	LanguageCode string            `json:"languageCode,omitempty"`
	WebsiteURI   string            `json:"websiteUri,omitempty"`
	PhoneNumbers *PhoneNumbers     `json:"phoneNumbers,omitempty"`
	Address      *PostalAddress    `json:"storefrontAddress,omitempty"`
	Categories   *Categories       `json:"categories,omitempty"`
	Metadata     *LocationMetadata `json:"metadata,omitempty"`
}

// LocationsPage is one page of a location listing.
type LocationsPage struct {
	Locations     []Location `json:"locations"`
	NextPageToken string     `json:"nextPageToken"`
	TotalSize     int        `json:"totalSize"`
}

// Reviewer identifies the author of a review.
type Reviewer struct {
	ProfilePhotoURL string `json:"profilePhotoUrl"`
	DisplayName     string `json:"displayName"`
	IsAnonymous     bool   `json:"isAnonymous"`
}

// ReviewReply is the owner's reply to a review.
type ReviewReply struct {
	Comment    string    `json:"comment"`
	UpdateTime time.Time `json:"updateTime"`
}

// Review is a customer review of a location.
type Review struct {
	Name       string       `json:"name"`
	ReviewID   string       `json:"reviewId"`
	Reviewer   Reviewer     `json:"reviewer"`
	StarRating string       `json:"starRating"`
	Comment    string       `json:"comment"`
	CreateTime time.Time    `json:"createTime"`
	UpdateTime time.Time    `json:"updateTime"`
	Reply      *ReviewReply `json:"reviewReply,omitempty"`
}

// ReviewsPage is one page of a review listing.
type ReviewsPage struct {
	Reviews          []Review `json:"reviews"`
	AverageRating    float64  `json:"averageRating"`
	TotalReviewCount int      `json:"totalReviewCount"`
	NextPageToken    string   `json:"nextPageToken"`
}

// MediaDimensions are the pixel dimensions of a media item.
type MediaDimensions struct {
	WidthPixels  int `json:"widthPixels"`
	HeightPixels int `json:"heightPixels"`
}

// LocationAssociation describes how a media item relates to a location.
type LocationAssociation struct {
	Category string `json:"category"`
}

// MediaItem is a photo or video attached to a location.
type MediaItem struct {
	Name         string               `json:"name"`
	MediaFormat  string               `json:"mediaFormat"`
	SourceURL    string               `json:"sourceUrl,omitempty"`
	GoogleURL    string               `json:"googleUrl,omitempty"`
	ThumbnailURL string               `json:"thumbnailUrl,omitempty"`
	CreateTime   time.Time            `json:"createTime"`
	Dimensions   *MediaDimensions     `json:"dimensions,omitempty"`
	Association  *LocationAssociation `json:"locationAssociation,omitempty"`
}

// MediaPage is one page of a media listing.
type MediaPage struct {
	MediaItems          []MediaItem `json:"mediaItems"`
	TotalMediaItemCount int         `json:"totalMediaItemCount"`
	NextPageToken       string      `json:"nextPageToken"`
}

// CallToAction is the action button on a local post.
type CallToAction struct {
	ActionType string `json:"actionType"`
	URL        string `json:"url,omitempty"`
}

// LocalPost is a post published on a location's profile.
type LocalPost struct {
	Name         string        `json:"name"`
	LanguageCode string        `json:"languageCode,omitempty"`
	Summary      string        `json:"summary"`
	State        string        `json:"state"`
	TopicType    string        `json:"topicType"`
	CallToAction *CallToAction `json:"callToAction,omitempty"`
	Media        []MediaItem   `json:"media,omitempty"`
	CreateTime   time.Time     `json:"createTime"`
	UpdateTime   time.Time     `json:"updateTime"`
	SearchURL    string        `json:"searchUrl,omitempty"`
}

// LocalPostsPage is one page of a local-post listing.
type LocalPostsPage struct {
	LocalPosts    []LocalPost `json:"localPosts"`
	NextPageToken string      `json:"nextPageToken"`
}

// InsightsValue is either an exact value or a sub-threshold marker.
type InsightsValue struct {
	Value     string `json:"value,omitempty"`
	Threshold string `json:"threshold,omitempty"`
}

// SearchKeywordCount is the monthly impression count for one search
// keyword.
type SearchKeywordCount struct {
	SearchKeyword string        `json:"searchKeyword"`
	InsightsValue InsightsValue `json:"insightsValue"`
}

type searchKeywordsResponse struct {
	SearchKeywordsCounts []SearchKeywordCount `json:"searchKeywordsCounts"`
	NextPageToken        string               `json:"nextPageToken"`
}

// PlaceActionLink is a deep link (booking, ordering, etc.) attached to a
// location.
type PlaceActionLink struct {
	Name            string `json:"name,omitempty"`
	PlaceActionType string `json:"placeActionType"`
	URI             string `json:"uri"`
	ProviderType    string `json:"providerType,omitempty"`
	IsEditable      bool   `json:"isEditable,omitempty"`
	IsPreferred     bool   `json:"isPreferred,omitempty"`
}

type listPlaceActionLinksResponse struct {
	PlaceActionLinks []PlaceActionLink `json:"placeActionLinks"`
	NextPageToken    string            `json:"nextPageToken"`
}

// NotificationSetting configures the Pub/Sub notifications of an account.
type NotificationSetting struct {
	Name              string   `json:"name"`
	PubsubTopic       string   `json:"pubsubTopic,omitempty"`
	NotificationTypes []string `json:"notificationTypes,omitempty"`
}

// VoiceOfMerchantState reports whether a location's owner has gained
// voice of merchant (i.e. the listing is verified and in good standing).
type VoiceOfMerchantState struct {
	HasVoiceOfMerchant   bool `json:"hasVoiceOfMerchant"`
	HasBusinessAuthority bool `json:"hasBusinessAuthority"`
}
