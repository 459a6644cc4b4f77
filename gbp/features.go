package gbp

// FeatureEligibility is the locally computed view of which dashboard
// features a location can use, derived from the metadata flags Google
// returns on the location itself.
type FeatureEligibility struct {
	CanReplyToReviews  bool `json:"canReplyToReviews"`
	CanCreatePosts     bool `json:"canCreatePosts"`
	CanUploadMedia     bool `json:"canUploadMedia"`
	CanEditServices    bool `json:"canEditServices"`
	CanManageFoodMenus bool `json:"canManageFoodMenus"`
}

// deriveFeatureEligibility maps location metadata to feature flags.
// Everything requires voice of merchant; posting and menu management
// additionally require their own capability flags.
func deriveFeatureEligibility(loc *Location) FeatureEligibility {
	if loc == nil || loc.Metadata == nil {
		return FeatureEligibility{}
	}

	md := loc.Metadata
	if !md.HasVoiceOfMerchant {
		return FeatureEligibility{}
	}

	return FeatureEligibility{
		CanReplyToReviews:  true,
		CanCreatePosts:     md.CanOperateLocalPost,
		CanUploadMedia:     true,
		CanEditServices:    md.CanModifyServiceList,
		CanManageFoodMenus: md.CanHaveFoodMenus,
	}
}
