package domain

import (
	"fmt"
	"sort"
)

// Feature is a tier-gated capability.
type Feature string

const (
	FeatureCRMExport           Feature = "crm_export"
	FeatureBulkEnrichment      Feature = "bulk_enrichment"
	FeatureAICallRecaps        Feature = "ai_call_recaps"
	FeatureSentimentAnalysis   Feature = "sentiment_analysis"
	FeatureWebhookIntegrations Feature = "webhook_integrations"
	FeatureAPIAccess           Feature = "api_access"
	FeatureTeamSeats           Feature = "team_seats"
	FeatureWhiteLabel          Feature = "white_label"
)

var featureGates = map[Feature]Tier{
	FeatureCRMExport:           TierStarter,
	FeatureBulkEnrichment:      TierGrowth,
	FeatureAICallRecaps:        TierGrowth,
	FeatureSentimentAnalysis:   TierGrowth,
	FeatureWebhookIntegrations: TierScale,
	FeatureAPIAccess:           TierScale,
	FeatureTeamSeats:           TierScale,
	FeatureWhiteLabel:          TierEnterprise,
}

// FeatureMinTier returns the lowest tier that unlocks feature.
func FeatureMinTier(feature Feature) (Tier, error) {
	tier, ok := featureGates[feature]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	return tier, nil
}

// HasFeature reports whether tier unlocks feature. Unknown features and
// tiers are denied.
func HasFeature(tier Tier, feature Feature) bool {
	minTier, err := FeatureMinTier(feature)
	if err != nil {
		return false
	}
	return tier.AtLeast(minTier)
}

// FeatureDecision is the outcome of a feature gate check.
type FeatureDecision struct {
	Feature      Feature `json:"feature"`
	Tier         Tier    `json:"tier"`
	Allowed      bool    `json:"allowed"`
	RequiredTier Tier    `json:"required_tier"`
}

// CheckFeature evaluates the gate for tier and feature.
func CheckFeature(tier Tier, feature Feature) (FeatureDecision, error) {
	minTier, err := FeatureMinTier(feature)
	if err != nil {
		return FeatureDecision{}, err
	}
	if !tier.IsValid() {
		return FeatureDecision{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return FeatureDecision{
		Feature:      feature,
		Tier:         tier,
		Allowed:      tier.AtLeast(minTier),
		RequiredTier: minTier,
	}, nil
}

// Features lists every gated feature sorted by name.
func Features() []Feature {
	out := make([]Feature, 0, len(featureGates))
	for f := range featureGates {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
