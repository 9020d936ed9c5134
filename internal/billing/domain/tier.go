package domain

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Tiers are totally ordered.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierScale      Tier = "scale"
	TierEnterprise Tier = "enterprise"
)

var tierOrder = []Tier{TierFree, TierStarter, TierGrowth, TierScale, TierEnterprise}

// Tiers returns every tier from lowest to highest.
func Tiers() []Tier {
	out := make([]Tier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// Rank is the tier's position in the total order, or -1 when unknown.
func (t Tier) Rank() int {
	for i, candidate := range tierOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t.Rank() >= 0
}

// AtLeast reports whether t ranks at or above other. Unknown tiers never
// satisfy the comparison.
func (t Tier) AtLeast(other Tier) bool {
	r, m := t.Rank(), other.Rank()
	if r < 0 || m < 0 {
		return false
	}
	return r >= m
}

func (t Tier) String() string {
	return string(t)
}
