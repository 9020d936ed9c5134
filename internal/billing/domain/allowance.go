package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Allowance is a tier's monthly credit allowance.
type Allowance struct {
	Credits   int64
	Unlimited bool
}

var allowances = map[Tier]Allowance{
	TierFree:       {Credits: 25},
	TierStarter:    {Credits: 100},
	TierGrowth:     {Credits: 500},
	TierScale:      {Credits: 2000},
	TierEnterprise: {Unlimited: true},
}

// unlimitedAllowance is how an unbounded allowance is stored.
const unlimitedAllowance int64 = -1

// AllowanceFor returns the monthly allowance for tier.
func AllowanceFor(tier Tier) (Allowance, error) {
	a, ok := allowances[tier]
	if !ok {
		return Allowance{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return a, nil
}

// Stored encodes the allowance for persistence, using -1 for unlimited.
func (a Allowance) Stored() int64 {
	if a.Unlimited {
		return unlimitedAllowance
	}
	return a.Credits
}

// AllowanceFromStored reverses Stored.
func AllowanceFromStored(v int64) Allowance {
	if v < 0 {
		return Allowance{Unlimited: true}
	}
	return Allowance{Credits: v}
}

// Covers reports whether a compares at or above other.
func (a Allowance) Covers(other Allowance) bool {
	if a.Unlimited {
		return true
	}
	if other.Unlimited {
		return false
	}
	return a.Credits >= other.Credits
}

func (a Allowance) String() string {
	if a.Unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(a.Credits, 10)
}

// Remaining is a credit balance that may be unbounded. It encodes to JSON as
// a number or the string "unlimited".
type Remaining struct {
	Credits   int64
	Unlimited bool
}

// UnlimitedRemaining is the balance of an unbounded allowance.
var UnlimitedRemaining = Remaining{Unlimited: true}

// Covers reports whether the balance can pay cost.
func (r Remaining) Covers(cost int64) bool {
	return r.Unlimited || r.Credits >= cost
}

func (r Remaining) String() string {
	if r.Unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(r.Credits, 10)
}

func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(r.Credits, 10)), nil
}

func (r *Remaining) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("invalid remaining value %q", s)
		}
		*r = UnlimitedRemaining
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = Remaining{Credits: n}
	return nil
}
