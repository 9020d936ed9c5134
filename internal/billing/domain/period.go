package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PeriodStart returns the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CreditPeriod is one calendar month of usage for one user.
//
// Consumption draws down the monthly allowance first and only then the bonus
// pool. Bonus is the bonus attached to the period (carried in plus granted
// during the month), so the unspent part is Bonus minus any overflow of
// Consumed past Allowance.
type CreditPeriod struct {
	UserID      uuid.UUID
	PeriodStart time.Time
	Tier        Tier
	Allowance   Allowance
	Consumed    int64
	Bonus       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCreditPeriod opens the period starting at start. Unspent bonus from
// previous, if any, carries forward; consumption starts at zero.
func NewCreditPeriod(userID uuid.UUID, start time.Time, tier Tier, previous *CreditPeriod) (*CreditPeriod, error) {
	allowance, err := AllowanceFor(tier)
	if err != nil {
		return nil, err
	}
	var carried int64
	if previous != nil {
		carried = previous.BonusAvailable()
	}
	now := time.Now().UTC()
	return &CreditPeriod{
		UserID:      userID,
		PeriodStart: PeriodStart(start),
		Tier:        tier,
		Allowance:   allowance,
		Bonus:       carried,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AllowanceRemaining is what is left of the monthly allowance.
func (p *CreditPeriod) AllowanceRemaining() Remaining {
	if p.Allowance.Unlimited {
		return UnlimitedRemaining
	}
	return Remaining{Credits: max(0, p.Allowance.Credits-p.Consumed)}
}

// BonusAvailable is the unspent bonus.
func (p *CreditPeriod) BonusAvailable() int64 {
	if p.Allowance.Unlimited {
		return p.Bonus
	}
	overflow := max(0, p.Consumed-p.Allowance.Credits)
	return max(0, p.Bonus-overflow)
}

// Remaining is the combined allowance and bonus pool.
func (p *CreditPeriod) Remaining() Remaining {
	if p.Allowance.Unlimited {
		return UnlimitedRemaining
	}
	return Remaining{Credits: max(0, p.Allowance.Credits+p.Bonus-p.Consumed)}
}

// CanAfford reports whether cost fits in the remaining pool. Free actions
// are always affordable.
func (p *CreditPeriod) CanAfford(cost int64) bool {
	if cost == 0 {
		return true
	}
	return p.Remaining().Covers(cost)
}

// Key identifies the period in audit entries and logs.
func (p *CreditPeriod) Key() string {
	return PeriodKey(p.UserID, p.PeriodStart)
}

// PeriodKey formats user and month as "<user>:<yyyy-mm>".
func PeriodKey(userID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("%s:%s", userID, start.UTC().Format("2006-01"))
}

// Decision is the outcome of an affordability check.
type Decision struct {
	Action    Action    `json:"action"`
	Count     int       `json:"count"`
	Allowed   bool      `json:"allowed"`
	Cost      int64     `json:"cost"`
	Remaining Remaining `json:"remaining"`
}

// Decide evaluates whether count units of action fit in period. Unknown
// actions and invalid counts are errors, never allowances.
func Decide(period *CreditPeriod, action Action, count int) (Decision, error) {
	cost, err := Cost(action, count)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Action:    action,
		Count:     count,
		Allowed:   period.CanAfford(cost),
		Cost:      cost,
		Remaining: period.Remaining(),
	}, nil
}
