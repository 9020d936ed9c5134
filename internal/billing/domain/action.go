package domain

import (
	"fmt"
	"math"
	"sort"
)

// Action is a metered operation.
type Action string

const (
	ActionScrape    Action = "scrape"
	ActionEnrich    Action = "enrich"
	ActionSkipTrace Action = "skip_trace"
	ActionLeadScore Action = "lead_score"
	ActionSentiment Action = "sentiment"
	ActionAIRecap   Action = "ai_recap"
	ActionCall      Action = "call"
	ActionSMS       Action = "sms"
	ActionEmail     Action = "email"
)

var actionCosts = map[Action]int64{
	ActionScrape:    1,
	ActionEnrich:    2,
	ActionSkipTrace: 3,
	ActionLeadScore: 1,
	ActionSentiment: 1,
	ActionAIRecap:   2,
	ActionCall:      0,
	ActionSMS:       0,
	ActionEmail:     0,
}

// ActionCost returns the per-unit credit cost of action.
func ActionCost(action Action) (int64, error) {
	cost, ok := actionCosts[action]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return cost, nil
}

// Cost returns the total cost of count units of action.
// Counts outside [1, MaxCount] and totals that overflow int64 are rejected
// with ErrInvalidCount.
func Cost(action Action, count int) (int64, error) {
	if err := ValidCount(count); err != nil {
		return 0, err
	}
	unit, err := ActionCost(action)
	if err != nil {
		return 0, err
	}
	if unit > 0 && int64(count) > math.MaxInt64/unit {
		return 0, ErrInvalidCount
	}
	return unit * int64(count), nil
}

// MaxCount caps the units a single check or charge may cover.
const MaxCount = 10000

// ValidCount reports ErrInvalidCount unless 1 <= count <= MaxCount.
func ValidCount(count int) error {
	if count < 1 || count > MaxCount {
		return ErrInvalidCount
	}
	return nil
}

// Actions lists every metered action sorted by name.
func Actions() []Action {
	out := make([]Action, 0, len(actionCosts))
	for a := range actionCosts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
