package domain

import "errors"

var (
	ErrUnknownTier         = errors.New("unknown subscription tier")
	ErrUnknownAction       = errors.New("unknown credit action")
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrInvalidCount        = errors.New("count must be between 1 and 10000")
	ErrInvalidCredits      = errors.New("credits must be positive")
	ErrPeriodNotFound      = errors.New("credit period not found")
	ErrDuplicateCharge     = errors.New("charge reference already recorded")
	ErrChargeNotRecorded   = errors.New("charge was not recorded")
	ErrInsufficientCredits = errors.New("insufficient credits")
)
