package domain

import "errors"

var (
	ErrNoProviders        = errors.New("no enrichment providers configured")
	ErrMissingCredentials = errors.New("enrichment provider credentials missing")
	ErrCircuitOpen        = errors.New("provider circuit open")
	ErrRecordNotFound     = errors.New("enrichment record not found")
	ErrInvalidLead        = errors.New("lead id is required")
)
