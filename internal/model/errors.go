package model

import "errors"

var (
	// ErrDiagnosticNotFound is returned when no diagnostic matches a slug or ID.
	ErrDiagnosticNotFound = errors.New("diagnostic not found")
	// ErrLeadNotFound is returned when no lead matches an ID.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrSetupRequired means no diagnostic could be resolved at all.
	ErrSetupRequired = errors.New("no diagnostic configured")
	// ErrDuplicateSlug is returned when a slug is already taken by another diagnostic.
	ErrDuplicateSlug = errors.New("slug already in use")
)
