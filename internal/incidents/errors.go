package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrInvalidStatus    = errors.New("invalid incident status")
	ErrInvalidPriority  = errors.New("invalid incident priority")
	ErrTooManyTags      = errors.New("too many tags")
)
