package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen       IncidentStatus = "OPEN"
	IncidentStatusInProgress IncidentStatus = "IN_PROGRESS"
	IncidentStatusResolved   IncidentStatus = "RESOLVED"
)

// AllIncidentStatuses lists statuses in display order.
var AllIncidentStatuses = []IncidentStatus{
	IncidentStatusOpen,
	IncidentStatusInProgress,
	IncidentStatusResolved,
}

// IsValid checks if the status is a known value.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusInProgress, IncidentStatusResolved:
		return true
	}
	return false
}

// IncidentPriority represents how urgent an incident is.
type IncidentPriority string

// Incident priorities.
const (
	IncidentPriorityLow    IncidentPriority = "LOW"
	IncidentPriorityMedium IncidentPriority = "MEDIUM"
	IncidentPriorityHigh   IncidentPriority = "HIGH"
)

// AllIncidentPriorities lists priorities in ascending order.
var AllIncidentPriorities = []IncidentPriority{
	IncidentPriorityLow,
	IncidentPriorityMedium,
	IncidentPriorityHigh,
}

// IsValid checks if the priority is a known value.
func (p IncidentPriority) IsValid() bool {
	switch p {
	case IncidentPriorityLow, IncidentPriorityMedium, IncidentPriorityHigh:
		return true
	}
	return false
}

// Incident represents a reported problem.
type Incident struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Priority         IncidentPriority `json:"priority"`
	Status           IncidentStatus   `json:"status"`
	ResponsibleEmail string           `json:"responsible_email"`
	Tags             []string         `json:"tags"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IncidentStats holds incident counts.
type IncidentStats struct {
	Total      int64                      `json:"total"`
	ByStatus   map[IncidentStatus]int64   `json:"by_status"`
	ByPriority map[IncidentPriority]int64 `json:"by_priority"`
}
