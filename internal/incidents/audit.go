package incidents

import (
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// TouchCreate sets both timestamps of a new incident to now.
func TouchCreate(incident *domain.Incident, now time.Time) {
	if incident == nil {
		return
	}
	incident.CreatedAt = now
	incident.UpdatedAt = now
}

// TouchUpdate refreshes updated_at.
func TouchUpdate(incident *domain.Incident, now time.Time) {
	if incident == nil {
		return
	}
	incident.UpdatedAt = now
}

// TouchUpdatePreservingCreated restores created_at from the stored record
// and refreshes updated_at.
func TouchUpdatePreservingCreated(incident *domain.Incident, createdAt, now time.Time) {
	if incident == nil {
		return
	}
	incident.CreatedAt = createdAt
	incident.UpdatedAt = now
}

// MinutesSinceCreation returns whole minutes elapsed since created_at.
// Zero when the timestamp is unset.
func MinutesSinceCreation(incident *domain.Incident, now time.Time) int64 {
	if incident == nil || incident.CreatedAt.IsZero() {
		return 0
	}
	return int64(now.Sub(incident.CreatedAt) / time.Minute)
}

// MinutesSinceUpdate returns whole minutes elapsed since updated_at.
// Zero when the timestamp is unset.
func MinutesSinceUpdate(incident *domain.Incident, now time.Time) int64 {
	if incident == nil || incident.UpdatedAt.IsZero() {
		return 0
	}
	return int64(now.Sub(incident.UpdatedAt) / time.Minute)
}
