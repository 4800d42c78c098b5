package incidents

import (
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Filter holds optional listing filters from the client.
type Filter struct {
	Status   *domain.IncidentStatus
	Priority *domain.IncidentPriority
	Query    *string
}

// NormalizeSearchTerm trims the term and returns nil for blank input.
func NormalizeSearchTerm(term *string) *string {
	if term == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*term)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SearchPlan turns a filter into the ordered list of queries to try.
// The next query runs only when the previous one returned an empty page.
//
// A term combined with status or priority is matched against the title
// first, then against the description. A term alone matches either column.
func SearchPlan(f Filter) []Criteria {
	term := NormalizeSearchTerm(f.Query)

	if term == nil {
		return []Criteria{{Status: f.Status, Priority: f.Priority}}
	}

	if f.Status == nil && f.Priority == nil {
		return []Criteria{{Term: *term, Field: TermInAny}}
	}

	return []Criteria{
		{Status: f.Status, Priority: f.Priority, Term: *term, Field: TermInTitle},
		{Status: f.Status, Priority: f.Priority, Term: *term, Field: TermInDescription},
	}
}
