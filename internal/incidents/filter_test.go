package incidents

import (
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestNormalizeSearchTerm(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want *string
	}{
		{"nil", nil, nil},
		{"empty", ptr(""), nil},
		{"blank", ptr("   "), nil},
		{"trimmed", ptr("  db down "), ptr("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSearchTerm(tt.in))
		})
	}
}

func TestSearchPlan(t *testing.T) {
	open := ptr(domain.IncidentStatusOpen)
	high := ptr(domain.IncidentPriorityHigh)

	tests := []struct {
		name   string
		filter Filter
		want   []Criteria
	}{
		{
			name:   "no filter",
			filter: Filter{},
			want:   []Criteria{{}},
		},
		{
			name:   "blank term is ignored",
			filter: Filter{Query: ptr("  ")},
			want:   []Criteria{{}},
		},
		{
			name:   "status priority and term",
			filter: Filter{Status: open, Priority: high, Query: ptr(" db ")},
			want: []Criteria{
				{Status: open, Priority: high, Term: "db", Field: TermInTitle},
				{Status: open, Priority: high, Term: "db", Field: TermInDescription},
			},
		},
		{
			name:   "status and term",
			filter: Filter{Status: open, Query: ptr("db")},
			want: []Criteria{
				{Status: open, Term: "db", Field: TermInTitle},
				{Status: open, Term: "db", Field: TermInDescription},
			},
		},
		{
			name:   "priority and term",
			filter: Filter{Priority: high, Query: ptr("db")},
			want: []Criteria{
				{Priority: high, Term: "db", Field: TermInTitle},
				{Priority: high, Term: "db", Field: TermInDescription},
			},
		},
		{
			name:   "term only",
			filter: Filter{Query: ptr("db")},
			want:   []Criteria{{Term: "db", Field: TermInAny}},
		},
		{
			name:   "status and priority",
			filter: Filter{Status: open, Priority: high},
			want:   []Criteria{{Status: open, Priority: high}},
		},
		{
			name:   "status only",
			filter: Filter{Status: open},
			want:   []Criteria{{Status: open}},
		},
		{
			name:   "priority only",
			filter: Filter{Priority: high},
			want:   []Criteria{{Priority: high}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SearchPlan(tt.filter))
		})
	}
}
