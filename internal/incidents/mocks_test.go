package incidents

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	incidents map[string]*domain.Incident
	searches  []Criteria
	nextID    int
	createErr error
	searchErr error
	// onCount runs inside Count, between reading and caching stats.
	onCount    func()
	countCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
	}
}

func (m *mockRepository) Create(_ context.Context, incident *domain.Incident) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	incident.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", m.nextID)
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*domain.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	copied := *incident
	return &copied, nil
}

func (m *mockRepository) Update(_ context.Context, incident *domain.Incident) error {
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.incidents[id]; !ok {
		return ErrIncidentNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *mockRepository) Search(_ context.Context, c Criteria, page domain.PageRequest) ([]domain.Incident, int64, error) {
	m.searches = append(m.searches, c)
	if m.searchErr != nil {
		return nil, 0, m.searchErr
	}

	matched := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if c.Status != nil && inc.Status != *c.Status {
			continue
		}
		if c.Priority != nil && inc.Priority != *c.Priority {
			continue
		}
		if c.Term != "" && !matchTerm(inc, c) {
			continue
		}
		matched = append(matched, *inc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := page.Offset()
	if start >= len(matched) {
		return []domain.Incident{}, total, nil
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matchTerm(inc *domain.Incident, c Criteria) bool {
	term := strings.ToLower(c.Term)
	inTitle := strings.Contains(strings.ToLower(inc.Title), term)
	inDescription := strings.Contains(strings.ToLower(inc.Description), term)
	switch c.Field {
	case TermInTitle:
		return inTitle
	case TermInDescription:
		return inDescription
	default:
		return inTitle || inDescription
	}
}

func (m *mockRepository) Count(_ context.Context) (int64, error) {
	m.countCalls++
	n := int64(len(m.incidents))
	if m.onCount != nil {
		m.onCount()
	}
	return n, nil
}

func (m *mockRepository) CountByStatus(_ context.Context) (map[domain.IncidentStatus]int64, error) {
	counts := make(map[domain.IncidentStatus]int64)
	for _, inc := range m.incidents {
		counts[inc.Status]++
	}
	return counts, nil
}

func (m *mockRepository) CountByPriority(_ context.Context) (map[domain.IncidentPriority]int64, error) {
	counts := make(map[domain.IncidentPriority]int64)
	for _, inc := range m.incidents {
		counts[inc.Priority]++
	}
	return counts, nil
}

// mockNotifier records notifications.
type mockNotifier struct {
	created       []string
	statusChanges []domain.IncidentStatus
	reassigned    []string
	err           error
}

func (m *mockNotifier) OnIncidentCreated(_ context.Context, incident *domain.Incident) error {
	m.created = append(m.created, incident.ID)
	return m.err
}

func (m *mockNotifier) OnIncidentStatusChanged(_ context.Context, _ *domain.Incident, from domain.IncidentStatus) error {
	m.statusChanges = append(m.statusChanges, from)
	return m.err
}

func (m *mockNotifier) OnIncidentReassigned(_ context.Context, _ *domain.Incident, previousEmail string) error {
	m.reassigned = append(m.reassigned, previousEmail)
	return m.err
}

// memoryCache is an in-memory cache.Cache.
type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (c *memoryCache) Ping(context.Context) error { return nil }
func (c *memoryCache) Close() error { return nil }
