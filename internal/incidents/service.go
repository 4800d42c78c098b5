// Package incidents provides HTTP handlers and business logic for managing incidents.
package incidents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/cache"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
)

// Notifier is informed about incident changes that concern the responsible person.
type Notifier interface {
	OnIncidentCreated(ctx context.Context, incident *domain.Incident) error
	OnIncidentStatusChanged(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error
	OnIncidentReassigned(ctx context.Context, incident *domain.Incident, previousEmail string) error
}

// Input holds data for creating or replacing an incident.
type Input struct {
	Title            string
	Description      string
	Priority         domain.IncidentPriority
	Status           domain.IncidentStatus
	ResponsibleEmail string
	Tags             []string
}

// Service implements incident business logic.
type Service struct {
	repo     Repository
	notifier Notifier
	cache    cache.Cache
	statsTTL time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notifier for incident changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithStatsCache caches statistics in c for ttl.
func WithStatsCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.statsTTL = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new incident service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cache: cache.Noop{},
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates, normalizes and stores a new incident.
func (s *Service) Create(ctx context.Context, input Input) (*domain.Incident, error) {
	if input.Status == "" {
		input.Status = domain.IncidentStatusOpen
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		Title:            input.Title,
		Description:      input.Description,
		Priority:         input.Priority,
		Status:           input.Status,
		ResponsibleEmail: input.ResponsibleEmail,
		Tags:             NormalizeTags(input.Tags),
	}
	TouchCreate(incident, s.now())

	if err := s.repo.Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues("create").Inc()
	s.invalidateStats(ctx)

	if s.notifier != nil {
		if err := s.notifier.OnIncidentCreated(ctx, incident); err != nil {
			ctxlog.FromContext(ctx).Error("failed to notify incident created", "incident_id", incident.ID, "error", err)
		}
	}

	return incident, nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of incidents matching filter.
func (s *Service) List(ctx context.Context, filter Filter, page domain.PageRequest) (domain.Page[domain.Incident], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return domain.Page[domain.Incident]{}, ErrInvalidStatus
	}
	if filter.Priority != nil && !filter.Priority.IsValid() {
		return domain.Page[domain.Incident]{}, ErrInvalidPriority
	}

	plan := SearchPlan(filter)

	var result domain.Page[domain.Incident]
	for _, criteria := range plan {
		items, total, err := s.repo.Search(ctx, criteria, page)
		if err != nil {
			return domain.Page[domain.Incident]{}, fmt.Errorf("search incidents: %w", err)
		}
		result = domain.NewPage(items, total, page)
		if result.HasContent() {
			break
		}
	}

	return result, nil
}

// Update replaces the mutable fields of an incident.
func (s *Service) Update(ctx context.Context, id string, input Input) (*domain.Incident, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		ID:               existing.ID,
		Title:            input.Title,
		Description:      input.Description,
		Priority:         input.Priority,
		Status:           input.Status,
		ResponsibleEmail: input.ResponsibleEmail,
		Tags:             NormalizeTags(input.Tags),
	}
	now := s.now()
	TouchUpdatePreservingCreated(incident, existing.CreatedAt, now)

	if err := s.repo.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues("update").Inc()
	s.invalidateStats(ctx)

	s.observeTransition(ctx, incident, existing, now)
	s.notifyChanges(ctx, incident, existing)

	return incident, nil
}

// UpdateStatus changes only the status of an incident.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.IncidentStatus) (*domain.Incident, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	incident, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := *incident
	incident.Status = status
	now := s.now()
	TouchUpdate(incident, now)

	if err := s.repo.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident status: %w", err)
	}

	metrics.IncidentMutations.WithLabelValues("update_status").Inc()
	s.invalidateStats(ctx)

	s.observeTransition(ctx, incident, &previous, now)
	s.notifyChanges(ctx, incident, &previous)

	return incident, nil
}

// Delete removes an incident and its comments.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	metrics.IncidentMutations.WithLabelValues("delete").Inc()
	s.invalidateStats(ctx)

	return nil
}

// Stats returns incident counts, zero-filled for every status and priority.
func (s *Service) Stats(ctx context.Context) (*domain.IncidentStats, error) {
	logger := ctxlog.FromContext(ctx)

	gen, err := s.statsGeneration(ctx)
	if err != nil {
		metrics.CacheRequests.WithLabelValues(cache.IncidentStatsKey, "error").Inc()
		logger.Warn("failed to read stats generation", "error", err)
		return s.loadStats(ctx)
	}
	key := cache.IncidentStatsVersionKey(gen)

	cached, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues(cache.IncidentStatsKey, "error").Inc()
		logger.Warn("failed to read stats cache", "error", err)
	case found:
		var stats domain.IncidentStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			metrics.CacheRequests.WithLabelValues(cache.IncidentStatsKey, "hit").Inc()
			return &stats, nil
		}
		logger.Warn("discarding malformed stats cache entry")
	default:
		metrics.CacheRequests.WithLabelValues(cache.IncidentStatsKey, "miss").Inc()
	}

	stats, err := s.loadStats(ctx)
	if err != nil {
		return nil, err
	}

	if s.statsTTL > 0 {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, data, s.statsTTL); err != nil {
				logger.Warn("failed to write stats cache", "error", err)
			}
		}
	}

	return stats, nil
}

// statsGeneration reads the current stats generation; a missing counter is zero.
func (s *Service) statsGeneration(ctx context.Context) (int64, error) {
	raw, found, err := s.cache.Get(ctx, cache.IncidentStatsGenerationKey)
	if err != nil || !found {
		return 0, err
	}
	gen, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stats generation %q: %w", raw, err)
	}
	return gen, nil
}

func (s *Service) loadStats(ctx context.Context) (*domain.IncidentStats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count incidents by status: %w", err)
	}

	byPriority, err := s.repo.CountByPriority(ctx)
	if err != nil {
		return nil, fmt.Errorf("count incidents by priority: %w", err)
	}

	stats := &domain.IncidentStats{
		Total:      total,
		ByStatus:   make(map[domain.IncidentStatus]int64, len(domain.AllIncidentStatuses)),
		ByPriority: make(map[domain.IncidentPriority]int64, len(domain.AllIncidentPriorities)),
	}
	for _, st := range domain.AllIncidentStatuses {
		stats.ByStatus[st] = byStatus[st]
	}
	for _, p := range domain.AllIncidentPriorities {
		stats.ByPriority[p] = byPriority[p]
	}

	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, cache.IncidentStatsGenerationKey); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to invalidate stats cache", "error", err)
	}
}

// observeTransition logs status changes and records resolution time when
// an incident becomes RESOLVED.
func (s *Service) observeTransition(ctx context.Context, incident, previous *domain.Incident, now time.Time) {
	if previous.Status == incident.Status {
		return
	}

	ctxlog.FromContext(ctx).Info("incident status changed",
		"incident_id", incident.ID,
		"from", previous.Status,
		"to", incident.Status,
		"idle_minutes", MinutesSinceUpdate(previous, now),
		"tags", TagsToString(incident.Tags),
	)

	if incident.Status == domain.IncidentStatusResolved {
		metrics.IncidentResolutionMinutes.Observe(float64(MinutesSinceCreation(incident, now)))
	}
}

func (s *Service) notifyChanges(ctx context.Context, incident, previous *domain.Incident) {
	if s.notifier == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)

	if previous.Status != incident.Status {
		if err := s.notifier.OnIncidentStatusChanged(ctx, incident, previous.Status); err != nil {
			logger.Error("failed to notify status change", "incident_id", incident.ID, "error", err)
		}
	}
	if previous.ResponsibleEmail != incident.ResponsibleEmail {
		if err := s.notifier.OnIncidentReassigned(ctx, incident, previous.ResponsibleEmail); err != nil {
			logger.Error("failed to notify reassignment", "incident_id", incident.ID, "error", err)
		}
	}
}

func validateInput(input Input) error {
	if !input.Status.IsValid() {
		return ErrInvalidStatus
	}
	if !input.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if CountValidTags(input.Tags) > MaxTags {
		return fmt.Errorf("%w: at most %d allowed", ErrTooManyTags, MaxTags)
	}
	return nil
}
