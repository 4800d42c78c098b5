package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// NotifierConfig configures which channels receive incident notifications.
type NotifierConfig struct {
	EmailEnabled         bool
	MattermostWebhookURL string
	// BaseURL is used to build links to incidents, e.g. https://tracker.example.com.
	BaseURL     string
	MaxAttempts int
}

// Notifier turns incident events into queue items for the worker.
type Notifier struct {
	repo   Repository
	config NotifierConfig
	now    func() time.Time
}

// NewNotifier creates a new Notifier.
func NewNotifier(repo Repository, config NotifierConfig) *Notifier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultWorkerConfig().MaxAttempts
	}
	return &Notifier{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// OnIncidentCreated notifies the responsible person about a new incident.
func (n *Notifier) OnIncidentCreated(ctx context.Context, incident *domain.Incident) error {
	payload := NewCreatedPayload(incident, n.incidentURL(incident.ID))
	return n.enqueue(ctx, incident.ID, payload, incident.ResponsibleEmail)
}

// OnIncidentStatusChanged notifies the responsible person about a status transition.
func (n *Notifier) OnIncidentStatusChanged(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error {
	payload := NewStatusChangedPayload(incident, from, n.incidentURL(incident.ID))
	return n.enqueue(ctx, incident.ID, payload, incident.ResponsibleEmail)
}

// OnIncidentReassigned notifies both the new and the previous responsible person.
func (n *Notifier) OnIncidentReassigned(ctx context.Context, incident *domain.Incident, previousEmail string) error {
	payload := NewReassignedPayload(incident, previousEmail, n.incidentURL(incident.ID))
	return n.enqueue(ctx, incident.ID, payload, incident.ResponsibleEmail, previousEmail)
}

// OnIncidentCommented notifies the responsible person about a new comment.
func (n *Notifier) OnIncidentCommented(ctx context.Context, incident *domain.Incident, comment *domain.Comment) error {
	payload := NewCommentedPayload(incident, comment, n.incidentURL(incident.ID))
	return n.enqueue(ctx, incident.ID, payload, incident.ResponsibleEmail)
}

func (n *Notifier) enqueue(ctx context.Context, incidentID string, payload NotificationPayload, emails ...string) error {
	items := n.buildItems(incidentID, payload, emails)
	if len(items) == 0 {
		slog.Debug("no notification channels configured", "incident_id", incidentID)
		return nil
	}

	for _, item := range items {
		if err := n.repo.EnqueueNotification(ctx, item); err != nil {
			return fmt.Errorf("enqueue %s notification: %w", item.ChannelType, err)
		}
	}

	slog.Debug("notifications enqueued",
		"incident_id", incidentID,
		"message_type", payload.MessageType,
		"count", len(items),
	)
	return nil
}

func (n *Notifier) buildItems(incidentID string, payload NotificationPayload, emails []string) []*QueueItem {
	now := n.now()
	newItem := func(channelType ChannelType, target string) *QueueItem {
		return &QueueItem{
			IncidentID:    incidentID,
			ChannelType:   channelType,
			Target:        target,
			Payload:       payload,
			Status:        QueueStatusPending,
			MaxAttempts:   n.config.MaxAttempts,
			NextAttemptAt: now,
		}
	}

	var items []*QueueItem
	if n.config.EmailEnabled {
		seen := make(map[string]bool, len(emails))
		for _, email := range emails {
			key := strings.ToLower(strings.TrimSpace(email))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, newItem(ChannelTypeEmail, strings.TrimSpace(email)))
		}
	}
	if n.config.MattermostWebhookURL != "" {
		items = append(items, newItem(ChannelTypeMattermost, n.config.MattermostWebhookURL))
	}
	return items
}

func (n *Notifier) incidentURL(id string) string {
	if n.config.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(n.config.BaseURL, "/") + "/incidents/" + id
}
