package notifications

import (
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeCreated       MessageType = "created"
	MessageTypeStatusChanged MessageType = "status_changed"
	MessageTypeReassigned    MessageType = "reassigned"
	MessageTypeCommented     MessageType = "commented"
)

// AllMessageTypes lists every message type a template exists for.
var AllMessageTypes = []MessageType{
	MessageTypeCreated,
	MessageTypeStatusChanged,
	MessageTypeReassigned,
	MessageTypeCommented,
}

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	MessageType MessageType      `json:"message_type"`
	Incident    IncidentData     `json:"incident"`
	Changes     *IncidentChanges `json:"changes,omitempty"`
	Comment     *CommentData     `json:"comment,omitempty"`
	IncidentURL string           `json:"incident_url,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// IncidentData contains incident information for notification.
type IncidentData struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Priority         string    `json:"priority"`
	Status           string    `json:"status"`
	ResponsibleEmail string    `json:"responsible_email"`
	Tags             []string  `json:"tags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IncidentChanges describes what changed in an incident.
type IncidentChanges struct {
	StatusFrom string `json:"status_from,omitempty"`
	StatusTo   string `json:"status_to,omitempty"`
	EmailFrom  string `json:"email_from,omitempty"`
	EmailTo    string `json:"email_to,omitempty"`
}

// CommentData contains comment information for notification.
type CommentData struct {
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func newIncidentData(inc *domain.Incident) IncidentData {
	return IncidentData{
		ID:               inc.ID,
		Title:            inc.Title,
		Description:      inc.Description,
		Priority:         string(inc.Priority),
		Status:           string(inc.Status),
		ResponsibleEmail: inc.ResponsibleEmail,
		Tags:             inc.Tags,
		CreatedAt:        inc.CreatedAt,
		UpdatedAt:        inc.UpdatedAt,
	}
}

// NewCreatedPayload creates a payload for a newly created incident.
func NewCreatedPayload(inc *domain.Incident, url string) NotificationPayload {
	return NotificationPayload{
		MessageType: MessageTypeCreated,
		Incident:    newIncidentData(inc),
		IncidentURL: url,
		GeneratedAt: time.Now().UTC(),
	}
}

// NewStatusChangedPayload creates a payload for a status transition.
func NewStatusChangedPayload(inc *domain.Incident, from domain.IncidentStatus, url string) NotificationPayload {
	return NotificationPayload{
		MessageType: MessageTypeStatusChanged,
		Incident:    newIncidentData(inc),
		Changes: &IncidentChanges{
			StatusFrom: string(from),
			StatusTo:   string(inc.Status),
		},
		IncidentURL: url,
		GeneratedAt: time.Now().UTC(),
	}
}

// NewReassignedPayload creates a payload for a change of responsible person.
func NewReassignedPayload(inc *domain.Incident, previousEmail, url string) NotificationPayload {
	return NotificationPayload{
		MessageType: MessageTypeReassigned,
		Incident:    newIncidentData(inc),
		Changes: &IncidentChanges{
			EmailFrom: previousEmail,
			EmailTo:   inc.ResponsibleEmail,
		},
		IncidentURL: url,
		GeneratedAt: time.Now().UTC(),
	}
}

// NewCommentedPayload creates a payload for a new comment.
func NewCommentedPayload(inc *domain.Incident, c *domain.Comment, url string) NotificationPayload {
	return NotificationPayload{
		MessageType: MessageTypeCommented,
		Incident:    newIncidentData(inc),
		Comment: &CommentData{
			Author:    c.Author,
			Message:   c.Message,
			CreatedAt: c.CreatedAt,
		},
		IncidentURL: url,
		GeneratedAt: time.Now().UTC(),
	}
}
