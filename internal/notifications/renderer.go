package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// renderedChannels have one template per message type, named <channel>_<message>.tmpl.
var renderedChannels = []ChannelType{ChannelTypeEmail, ChannelTypeMattermost}

var subjectPrefixes = map[MessageType]string{
	MessageTypeCreated:    "New incident",
	MessageTypeReassigned: "Reassigned",
	MessageTypeCommented:  "New comment",
}

var statusEmojis = map[domain.IncidentStatus]string{
	domain.IncidentStatusOpen:       "🆕",
	domain.IncidentStatusInProgress: "🔧",
	domain.IncidentStatusResolved:   "✅",
}

var priorityEmojis = map[domain.IncidentPriority]string{
	domain.IncidentPriorityLow:    "🟢",
	domain.IncidentPriorityMedium: "🟡",
	domain.IncidentPriorityHigh:   "🔴",
}

// Renderer turns queue payloads into channel specific subject and body text.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates and checks that every
// channel has a template for every message type.
func NewRenderer() (*Renderer, error) {
	set, err := template.New("notifications").Funcs(template.FuncMap{
		"title":         titleCase,
		"upper":         strings.ToUpper,
		"lower":         strings.ToLower,
		"humanize":      humanize,
		"formatTime":    formatTime,
		"statusEmoji":   statusEmoji,
		"priorityEmoji": priorityEmoji,
		"join":          strings.Join,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, channel := range renderedChannels {
		for _, msg := range AllMessageTypes {
			name := templateName(channel, msg)
			tmpl := set.Lookup(name + ".tmpl")
			if tmpl == nil {
				return nil, fmt.Errorf("missing template %s.tmpl", name)
			}
			r.templates[name] = tmpl
		}
	}
	return r, nil
}

// Render returns the subject and body of payload for channelType.
func (r *Renderer) Render(channelType ChannelType, payload NotificationPayload) (subject, body string, err error) {
	name := templateName(channelType, payload.MessageType)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return renderSubject(payload), strings.TrimSpace(buf.String()), nil
}

func templateName(channelType ChannelType, messageType MessageType) string {
	return string(channelType) + "_" + string(messageType)
}

// renderSubject yields "[<event>] <incident title>". Status changes use the new status as the event.
func renderSubject(payload NotificationPayload) string {
	prefix, ok := subjectPrefixes[payload.MessageType]
	switch {
	case payload.MessageType == MessageTypeStatusChanged:
		prefix = humanize(payload.Incident.Status)
	case !ok:
		prefix = "Notification"
	}
	return "[" + prefix + "] " + payload.Incident.Title
}

// titleCase builds a new Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// humanize turns enum values like IN_PROGRESS into "In Progress".
func humanize(s string) string {
	return titleCase(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func statusEmoji(status string) string {
	if e, ok := statusEmojis[domain.IncidentStatus(strings.ToUpper(status))]; ok {
		return e
	}
	return "📋"
}

func priorityEmoji(priority string) string {
	if e, ok := priorityEmojis[domain.IncidentPriority(strings.ToUpper(priority))]; ok {
		return e
	}
	return "⚪"
}
