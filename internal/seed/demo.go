package seed

import "github.com/bissquit/incident-tracker/internal/domain"

var demoUsers = []string{"analyst", "technician", "support"}

type demoComment struct {
	author  string
	message string
}

type demoIncident struct {
	title       string
	description string
	priority    domain.IncidentPriority
	status      domain.IncidentStatus
	email       string
	tags        []string
	comments    []demoComment
}

var demoIncidents = []demoIncident{
	{
		title:       "Production server not responding",
		description: "The main server times out on incoming requests. Users cannot reach the application.",
		priority:    domain.IncidentPriorityHigh,
		status:      domain.IncidentStatusOpen,
		email:       "admin@example.com",
		tags:        []string{"production", "server", "critical"},
		comments: []demoComment{
			{"admin", "Incident confirmed. Starting to go through the server logs."},
			{"technician", "Checking service health and available memory."},
		},
	},
	{
		title:       "Slow database queries",
		description: "Database queries take more than 30 seconds to return results.",
		priority:    domain.IncidentPriorityMedium,
		status:      domain.IncidentStatusInProgress,
		email:       "analyst@example.com",
		tags:        []string{"database", "performance", "latency"},
		comments: []demoComment{
			{"analyst", "Reviewed the slowest queries. Three of them look problematic."},
			{"admin", "Indexes need tuning. Maintenance scheduled for the weekend."},
		},
	},
	{
		title:       "Nightly backup failed",
		description: "Last night's automated backup failed with an insufficient disk space error.",
		priority:    domain.IncidentPriorityMedium,
		status:      domain.IncidentStatusResolved,
		email:       "technician@example.com",
		tags:        []string{"backup", "storage", "automation"},
		comments: []demoComment{
			{"technician", "Freed disk space and re-ran the backup successfully."},
			{"admin", "Resolved. Adding disk usage alerts to prevent a repeat."},
		},
	},
	{
		title:       "Payments API unstable",
		description: "The payments API intermittently returns HTTP 500, affecting transactions.",
		priority:    domain.IncidentPriorityHigh,
		status:      domain.IncidentStatusInProgress,
		email:       "support@example.com",
		tags:        []string{"api", "payments", "transactions"},
	},
	{
		title:       "Wi-Fi connectivity problems",
		description: "Users on the third floor report intermittent Wi-Fi drops.",
		priority:    domain.IncidentPriorityLow,
		status:      domain.IncidentStatusOpen,
		email:       "technician@example.com",
		tags:        []string{"wifi", "network", "connectivity"},
	},
	{
		title:       "Expired TLS certificate",
		description: "The main site's certificate expired and browsers show security warnings.",
		priority:    domain.IncidentPriorityHigh,
		status:      domain.IncidentStatusResolved,
		email:       "admin@example.com",
		tags:        []string{"tls", "certificate", "security"},
	},
	{
		title:       "Log pipeline down",
		description: "Log collection stopped. There is no visibility into the last six hours of events.",
		priority:    domain.IncidentPriorityMedium,
		status:      domain.IncidentStatusInProgress,
		email:       "analyst@example.com",
		tags:        []string{"logs", "monitoring", "observability"},
	},
}
