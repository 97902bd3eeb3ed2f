// internal/model/campaign.go
package model

import "time"

// Campaign statuses. Sent and failed are terminal.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
)

const (
	MaxTitleLength   = 65
	MaxMessageLength = 240
)

type Campaign struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Message        string         `db:"message" json:"message"`
	Status         string         `db:"status" json:"status"`
	ScheduledAt    *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	DeviceCount    int            `db:"device_count" json:"device_count"`
	DeliveredCount int            `db:"delivered_count" json:"delivered_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	Segments       []string       `db:"segments" json:"segments,omitempty"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	Metadata       map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// IsTerminal reports whether the campaign already completed delivery.
func (c *Campaign) IsTerminal() bool {
	return c.Status == StatusSent || c.Status == StatusFailed
}
