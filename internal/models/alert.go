package models

import "strings"

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// ParseSeverity maps raw input case-insensitively onto a Severity. Anything
// unrecognized, including the empty string, is INFO and never escalated.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Alert is one notification instance received from the push transport.
type Alert struct {
	ID             string   `json:"id"`
	ChannelID      string   `json:"channel_id"`
	ChannelName    string   `json:"channel_name"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Severity       Severity `json:"severity"`
	Timestamp      int64    `json:"timestamp"` // epoch millis
	IsRead         bool     `json:"is_read"`
	AcknowledgedAt *int64   `json:"acknowledged_at,omitempty"` // epoch millis
	Metadata       *string  `json:"metadata,omitempty"`
}

// AlertFilter narrows ListAlerts results. Zero value lists everything.
type AlertFilter struct {
	ChannelID  string
	UnreadOnly bool
	Limit      int
	Offset     int
}
