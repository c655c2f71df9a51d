// Package intake turns raw push payloads into validated alerts.
package intake

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

// Payload keys understood by Normalize.
const (
	FieldID          = "id"
	FieldChannel     = "channel"
	FieldChannelName = "channelName"
	FieldTitle       = "title"
	FieldMessage     = "message"
	FieldSeverity    = "severity"
	FieldTimestamp   = "timestamp"
	FieldMetadata    = "metadata"
)

const DefaultTitle = "New Alert"

// NormalizationError means the payload cannot become an alert and is dropped.
type NormalizationError struct {
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("invalid payload field %q: %s", e.Field, e.Reason)
}

// Normalizer is pure apart from its clock and id generator.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NewNormalizer returns a Normalizer. Nil arguments mean time.Now and random
// UUIDs.
func NewNormalizer(now func() time.Time, newID func() string) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Normalizer{now: now, newID: newID}
}

func (n *Normalizer) Normalize(payload map[string]string) (models.Alert, error) {
	channel := strings.TrimSpace(payload[FieldChannel])
	if channel == "" {
		return models.Alert{}, &NormalizationError{Field: FieldChannel, Reason: "missing or empty"}
	}

	alert := models.Alert{
		ID:          strings.TrimSpace(payload[FieldID]),
		ChannelID:   channel,
		ChannelName: strings.TrimSpace(payload[FieldChannelName]),
		Title:       payload[FieldTitle],
		Body:        payload[FieldMessage],
		Severity:    models.ParseSeverity(payload[FieldSeverity]),
		Timestamp:   n.timestamp(payload[FieldTimestamp]),
	}

	if alert.ID == "" {
		alert.ID = n.newID()
	}
	if alert.ChannelName == "" {
		alert.ChannelName = channel
	}
	if strings.TrimSpace(alert.Title) == "" {
		alert.Title = DefaultTitle
	}
	if metadata, ok := payload[FieldMetadata]; ok {
		alert.Metadata = &metadata
	}
	return alert, nil
}

// timestamp parses raw as epoch millis, falling back to receipt time.
func (n *Normalizer) timestamp(raw string) int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return n.now().UnixMilli()
	}
	return ts
}
