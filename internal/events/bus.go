// Package events is the in-process bus between the intake path, the HTTP API
// and the lifecycle glue.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

const (
	TopicAlertsStored       = "alerts.stored"
	TopicAlertsAcknowledged = "alerts.acknowledged"
	TopicSettingsChanged    = "settings.changed"
)

// AlertStored is published after an alert is durably upserted.
type AlertStored struct {
	AlertID   string          `json:"alert_id"`
	ChannelID string          `json:"channel_id"`
	Severity  models.Severity `json:"severity"`
}

// AlertsAcknowledged is published after alerts change read state. Either
// AlertID or ChannelID is set.
type AlertsAcknowledged struct {
	AlertID   string `json:"alert_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Read      bool   `json:"read"`
}

type SettingsChanged struct {
	Settings models.Settings `json:"settings"`
}

// Handler processes one event payload. A returned error is logged; the
// message is acknowledged either way.
type Handler func(ctx context.Context, payload []byte) error

type Bus struct {
	pubsub *gochannel.GoChannel
	logger *logging.Logger
}

func NewBus(logger *logging.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			&watermillLogger{entry: logrus.NewEntry(logger.Logger)},
		),
		logger: logger,
	}
}

// Publish JSON-encodes v and publishes it on topic. Messages on a topic with
// no subscribers are dropped.
func (b *Bus) Publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}
	return nil
}

// Subscribe runs handler for every message on topic until ctx is done or the
// bus is closed. Messages are handled one at a time.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			if err := handler(ctx, msg.Payload); err != nil {
				b.logger.WithFields(logrus.Fields{
					"topic":      topic,
					"message_id": msg.UUID,
				}).Errorf("Event handler failed: %v", err)
			}
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Decode unmarshals an event payload into v.
func Decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return nil
}

// watermillLogger routes watermill's internal logging through logrus.
type watermillLogger struct {
	entry *logrus.Entry
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
