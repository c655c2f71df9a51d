// Package notification owns the intake queue and the delivery of reminder
// engine output to clients.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/config"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/events"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/intake"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/utils"
)

const (
	storeAttempts   = 5
	storeRetryDelay = time.Second
)

var ErrServiceStopped = errors.New("intake service stopped")

// Publisher announces stored alerts.
type Publisher interface {
	Publish(topic string, v interface{}) error
}

// job is one queued payload. done, when set, receives the intake result.
type job struct {
	payload map[string]string
	done    chan error
}

// Service normalizes queued push payloads and stores them. A single worker
// drains the queue so alerts are stored in arrival order. A payload that hits
// a storage error is held and retried until it is stored or the service stops.
type Service struct {
	store      store.AlertStore
	normalizer *intake.Normalizer
	bus        Publisher
	logger     *logging.Logger
	config     config.Config
	jobs       chan job
	ctx        context.Context
	cancel     context.CancelFunc
	wg         *sync.WaitGroup
	now        func() time.Time
	retryDelay time.Duration
}

func New(st store.AlertStore, normalizer *intake.Normalizer, bus Publisher, logger *logging.Logger, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	queueSize := cfg.Intake.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Service{
		store:      st,
		normalizer: normalizer,
		bus:        bus,
		logger:     logger,
		config:     cfg,
		jobs:       make(chan job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
		retryDelay: storeRetryDelay,
	}
}

// Logger exposes the Service's logger to the Kafka consumer or caller.
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the intake worker and, when retention is enabled, the
// cleanup loop.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	s.wg.Add(1)
	go s.worker()

	if s.config.Retention.MaxAge > 0 && s.config.Retention.Interval > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
}

// Stop cancels the worker and the retention loop. Payloads still queued are
// dropped; Submit callers see ErrServiceStopped.
func (s *Service) Stop() {
	s.cancel()
}

// Enqueue queues payload for intake, blocking while the queue is full.
func (s *Service) Enqueue(ctx context.Context, payload map[string]string) error {
	return s.push(ctx, job{payload: payload})
}

// Submit queues payload and waits until the worker has stored it. It returns
// the *intake.NormalizationError for a rejected payload, and an error without
// the alert stored when the service stops first.
func (s *Service) Submit(ctx context.Context, payload map[string]string) error {
	j := job{payload: payload, done: make(chan error, 1)}
	if err := s.push(ctx, j); err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrServiceStopped
	}
}

func (s *Service) push(ctx context.Context, j job) error {
	select {
	case <-s.ctx.Done():
		return ErrServiceStopped
	default:
	}

	select {
	case s.jobs <- j:
		s.logger.Debugf("Queued payload for channel %q", j.payload[intake.FieldChannel])
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrServiceStopped
	}
}

// Ingest normalizes and stores one payload, then publishes alerts.stored.
// Storage errors are retried until the alert is stored or ctx is done.
func (s *Service) Ingest(ctx context.Context, payload map[string]string) (models.Alert, error) {
	alert, err := s.normalizer.Normalize(payload)
	if err != nil {
		return models.Alert{}, err
	}
	if err := s.storeAlert(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to store alert %s: %w", alert.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"channel":  alert.ChannelID,
		"severity": alert.Severity,
	}).Info("Alert stored")

	if err := s.bus.Publish(events.TopicAlertsStored, events.AlertStored{
		AlertID:   alert.ID,
		ChannelID: alert.ChannelID,
		Severity:  alert.Severity,
	}); err != nil {
		s.logger.Errorf("Failed to publish stored alert %s: %v", alert.ID, err)
	}
	return alert, nil
}

// PurgeExpired deletes alerts older than the configured retention age.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.Retention.MaxAge).UnixMilli()
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired alerts: %w", err)
	}
	if deleted > 0 {
		s.logger.Infof("Purged %d alerts older than %s", deleted, s.config.Retention.MaxAge)
		if err := s.bus.Publish(events.TopicAlertsAcknowledged, events.AlertsAcknowledged{}); err != nil {
			s.logger.Errorf("Failed to publish purge: %v", err)
		}
	}
	return deleted, nil
}

func (s *Service) storeAlert(ctx context.Context, alert models.Alert) error {
	for {
		var permanent error
		err := utils.Retry(ctx, s.logger, storeAttempts, s.retryDelay, func() error {
			err := s.store.UpsertAlert(ctx, alert)
			if err != nil && !store.IsStorageError(err) {
				permanent = err
				return nil
			}
			return err
		})
		if permanent != nil {
			return permanent
		}
		if err == nil || ctx.Err() != nil {
			return err
		}
		s.logger.Errorf("Alert %s not stored after %d attempts, holding it: %v", alert.ID, storeAttempts, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(s.retryDelay):
		}
	}
}

// worker processes payloads until context is cancelled.
func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Intake worker stopped")
			return
		case j := <-s.jobs:
			s.handle(j)
		}
	}
}

func (s *Service) handle(j job) {
	_, err := s.Ingest(s.ctx, j.payload)
	var nerr *intake.NormalizationError
	switch {
	case err == nil:
	case errors.As(err, &nerr):
		s.logger.Warnf("Dropping push payload: %v", err)
	case s.ctx.Err() != nil:
		s.logger.Errorf("Intake stopped before payload for channel %q was stored: %v", j.payload[intake.FieldChannel], err)
		err = ErrServiceStopped
	default:
		s.logger.Errorf("Intake failed: %v", err)
	}
	if j.done != nil {
		j.done <- err
	}
}

func (s *Service) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Retention.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(s.ctx); err != nil {
				s.logger.Error(err)
			}
		}
	}
}
