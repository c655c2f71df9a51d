package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/intake"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
)

const fetchRetryDelay = time.Second

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Intake stores push payloads. Submit returns once the alert is stored, or
// with an *intake.NormalizationError for a payload that can never be stored.
type Intake interface {
	Submit(ctx context.Context, payload map[string]string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads push payloads from a Kafka topic and hands them to intake.
// An offset is committed only after its alert is stored or rejected as
// malformed.
type Consumer struct {
	reader messageReader
	queue  Intake
	logger *logging.Logger
	topic  string
}

func NewConsumer(cfg Config, queue Intake, logger *logging.Logger) (*Consumer, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("kafka broker and topic are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, queue: queue, logger: logger, topic: cfg.Topic}, nil
}

func (s *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Infof("Kafka consumer started on topic %s", s.topic)
		s.run(ctx)
		s.logger.Info("Kafka consumer stopped")
	}()
}

func (s *Consumer) run(ctx context.Context) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("Fetch message failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		payload, err := intake.ParsePayload(msg.Value)
		if err != nil {
			s.logger.Warnf("Dropping malformed message at offset %d: %v", msg.Offset, err)
		} else if err := s.queue.Submit(ctx, payload); err != nil {
			var nerr *intake.NormalizationError
			if !errors.As(err, &nerr) {
				// Not committed, so the message is redelivered after restart.
				s.logger.Errorf("Failed to store message at offset %d: %v", msg.Offset, err)
				return
			}
			s.logger.Warnf("Dropping invalid message at offset %d: %v", msg.Offset, err)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

func (s *Consumer) Close() {
	if err := s.reader.Close(); err != nil {
		s.logger.Errorf("Failed to close Kafka reader: %v", err)
	}
}
