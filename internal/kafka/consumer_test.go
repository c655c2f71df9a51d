package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/intake"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeIntake struct {
	mu       sync.Mutex
	payloads []map[string]string
	err      error
}

func (f *fakeIntake) Submit(_ context.Context, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if payload["channel"] == "" {
		return &intake.NormalizationError{Field: intake.FieldChannel, Reason: "required"}
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestConsumer_StoresThenCommits(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte(`{"channel":"db-01","title":"CPU Alert"}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(`{"title":"no channel"}`)},
		{Offset: 4, Value: []byte(`{"channel":"web"}`)},
	}}
	in := &fakeIntake{}
	c := &Consumer{reader: reader, queue: in, logger: logging.NewWithWriter(io.Discard, "debug"), topic: "push_alerts"}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.Committed())
	in.mu.Lock()
	defer in.mu.Unlock()
	require.Len(t, in.payloads, 2)
	assert.Equal(t, "db-01", in.payloads[0]["channel"])
	assert.Equal(t, "web", in.payloads[1]["channel"])
}

func TestConsumer_DoesNotCommitUnstored(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 7, Value: []byte(`{"channel":"db-01"}`)},
	}}
	in := &fakeIntake{err: errors.New("failed to store alert a1: storage unavailable")}
	c := &Consumer{reader: reader, queue: in, logger: logging.NewWithWriter(io.Discard, "debug"), topic: "push_alerts"}

	var wg sync.WaitGroup
	c.Start(context.Background(), &wg)
	wg.Wait()

	assert.Empty(t, reader.Committed())
}

func TestNewConsumer_RequiresBrokerAndTopic(t *testing.T) {
	_, err := NewConsumer(Config{Topic: "push_alerts"}, &fakeIntake{}, logging.NewWithWriter(io.Discard, "info"))
	assert.Error(t, err)
}
