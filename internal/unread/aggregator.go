// Package unread computes the unread aggregate that drives reminding.
package unread

import (
	"context"
	"fmt"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

// Counter is the slice of the alert store the aggregator reads.
type Counter interface {
	GetUnreadCountsByChannel(ctx context.Context) (map[string]int, error)
}

// Aggregator always reads through to the store. Totals are never cached, so
// an acknowledgment is visible to the very next call.
type Aggregator struct {
	counter Counter
}

func NewAggregator(counter Counter) *Aggregator {
	return &Aggregator{counter: counter}
}

// ComputeUnread returns the total and per-channel unread counts from a single
// store read, so Total always equals the sum of PerChannel.
func (a *Aggregator) ComputeUnread(ctx context.Context) (models.UnreadSnapshot, error) {
	counts, err := a.counter.GetUnreadCountsByChannel(ctx)
	if err != nil {
		return models.UnreadSnapshot{}, fmt.Errorf("failed to compute unread: %w", err)
	}

	snapshot := models.UnreadSnapshot{PerChannel: make(map[string]int, len(counts))}
	for channelID, n := range counts {
		if n <= 0 {
			continue
		}
		snapshot.PerChannel[channelID] = n
		snapshot.Total += n
	}
	return snapshot, nil
}
