package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

var (
	_ Store    = (*Memory)(nil)
	_ Unmarker = (*Memory)(nil)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestAlert(id, channel string, ts int64) models.Alert {
	return models.Alert{
		ID:          id,
		ChannelID:   channel,
		ChannelName: channel,
		Title:       "CPU Alert",
		Severity:    models.SeverityCritical,
		Timestamp:   ts,
	}
}

func TestMemory_MarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.UnixMilli(1700000000000)}
	m := NewMemory(clock.Now)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 1)))
	require.NoError(t, m.MarkRead(ctx, "a1"))
	first, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, first.AcknowledgedAt)
	assert.True(t, first.IsRead)
	assert.Equal(t, int64(1700000000000), *first.AcknowledgedAt)

	clock.Advance(time.Minute)
	require.NoError(t, m.MarkRead(ctx, "a1"))
	second, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, *first.AcknowledgedAt, *second.AcknowledgedAt)
}

func TestMemory_MarkReadUnknownAlert(t *testing.T) {
	m := NewMemory(nil)
	err := m.MarkRead(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrAlertNotFound))
	assert.False(t, IsStorageError(err))
}

func TestMemory_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("dup", "db-01", 100)))
	redelivered := newTestAlert("dup", "db-01", 200)
	redelivered.Title = "CPU Alert (redelivered)"
	require.NoError(t, m.UpsertAlert(ctx, redelivered))

	count, err := m.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	all, err := m.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(200), all[0].Timestamp)
	assert.Equal(t, "CPU Alert (redelivered)", all[0].Title)
}

func TestMemory_RedeliveryKeepsAcknowledgment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 100)))
	require.NoError(t, m.MarkRead(ctx, "a1"))
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 100)))

	a, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.IsRead)
	assert.NotNil(t, a.AcknowledgedAt)
}

func TestMemory_UnreadConservation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	rng := rand.New(rand.NewSource(42))

	inserted := map[string]bool{}
	read := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("a%d", rng.Intn(120))
		if rng.Intn(3) == 0 && len(inserted) > 0 {
			if !inserted[id] {
				continue
			}
			require.NoError(t, m.MarkRead(ctx, id))
			read[id] = true
			continue
		}
		require.NoError(t, m.UpsertAlert(ctx, newTestAlert(id, fmt.Sprintf("ch%d", rng.Intn(4)), int64(i))))
		inserted[id] = true
	}

	count, err := m.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(inserted)-len(read), count)

	perChannel, err := m.GetUnreadCountsByChannel(ctx)
	require.NoError(t, err)
	sum := 0
	for ch, n := range perChannel {
		single, err := m.GetUnreadCountForChannel(ctx, ch)
		require.NoError(t, err)
		assert.Equal(t, single, n)
		sum += n
	}
	assert.Equal(t, count, sum)
}

func TestMemory_MarkAllReadForChannel(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.UnixMilli(5000)}
	m := NewMemory(clock.Now)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 1)))
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a2", "db-01", 2)))
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("b1", "web", 3)))
	require.NoError(t, m.MarkRead(ctx, "a1"))

	clock.Advance(time.Second)
	changed, err := m.MarkAllReadForChannel(ctx, "db-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	a1, _ := m.GetAlert(ctx, "a1")
	a2, _ := m.GetAlert(ctx, "a2")
	assert.Equal(t, int64(5000), *a1.AcknowledgedAt)
	assert.Equal(t, int64(6000), *a2.AcknowledgedAt)

	n, err := m.GetUnreadCountForChannel(ctx, "db-01")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = m.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_MarkUnreadClearsAcknowledgment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 1)))
	require.NoError(t, m.MarkRead(ctx, "a1"))
	require.NoError(t, m.MarkUnread(ctx, "a1"))

	a, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, a.IsRead)
	assert.Nil(t, a.AcknowledgedAt)
}

func TestMemory_DeleteChannelCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("a1", "db-01", 1)))
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("b1", "web", 2)))
	require.NoError(t, m.DeleteChannel(ctx, "db-01"))

	_, err := m.GetAlert(ctx, "a1")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	channels, err := m.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "web", channels[0].ID)

	assert.ErrorIs(t, m.DeleteChannel(ctx, "db-01"), ErrChannelNotFound)
}

func TestMemory_ChannelCreatedOnFirstSight(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	a := newTestAlert("a1", "db-01", 1)
	a.ChannelName = "Production Servers"
	require.NoError(t, m.UpsertAlert(ctx, a))

	b := newTestAlert("a2", "db-01", 2)
	b.ChannelName = "Renamed"
	require.NoError(t, m.UpsertAlert(ctx, b))

	channels, err := m.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "Production Servers", channels[0].Name)
}

func TestMemory_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("old", "db-01", 100)))
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("new", "db-01", 300)))

	deleted, err := m.DeleteOlderThan(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := m.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemory_ListAlertsFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.UpsertAlert(ctx, newTestAlert(fmt.Sprintf("a%d", i), "db-01", int64(i))))
	}
	require.NoError(t, m.UpsertAlert(ctx, newTestAlert("b1", "web", 10)))
	require.NoError(t, m.MarkRead(ctx, "a5"))

	list, err := m.ListAlerts(ctx, models.AlertFilter{ChannelID: "db-01", UnreadOnly: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a3", list[0].ID)
	assert.Equal(t, "a2", list[1].ID)

	list, err = m.ListAlerts(ctx, models.AlertFilter{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_UserSettings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	s, err := m.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)
	assert.ErrorIs(t, m.UpdateSettings(ctx, s), ErrNoCurrentUser)

	require.NoError(t, m.SaveCurrentUser(ctx, models.User{ID: "u1", Settings: models.DefaultSettings()}))
	require.NoError(t, m.UpdateSettings(ctx, models.Settings{BeepIntervalSeconds: 30}))

	s, err = m.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, s.BeepIntervalSeconds)

	require.NoError(t, m.DeleteCurrentUser(ctx))
	_, err = m.GetCurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNoCurrentUser)
}

func TestMemory_ConcurrentInsertAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, m.UpsertAlert(ctx, newTestAlert(id, "db-01", int64(i))))
				n, err := m.GetUnreadCount(ctx)
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, n, i+1)
			}
		}(w)
	}
	wg.Wait()

	n, err := m.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("count unread: %w", Wrap("count unread alerts", cause))

	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to count unread alerts: connection refused")
	assert.Nil(t, Wrap("noop", nil))
	assert.False(t, IsStorageError(ErrAlertNotFound))
}
