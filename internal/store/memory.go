package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

// Memory is a mutex-guarded in-process store. Contents are lost on restart,
// so it backs demo runs and tests only.
type Memory struct {
	mu       sync.RWMutex
	channels map[string]models.Channel
	alerts   map[string]models.Alert
	user     *models.User
	now      func() time.Time
}

// NewMemory returns an empty store. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		channels: make(map[string]models.Channel),
		alerts:   make(map[string]models.Alert),
		now:      now,
	}
}

func (m *Memory) UpsertAlert(_ context.Context, alert models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[alert.ChannelID]; !ok {
		name := alert.ChannelName
		if name == "" {
			name = alert.ChannelID
		}
		m.channels[alert.ChannelID] = models.Channel{ID: alert.ChannelID, Name: name, CreatedAt: m.now()}
	}

	if existing, ok := m.alerts[alert.ID]; ok {
		alert.IsRead = existing.IsRead
		alert.AcknowledgedAt = existing.AcknowledgedAt
	}
	m.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return models.Alert{}, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (m *Memory) ListAlerts(_ context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	m.mu.RLock()
	list := make([]models.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.ChannelID != "" && a.ChannelID != filter.ChannelID {
			continue
		}
		if filter.UnreadOnly && a.IsRead {
			continue
		}
		list = append(list, copyAlert(a))
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp > list[j].Timestamp
		}
		return list[i].ID < list[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return []models.Alert{}, nil
		}
		list = list[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(list) {
		list = list[:filter.Limit]
	}
	return list, nil
}

func (m *Memory) GetUnreadCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, a := range m.alerts {
		if !a.IsRead {
			total++
		}
	}
	return total, nil
}

func (m *Memory) GetUnreadCountForChannel(_ context.Context, channelID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, a := range m.alerts {
		if !a.IsRead && a.ChannelID == channelID {
			total++
		}
	}
	return total, nil
}

func (m *Memory) GetUnreadCountsByChannel(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range m.alerts {
		if !a.IsRead {
			counts[a.ChannelID]++
		}
	}
	return counts, nil
}

func (m *Memory) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.IsRead {
		return nil
	}
	m.alerts[id] = m.acknowledge(a)
	return nil
}

func (m *Memory) MarkAllReadForChannel(_ context.Context, channelID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for id, a := range m.alerts {
		if a.ChannelID != channelID || a.IsRead {
			continue
		}
		m.alerts[id] = m.acknowledge(a)
		changed++
	}
	return changed, nil
}

func (m *Memory) MarkUnread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.IsRead = false
	a.AcknowledgedAt = nil
	m.alerts[id] = a
	return nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, timestampMillis int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, a := range m.alerts {
		if a.Timestamp < timestampMillis {
			delete(m.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) UpsertChannel(_ context.Context, channel models.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.channels[channel.ID]; ok {
		channel.CreatedAt = existing.CreatedAt
	} else if channel.CreatedAt.IsZero() {
		channel.CreatedAt = m.now()
	}
	m.channels[channel.ID] = channel
	return nil
}

func (m *Memory) ListChannels(_ context.Context) ([]models.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]models.Channel, 0, len(m.channels))
	for _, c := range m.channels {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *Memory) DeleteChannel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[id]; !ok {
		return ErrChannelNotFound
	}
	delete(m.channels, id)
	for alertID, a := range m.alerts {
		if a.ChannelID == id {
			delete(m.alerts, alertID)
		}
	}
	return nil
}

func (m *Memory) GetCurrentUser(_ context.Context) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return models.User{}, ErrNoCurrentUser
	}
	return *m.user, nil
}

func (m *Memory) SaveCurrentUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = &user
	return nil
}

func (m *Memory) UpdateSettings(_ context.Context, settings models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		return ErrNoCurrentUser
	}
	m.user.Settings = settings
	return nil
}

func (m *Memory) DeleteCurrentUser(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = nil
	return nil
}

func (m *Memory) GetSettings(_ context.Context) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return models.DefaultSettings(), nil
	}
	return m.user.Settings, nil
}

func (m *Memory) Close() {}

func (m *Memory) acknowledge(a models.Alert) models.Alert {
	ackAt := m.now().UnixMilli()
	a.IsRead = true
	a.AcknowledgedAt = &ackAt
	return a
}

func copyAlert(a models.Alert) models.Alert {
	if a.AcknowledgedAt != nil {
		v := *a.AcknowledgedAt
		a.AcknowledgedAt = &v
	}
	if a.Metadata != nil {
		v := *a.Metadata
		a.Metadata = &v
	}
	return a
}
