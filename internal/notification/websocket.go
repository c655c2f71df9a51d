package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
)

const (
	EventUnread   = "unread"
	EventReminder = "reminder"
	EventSilence  = "silence"

	maxConnections = 10
	writeWait      = time.Second
	outboundBuffer = 64
)

// Event is the envelope sent to WebSocket clients.
type Event struct {
	Type   string      `json:"type"`
	Data   interface{} `json:"data,omitempty"`
	SentAt time.Time   `json:"sent_at"`
}

// WebSocketManager fans events out to the connected UI clients. Broadcast
// only queues; Run does the writing, so callers never wait on the network.
// Events leave in the order they were broadcast. Unread and silence events
// are state: a newer one replaces the pending one of its type and they are
// never dropped. At most outboundBuffer reminders wait in the queue.
type WebSocketManager struct {
	connections map[*websocket.Conn]bool
	mutex       sync.Mutex
	logger      *logging.Logger
	// lastUnread is replayed to clients as they connect.
	lastUnread []byte

	queueMu   sync.Mutex
	queue     []Event
	reminders int
	queued    chan struct{}
}

func NewWebSocketManager(logger *logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[*websocket.Conn]bool),
		logger:      logger,
		queued:      make(chan struct{}, 1),
	}
}

// AddConnection registers conn and sends it the latest unread status. It
// reports false when the connection limit is reached.
func (m *WebSocketManager) AddConnection(conn *websocket.Conn) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.connections) >= maxConnections {
		m.logger.Warnf("Max WebSocket connections reached (%d)", maxConnections)
		return false
	}
	if m.lastUnread != nil {
		if err := m.write(conn, m.lastUnread); err != nil {
			m.logger.Errorf("Failed to send initial status: %v", err)
			return false
		}
	}
	m.connections[conn] = true
	m.logger.Infof("Added WebSocket connection (total: %d)", len(m.connections))
	return true
}

func (m *WebSocketManager) RemoveConnection(conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[conn]; exists {
		delete(m.connections, conn)
		m.logger.Infof("Removed WebSocket connection (remaining: %d)", len(m.connections))
	}
}

// Broadcast queues ev for every client. A reminder is dropped when the queue
// is full; the next cycle sends a fresh one. A state event replaces any
// pending event of its type.
func (m *WebSocketManager) Broadcast(ev Event) {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now()
	}

	m.queueMu.Lock()
	if ev.Type == EventReminder {
		if m.reminders >= outboundBuffer {
			m.queueMu.Unlock()
			m.logger.Warnf("WebSocket queue full, dropping %s event", ev.Type)
			return
		}
		m.reminders++
	} else {
		kept := m.queue[:0]
		for _, q := range m.queue {
			if q.Type != ev.Type {
				kept = append(kept, q)
			}
		}
		m.queue = kept
	}
	m.queue = append(m.queue, ev)
	m.queueMu.Unlock()

	select {
	case m.queued <- struct{}{}:
	default:
	}
}

func (m *WebSocketManager) drain() []Event {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	pending := m.queue
	m.queue = nil
	m.reminders = 0
	return pending
}

// Run writes queued events until ctx is done, then closes all connections.
func (m *WebSocketManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-m.queued:
			for _, ev := range m.drain() {
				m.send(ev)
			}
		}
	}
}

func (m *WebSocketManager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.connections)
}

func (m *WebSocketManager) send(ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		m.logger.Errorf("Failed to encode %s event: %v", ev.Type, err)
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if ev.Type == EventUnread {
		m.lastUnread = message
	}
	for conn := range m.connections {
		if err := m.write(conn, message); err != nil {
			m.logger.Errorf("Failed to send WebSocket message: %v", err)
			_ = conn.Close()
			delete(m.connections, conn)
		}
	}
}

func (m *WebSocketManager) write(conn *websocket.Conn, message []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, message)
}

func (m *WebSocketManager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for conn := range m.connections {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		delete(m.connections, conn)
	}
}
