package notification

import (
	"context"
	"sync"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

// Sink delivers reminders outside the UI, e.g. to a chat.
type Sink interface {
	Name() string
	SendReminder(ctx context.Context, reminder models.Reminder) error
}

// Dispatcher turns reminder engine output into WebSocket events and sink
// deliveries. None of its methods block.
type Dispatcher struct {
	ws     *WebSocketManager
	sinks  []Sink
	logger *logging.Logger
	ctx    context.Context
	wg     sync.WaitGroup
}

func NewDispatcher(ctx context.Context, ws *WebSocketManager, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{ws: ws, sinks: sinks, logger: logger, ctx: ctx}
}

func (d *Dispatcher) Remind(reminder models.Reminder) {
	d.ws.Broadcast(Event{Type: EventReminder, Data: reminder, SentAt: reminder.IssuedAt})
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			if err := sink.SendReminder(d.ctx, reminder); err != nil {
				d.logger.Errorf("Reminder delivery via %s failed: %v", sink.Name(), err)
				return
			}
			d.logger.Debugf("Reminder delivered via %s", sink.Name())
		}(sink)
	}
}

func (d *Dispatcher) UpdateStatus(snapshot models.UnreadSnapshot) {
	d.ws.Broadcast(Event{Type: EventUnread, Data: snapshot})
}

func (d *Dispatcher) Release() {
	d.ws.Broadcast(Event{Type: EventSilence})
}

// Wait blocks until in-flight sink deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
