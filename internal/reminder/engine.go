// Package reminder re-alerts the on-call user on a timer for as long as
// unread alerts exist.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

type State int

const (
	Stopped State = iota
	Armed
	Reminding
)

func (s State) String() string {
	switch s {
	case Armed:
		return "ARMED"
	case Reminding:
		return "REMINDING"
	default:
		return "STOPPED"
	}
}

const DefaultQueryTimeout = 5 * time.Second

type SettingsSource interface {
	GetSettings(ctx context.Context) (models.Settings, error)
}

type UnreadSource interface {
	ComputeUnread(ctx context.Context) (models.UnreadSnapshot, error)
}

// Notifier receives the engine's output. Calls are made while the engine
// holds its state lock, so implementations must not block.
type Notifier interface {
	// Remind plays the alarm and vibration for one reminder.
	Remind(reminder models.Reminder)
	// UpdateStatus refreshes the persistent "N unread alerts" display.
	UpdateStatus(snapshot models.UnreadSnapshot)
	// Release clears the status display once reminding stops.
	Release()
}

// Status is a point-in-time view of the engine for the UI.
type Status struct {
	State           string     `json:"state"`
	IntervalSeconds int        `json:"interval_seconds"`
	NextTickAt      *time.Time `json:"next_tick_at,omitempty"`
	LastReminderAt  *time.Time `json:"last_reminder_at,omitempty"`
	UnreadCount     int        `json:"unread_count"`
	RemindersSent   int        `json:"reminders_sent"`
}

// Options tune an Engine. Zero values select the real clock, time.AfterFunc
// and DefaultQueryTimeout.
type Options struct {
	Scheduler    Scheduler
	Now          func() time.Time
	QueryTimeout time.Duration
}

// Engine is the Stopped/Armed/Reminding state machine. Each tick re-reads
// settings and the unread total; reminding stops on the first cycle that
// sees zero unread.
type Engine struct {
	settings     SettingsSource
	unread       UnreadSource
	notifier     Notifier
	sched        Scheduler
	now          func() time.Time
	logger       *logging.Logger
	queryTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// cycleMu serializes start evaluations and ticks. Lock order is cycleMu
	// then mu.
	cycleMu sync.Mutex

	mu    sync.Mutex
	state State
	// gen changes on every arm and every stop. A timer callback or a cycle
	// whose captured gen no longer matches is stale and does nothing.
	gen          uint64
	timer        Timer
	armedAt      time.Time
	interval     time.Duration
	lastSettings models.Settings
	lastUnread   int
	lastReminder time.Time
	sent         int
	closed       bool
}

func NewEngine(settings SettingsSource, unread UnreadSource, notifier Notifier, logger *logging.Logger, opts Options) *Engine {
	if opts.Scheduler == nil {
		opts.Scheduler = NewScheduler()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		settings:     settings,
		unread:       unread,
		notifier:     notifier,
		sched:        opts.Scheduler,
		now:          opts.Now,
		logger:       logger,
		queryTimeout: opts.QueryTimeout,
		ctx:          ctx,
		cancel:       cancel,
		lastSettings: models.DefaultSettings(),
	}
}

// Start evaluates unread state immediately. With unread alerts it updates the
// status display and arms the first tick; with none it stays Stopped. A
// failed query arms anyway so a broken store never silences reminders.
// Start does nothing unless the engine is Stopped.
func (e *Engine) Start(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	if e.closed || e.state != Stopped {
		e.mu.Unlock()
		return
	}
	gen := e.gen
	e.mu.Unlock()

	settings := e.loadSettings(ctx)
	snapshot, err := e.computeUnread(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.closed {
		return
	}
	if err != nil {
		e.logger.Errorf("Reminder start: unread query failed, arming anyway: %v", err)
		e.armLocked(settings.Interval())
		return
	}
	e.lastUnread = snapshot.Total
	if snapshot.Total == 0 {
		e.logger.Debug("Reminder start: no unread alerts, staying stopped")
		return
	}

	e.notifier.UpdateStatus(snapshot)
	e.armLocked(settings.Interval())
	e.logger.WithFields(logrus.Fields{
		"unread":   snapshot.Total,
		"interval": settings.Interval().String(),
	}).Info("Reminder engine armed")
}

// Stop cancels any pending tick and releases the status display. A cycle
// already in flight finishes its queries but emits nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Stopped {
		e.logger.Info("Reminder engine stopped")
	}
	e.stopLocked()
}

// RefreshSettings applies a settings change to the pending tick: it is moved
// to armedAt plus the new interval, or fires at once if that is already past.
// Outside the Armed state the next cycle picks the settings up on its own.
func (e *Engine) RefreshSettings(ctx context.Context) {
	settings := e.loadSettings(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Armed {
		return
	}

	interval := settings.Interval()
	if interval == e.interval {
		return
	}
	delay := e.armedAt.Add(interval).Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.interval = interval
	e.timer = e.sched.AfterFunc(delay, func() { e.tick(gen) })
	e.logger.WithFields(logrus.Fields{
		"interval": interval.String(),
		"delay":    delay.String(),
	}).Info("Reminder interval changed, tick rescheduled")
}

// Close stops the engine for good.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.stopLocked()
	e.mu.Unlock()
	e.cancel()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:         e.state.String(),
		UnreadCount:   e.lastUnread,
		RemindersSent: e.sent,
	}
	if e.state != Stopped {
		st.IntervalSeconds = int(e.interval / time.Second)
	}
	if e.state == Armed {
		next := e.armedAt.Add(e.interval)
		st.NextTickAt = &next
	}
	if !e.lastReminder.IsZero() {
		last := e.lastReminder
		st.LastReminderAt = &last
	}
	return st
}

func (e *Engine) tick(gen uint64) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	if e.gen != gen || e.state != Armed {
		e.mu.Unlock()
		return
	}
	e.state = Reminding
	e.timer = nil
	e.mu.Unlock()

	settings := e.loadSettings(e.ctx)
	snapshot, err := e.computeUnread(e.ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	if err != nil {
		e.logger.Errorf("Reminder tick: unread query failed, retrying next interval: %v", err)
		e.armLocked(settings.Interval())
		return
	}

	e.lastUnread = snapshot.Total
	if snapshot.Total == 0 {
		e.logger.Info("All alerts acknowledged, reminder engine stopped")
		e.notifier.UpdateStatus(snapshot)
		e.stopLocked()
		return
	}

	reminder := e.buildReminder(snapshot, settings)
	e.notifier.Remind(reminder)
	e.notifier.UpdateStatus(snapshot)
	e.lastReminder = reminder.IssuedAt
	e.sent++
	e.armLocked(settings.Interval())
	e.logger.WithFields(logrus.Fields{
		"unread":   snapshot.Total,
		"interval": settings.Interval().String(),
	}).Info("Reminder emitted")
}

func (e *Engine) buildReminder(snapshot models.UnreadSnapshot, settings models.Settings) models.Reminder {
	perChannel := make(map[string]int, len(snapshot.PerChannel))
	for k, v := range snapshot.PerChannel {
		perChannel[k] = v
	}
	r := models.Reminder{
		UnreadCount: snapshot.Total,
		PerChannel:  perChannel,
		Sound:       models.SoundAlarm,
		Vibrate:     settings.VibrationEnabled,
		IssuedAt:    e.now(),
	}
	if settings.VibrationEnabled {
		r.VibrationPattern = append([]int64(nil), models.DefaultVibrationPattern...)
	}
	return r
}

// armLocked schedules the next tick. Callers hold e.mu.
func (e *Engine) armLocked(interval time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.armedAt = e.now()
	e.interval = interval
	e.state = Armed
	e.timer = e.sched.AfterFunc(interval, func() { e.tick(gen) })
}

// stopLocked cancels the pending tick and releases. Callers hold e.mu.
func (e *Engine) stopLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.state != Stopped {
		e.notifier.Release()
	}
	e.state = Stopped
}

// loadSettings returns fresh settings, or the last good ones when the read
// fails or yields an unusable interval.
func (e *Engine) loadSettings(ctx context.Context) models.Settings {
	qctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	settings, err := e.settings.GetSettings(qctx)
	if err == nil {
		err = settings.Validate()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.Warnf("Failed to read reminder settings, keeping last known: %v", err)
		return e.lastSettings
	}
	e.lastSettings = settings
	return settings
}

func (e *Engine) computeUnread(ctx context.Context) (models.UnreadSnapshot, error) {
	qctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()
	return e.unread.ComputeUnread(qctx)
}
