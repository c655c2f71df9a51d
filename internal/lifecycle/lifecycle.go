// Package lifecycle starts and stops the reminder engine at the moments a
// platform wrapper reports: process start, device boot, login and logout. It
// also reacts to bus events from the intake path and the API.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/events"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
)

// Engine is the part of the reminder engine the glue drives.
type Engine interface {
	Start(ctx context.Context)
	Stop()
	RefreshSettings(ctx context.Context)
}

type UnreadSource interface {
	ComputeUnread(ctx context.Context) (models.UnreadSnapshot, error)
}

// StatusSink shows the current unread aggregate to the user.
type StatusSink interface {
	UpdateStatus(snapshot models.UnreadSnapshot)
}

// Glue decides when the engine runs. mu serializes the signed-in check with
// the Start or Stop that follows it, so a logout cannot interleave with an
// alert arriving and leave the engine armed.
type Glue struct {
	mu     sync.Mutex
	users  store.UserStore
	unread UnreadSource
	engine Engine
	bus    *events.Bus
	status StatusSink
	logger *logging.Logger
	now    func() time.Time
}

func New(users store.UserStore, unread UnreadSource, engine Engine, bus *events.Bus, status StatusSink, logger *logging.Logger) *Glue {
	return &Glue{
		users:  users,
		unread: unread,
		engine: engine,
		bus:    bus,
		status: status,
		logger: logger,
		now:    time.Now,
	}
}

// OnProcessStart resumes reminding if a user was signed in before the
// process went away.
func (g *Glue) OnProcessStart(ctx context.Context) error {
	return g.resume(ctx, "process start")
}

// OnBoot resumes reminding after a device reboot if a user is signed in.
func (g *Glue) OnBoot(ctx context.Context) error {
	return g.resume(ctx, "boot")
}

func (g *Glue) resume(ctx context.Context, reason string) error {
	g.mu.Lock()
	signedIn, err := g.signedIn(ctx)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if !signedIn {
		g.mu.Unlock()
		g.logger.Infof("No signed-in user on %s, reminder engine idle", reason)
		return nil
	}
	g.logger.Infof("Resuming reminder engine on %s", reason)
	g.engine.Start(ctx)
	g.mu.Unlock()
	g.publishSnapshot(ctx)
	return nil
}

// Login stores user as the single signed-in user and starts the engine.
// Zero settings are replaced by the defaults.
func (g *Glue) Login(ctx context.Context, user models.User) (models.User, error) {
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return models.User{}, errors.New("user id is required")
	}
	if user.Settings == (models.Settings{}) {
		user.Settings = models.DefaultSettings()
	}
	if err := user.Settings.Validate(); err != nil {
		return models.User{}, err
	}
	user.SignedInAt = g.now()

	g.mu.Lock()
	if err := g.users.SaveCurrentUser(ctx, user); err != nil {
		g.mu.Unlock()
		return models.User{}, fmt.Errorf("failed to sign in: %w", err)
	}
	g.logger.Infof("User %s signed in", user.ID)
	g.engine.Start(ctx)
	g.mu.Unlock()
	g.publishSnapshot(ctx)
	return user, nil
}

// Logout stops reminding and forgets the signed-in user. Alerts are kept.
func (g *Glue) Logout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.engine.Stop()
	if err := g.users.DeleteCurrentUser(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	g.logger.Info("User signed out")
	return nil
}

// UpdateSettings applies update to the signed-in user's settings and
// announces the change.
func (g *Glue) UpdateSettings(ctx context.Context, update models.SettingsUpdate) (models.Settings, error) {
	user, err := g.users.GetCurrentUser(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	settings := update.Apply(user.Settings)
	if err := settings.Validate(); err != nil {
		return models.Settings{}, err
	}
	if err := g.users.UpdateSettings(ctx, settings); err != nil {
		return models.Settings{}, err
	}
	if err := g.SettingsChanged(settings); err != nil {
		g.logger.Errorf("Failed to announce settings change: %v", err)
	}
	return settings, nil
}

// SettingsChanged tells the running engine to pick up new settings.
func (g *Glue) SettingsChanged(settings models.Settings) error {
	return g.bus.Publish(events.TopicSettingsChanged, events.SettingsChanged{Settings: settings})
}

// Run wires bus events to the engine until ctx is done.
func (g *Glue) Run(ctx context.Context) error {
	subscriptions := map[string]events.Handler{
		events.TopicAlertsStored:       g.onAlertStored,
		events.TopicAlertsAcknowledged: g.onAlertsAcknowledged,
		events.TopicSettingsChanged:    g.onSettingsChanged,
	}
	for topic, handler := range subscriptions {
		if err := g.bus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func (g *Glue) onAlertStored(ctx context.Context, payload []byte) error {
	var ev events.AlertStored
	if err := events.Decode(payload, &ev); err != nil {
		return err
	}
	g.mu.Lock()
	signedIn, err := g.signedIn(ctx)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if signedIn {
		g.engine.Start(ctx)
	} else {
		g.logger.WithRequestID(ev.AlertID).Debug("Alert stored while signed out, engine not started")
	}
	g.mu.Unlock()
	g.publishSnapshot(ctx)
	return nil
}

func (g *Glue) onAlertsAcknowledged(ctx context.Context, _ []byte) error {
	g.publishSnapshot(ctx)
	return nil
}

func (g *Glue) onSettingsChanged(ctx context.Context, _ []byte) error {
	g.engine.RefreshSettings(ctx)
	return nil
}

func (g *Glue) publishSnapshot(ctx context.Context) {
	snapshot, err := g.unread.ComputeUnread(ctx)
	if err != nil {
		g.logger.Errorf("Failed to refresh unread status: %v", err)
		return
	}
	g.status.UpdateStatus(snapshot)
}

func (g *Glue) signedIn(ctx context.Context) (bool, error) {
	_, err := g.users.GetCurrentUser(ctx)
	if errors.Is(err, store.ErrNoCurrentUser) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load current user: %w", err)
	}
	return true, nil
}
