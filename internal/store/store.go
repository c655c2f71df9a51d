// Package store defines the persistence contract shared by the intake path,
// the acknowledgment path and the reminder engine.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNoCurrentUser   = errors.New("no user is signed in")
)

// StorageError reports that the backing store could not serve a request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a StorageError for op, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err (or anything it wraps) is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// AlertStore persists channels and alerts with their read state.
type AlertStore interface {
	// UpsertAlert ensures the alert's channel exists and inserts or replaces
	// the alert by id. Content fields and timestamp are replaced, but the
	// existing row's IsRead and AcknowledgedAt are kept: a redelivered alert
	// never reopens an acknowledged one. Callers that need it unread again
	// use Unmarker.
	UpsertAlert(ctx context.Context, alert models.Alert) error
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)

	GetUnreadCount(ctx context.Context) (int, error)
	GetUnreadCountForChannel(ctx context.Context, channelID string) (int, error)
	GetUnreadCountsByChannel(ctx context.Context) (map[string]int, error)

	// MarkRead sets is_read and acknowledged_at. Already-read alerts are left
	// untouched.
	MarkRead(ctx context.Context, id string) error
	MarkAllReadForChannel(ctx context.Context, channelID string) (int64, error)
	DeleteOlderThan(ctx context.Context, timestampMillis int64) (int64, error)

	UpsertChannel(ctx context.Context, channel models.Channel) error
	ListChannels(ctx context.Context) ([]models.Channel, error)
	// DeleteChannel removes the channel and all of its alerts.
	DeleteChannel(ctx context.Context, id string) error
}

// Unmarker is implemented by stores that can return an alert to unread.
type Unmarker interface {
	MarkUnread(ctx context.Context, id string) error
}

// UserStore persists the single signed-in user and their settings.
type UserStore interface {
	GetCurrentUser(ctx context.Context) (models.User, error)
	SaveCurrentUser(ctx context.Context, user models.User) error
	UpdateSettings(ctx context.Context, settings models.Settings) error
	DeleteCurrentUser(ctx context.Context) error
	// GetSettings returns the signed-in user's settings, or the defaults when
	// nobody is signed in.
	GetSettings(ctx context.Context) (models.Settings, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	AlertStore
	UserStore
	Close()
}
