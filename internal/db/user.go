package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
)

// The app_user table holds at most one row, keyed by the constant singleton
// column.

func (d *DB) GetCurrentUser(ctx context.Context) (models.User, error) {
	var u models.User
	err := d.Pool.QueryRow(ctx, `
	SELECT id, email, display_name, signed_in_at, beep_interval_seconds, vibration_enabled
	FROM app_user`).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.SignedInAt,
		&u.Settings.BeepIntervalSeconds,
		&u.Settings.VibrationEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, store.ErrNoCurrentUser
	}
	if err != nil {
		return models.User{}, store.Wrap("get current user", err)
	}
	return u, nil
}

func (d *DB) SaveCurrentUser(ctx context.Context, user models.User) error {
	signedInAt := user.SignedInAt
	if signedInAt.IsZero() {
		signedInAt = d.now()
	}
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO app_user (singleton, id, email, display_name, signed_in_at, beep_interval_seconds, vibration_enabled)
	VALUES (TRUE, $1, $2, $3, $4, $5, $6)
	ON CONFLICT (singleton) DO UPDATE SET
		id                    = EXCLUDED.id,
		email                 = EXCLUDED.email,
		display_name          = EXCLUDED.display_name,
		signed_in_at          = EXCLUDED.signed_in_at,
		beep_interval_seconds = EXCLUDED.beep_interval_seconds,
		vibration_enabled     = EXCLUDED.vibration_enabled`,
		user.ID,
		user.Email,
		user.DisplayName,
		signedInAt,
		user.Settings.BeepIntervalSeconds,
		user.Settings.VibrationEnabled,
	)
	return store.Wrap("save current user", err)
}

func (d *DB) UpdateSettings(ctx context.Context, settings models.Settings) error {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE app_user SET beep_interval_seconds = $1, vibration_enabled = $2`,
		settings.BeepIntervalSeconds, settings.VibrationEnabled)
	if err != nil {
		return store.Wrap("update settings", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNoCurrentUser
	}
	return nil
}

func (d *DB) DeleteCurrentUser(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM app_user`)
	return store.Wrap("delete current user", err)
}

func (d *DB) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := d.Pool.QueryRow(ctx, `SELECT beep_interval_seconds, vibration_enabled FROM app_user`).Scan(
		&s.BeepIntervalSeconds,
		&s.VibrationEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, store.Wrap("get settings", err)
	}
	return s, nil
}
