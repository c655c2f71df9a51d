package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
)

const alertColumns = `id, channel_id, channel_name, title, body, severity, timestamp_ms, is_read, acknowledged_at, metadata`

// UpsertAlert creates the alert's channel on first sight and inserts or
// replaces the alert by id in one transaction. A redelivered alert keeps its
// read state.
func (d *DB) UpsertAlert(ctx context.Context, alert models.Alert) error {
	channelName := alert.ChannelName
	if channelName == "" {
		channelName = alert.ChannelID
	}

	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO channels (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
			alert.ChannelID, channelName, d.now())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			channel_id   = EXCLUDED.channel_id,
			channel_name = EXCLUDED.channel_name,
			title        = EXCLUDED.title,
			body         = EXCLUDED.body,
			severity     = EXCLUDED.severity,
			timestamp_ms = EXCLUDED.timestamp_ms,
			metadata     = EXCLUDED.metadata`,
			alert.ID,
			alert.ChannelID,
			channelName,
			alert.Title,
			alert.Body,
			string(alert.Severity),
			alert.Timestamp,
			alert.IsRead,
			alert.AcknowledgedAt,
			alert.Metadata,
		)
		return err
	})
	return store.Wrap("upsert alert", err)
}

func (d *DB) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Alert{}, store.ErrAlertNotFound
	}
	if err != nil {
		return models.Alert{}, store.Wrap("get alert", err)
	}
	return a, nil
}

// ListAlerts returns alerts newest first, narrowed by filter.
func (d *DB) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE TRUE`
	args := []interface{}{}

	if filter.ChannelID != "" {
		args = append(args, filter.ChannelID)
		query += fmt.Sprintf(" AND channel_id = $%d", len(args))
	}
	if filter.UnreadOnly {
		query += " AND NOT is_read"
	}
	query += " ORDER BY timestamp_ms DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("list alerts", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, store.Wrap("scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list alerts", err)
	}
	return alerts, nil
}

func (d *DB) GetUnreadCount(ctx context.Context) (int, error) {
	var count int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE NOT is_read`).Scan(&count); err != nil {
		return 0, store.Wrap("count unread alerts", err)
	}
	return count, nil
}

func (d *DB) GetUnreadCountForChannel(ctx context.Context, channelID string) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE NOT is_read AND channel_id = $1`, channelID).Scan(&count)
	if err != nil {
		return 0, store.Wrap("count unread alerts for channel", err)
	}
	return count, nil
}

func (d *DB) GetUnreadCountsByChannel(ctx context.Context) (map[string]int, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT channel_id, COUNT(*)
	FROM alerts
	WHERE NOT is_read
	GROUP BY channel_id`)
	if err != nil {
		return nil, store.Wrap("count unread alerts by channel", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var channelID string
		var count int
		if err := rows.Scan(&channelID, &count); err != nil {
			return nil, store.Wrap("scan unread count", err)
		}
		counts[channelID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("count unread alerts by channel", err)
	}
	return counts, nil
}

func (d *DB) MarkRead(ctx context.Context, id string) error {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE alerts SET is_read = TRUE, acknowledged_at = $2
	WHERE id = $1 AND NOT is_read`,
		id, d.now().UnixMilli())
	if err != nil {
		return store.Wrap("mark alert read", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return d.alertExists(ctx, id)
}

func (d *DB) MarkAllReadForChannel(ctx context.Context, channelID string) (int64, error) {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE alerts SET is_read = TRUE, acknowledged_at = $2
	WHERE channel_id = $1 AND NOT is_read`,
		channelID, d.now().UnixMilli())
	if err != nil {
		return 0, store.Wrap("mark channel read", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) MarkUnread(ctx context.Context, id string) error {
	tag, err := d.Pool.Exec(ctx, `UPDATE alerts SET is_read = FALSE, acknowledged_at = NULL WHERE id = $1`, id)
	if err != nil {
		return store.Wrap("mark alert unread", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlertNotFound
	}
	return nil
}

func (d *DB) DeleteOlderThan(ctx context.Context, timestampMillis int64) (int64, error) {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM alerts WHERE timestamp_ms < $1`, timestampMillis)
	if err != nil {
		return 0, store.Wrap("delete old alerts", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) alertExists(ctx context.Context, id string) error {
	var exists bool
	if err := d.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return store.Wrap("look up alert", err)
	}
	if !exists {
		return store.ErrAlertNotFound
	}
	return nil
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var severity string
	err := row.Scan(
		&a.ID,
		&a.ChannelID,
		&a.ChannelName,
		&a.Title,
		&a.Body,
		&severity,
		&a.Timestamp,
		&a.IsRead,
		&a.AcknowledgedAt,
		&a.Metadata,
	)
	if err != nil {
		return models.Alert{}, err
	}
	a.Severity = models.ParseSeverity(severity)
	return a, nil
}
