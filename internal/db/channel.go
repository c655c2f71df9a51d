package db

import (
	"context"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/store"
)

func (d *DB) UpsertChannel(ctx context.Context, channel models.Channel) error {
	createdAt := channel.CreatedAt
	if createdAt.IsZero() {
		createdAt = d.now()
	}
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO channels (id, name, description, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		name        = EXCLUDED.name,
		description = EXCLUDED.description`,
		channel.ID, channel.Name, channel.Description, createdAt)
	return store.Wrap("upsert channel", err)
}

func (d *DB) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := d.Pool.Query(ctx, `SELECT id, name, description, created_at FROM channels ORDER BY name ASC`)
	if err != nil {
		return nil, store.Wrap("list channels", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, store.Wrap("scan channel", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list channels", err)
	}
	return channels, nil
}

// DeleteChannel removes the channel. Its alerts go with it through the
// ON DELETE CASCADE foreign key.
func (d *DB) DeleteChannel(ctx context.Context, id string) error {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return store.Wrap("delete channel", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrChannelNotFound
	}
	return nil
}
