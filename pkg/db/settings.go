package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const settingsLogPrefix = "db:settings"

// Setting represents a row in the settings table.
type Setting struct {
	Key      string    `json:"key"`
	Value    string    `json:"value"`
	Modified time.Time `json:"modified"`
}

// SettingsRepository provides access to the stored-configuration
// key-value table. It satisfies revalidate.SettingsStore.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a SettingsRepository over the pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetSetting returns the value for key, or "" when the key is absent.
// Absence is not an error; the resolver treats empty as "no value".
func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s - get %q: %w", settingsLogPrefix, key, err)
	}
	return value, nil
}

// SetSetting upserts a value for key. An empty value deletes the key so
// resolution falls through to the next source.
func (r *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	if value == "" {
		_, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
		if err != nil {
			return fmt.Errorf("%s - delete %q: %w", settingsLogPrefix, key, err)
		}
		slog.Info(fmt.Sprintf("%s - Cleared setting %q", settingsLogPrefix, key))
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (key, value, modified)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, modified = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("%s - set %q: %w", settingsLogPrefix, key, err)
	}
	slog.Info(fmt.Sprintf("%s - Updated setting %q", settingsLogPrefix, key))
	return nil
}

// ListSettings returns all settings ordered by key.
func (r *SettingsRepository) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, value, modified FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%s - list: %w", settingsLogPrefix, err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.Modified); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", settingsLogPrefix, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - rows: %w", settingsLogPrefix, err)
	}
	return out, nil
}

// Ping verifies database connectivity for health checks.
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
