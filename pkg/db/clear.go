// Package db provides stored-configuration clearing.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearSettings truncates the settings table. Schema is preserved; only
// data is removed. Resolution falls back to overrides afterwards.
func ClearSettings(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing settings table", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE settings`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Settings cleared", clearLogPrefix))
	return nil
}
