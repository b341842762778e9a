package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/repository"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS subject_credentials (
	subject_id    TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	granted_roles TEXT[] NOT NULL DEFAULT '{}',
	issued_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS redemption_codes (
	code               TEXT PRIMARY KEY,
	requested_quantity INTEGER NOT NULL CHECK (requested_quantity > 0),
	used               BOOLEAN NOT NULL DEFAULT false,
	creator_id         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS onboard_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
)`,
}

// EnsureSchema creates the onboarding tables on startup when they are missing.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ApplySchema(ctx, pool, logger)
		},
	})
}

// ApplySchema runs the idempotent DDL statements in order.
func ApplySchema(ctx context.Context, db repository.DBTX, logger *zap.Logger) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Info("database schema ensured", zap.Int("statements", len(schemaStatements)))
	}
	return nil
}
