package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

// DBTX is the subset of pgxpool.Pool the Postgres repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialStore holds one credential record per authorized subject.
type CredentialStore interface {
	Upsert(ctx context.Context, record domain.CredentialRecord) error
	Get(ctx context.Context, subjectID string) (domain.CredentialRecord, error)
	// Sample returns up to n records chosen uniformly at random without replacement.
	Sample(ctx context.Context, n int) ([]domain.CredentialRecord, error)
	Delete(ctx context.Context, subjectID string) error
	Count(ctx context.Context) (int, error)
}

// RedemptionCodeRepository persists single-use redemption codes.
type RedemptionCodeRepository interface {
	Create(ctx context.Context, code domain.RedemptionCode) error
	Get(ctx context.Context, code string) (domain.RedemptionCode, error)
	// Claim flips used from false to true and reports whether this call did it.
	Claim(ctx context.Context, code string) (bool, error)
	// Release undoes a claim whose batch could not be queued.
	Release(ctx context.Context, code string) error
	Count(ctx context.Context) (int, error)
}

// SettingsRepository stores per-deployment settings.
type SettingsRepository interface {
	// Get returns nil when no settings have been saved yet.
	Get(ctx context.Context) (*domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) error
}

// StateTokenStore persists short-lived authorization state tokens.
type StateTokenStore interface {
	Save(ctx context.Context, token onboard.StateToken, ttl time.Duration) error
	// Take atomically loads and deletes the token. A missing token yields nil, nil.
	Take(ctx context.Context, tokenID string) (*onboard.StateToken, error)
}

// BatchStatusStore keeps the latest status of each batch for follow-up reads.
type BatchStatusStore interface {
	Put(ctx context.Context, status onboard.BatchStatus) error
	Get(ctx context.Context, batchID string) (*onboard.BatchStatus, error)
}

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
