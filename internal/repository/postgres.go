package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

// Compile-time interface assertions.
var (
	_ CredentialStore          = (*PostgresCredentialRepo)(nil)
	_ RedemptionCodeRepository = (*PostgresRedemptionRepo)(nil)
	_ SettingsRepository       = (*PostgresSettingsRepo)(nil)
)

// PostgresCredentialRepo implements CredentialStore.
type PostgresCredentialRepo struct {
	db DBTX
}

func NewPostgresCredentialRepo(db DBTX) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

const upsertCredentialSQL = `INSERT INTO subject_credentials (subject_id, display_name, access_token, refresh_token, granted_roles, issued_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (subject_id) DO UPDATE SET
	display_name = excluded.display_name,
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	granted_roles = excluded.granted_roles,
	issued_at = excluded.issued_at`

func (r *PostgresCredentialRepo) Upsert(ctx context.Context, record domain.CredentialRecord) error {
	roles := record.GrantedRoles
	if roles == nil {
		roles = []string{}
	}
	if _, err := r.db.Exec(ctx, upsertCredentialSQL,
		record.SubjectID,
		record.DisplayName,
		record.AccessToken,
		record.RefreshToken,
		roles,
		record.IssuedAt,
	); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

const selectCredentialColumns = `SELECT subject_id, display_name, access_token, refresh_token, granted_roles, issued_at FROM subject_credentials`

func (r *PostgresCredentialRepo) Get(ctx context.Context, subjectID string) (domain.CredentialRecord, error) {
	row := r.db.QueryRow(ctx, selectCredentialColumns+` WHERE subject_id = $1`, subjectID)
	record, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CredentialRecord{}, fmt.Errorf("get credential %s: %w", subjectID, onboard.ErrNotFound)
		}
		return domain.CredentialRecord{}, fmt.Errorf("get credential: %w", err)
	}
	return record, nil
}

func (r *PostgresCredentialRepo) Sample(ctx context.Context, n int) ([]domain.CredentialRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, selectCredentialColumns+` ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("sample credentials: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CredentialRecord, 0, n)
	for rows.Next() {
		record, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sample credentials: %w", err)
	}
	return records, nil
}

func (r *PostgresCredentialRepo) Delete(ctx context.Context, subjectID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM subject_credentials WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subject_credentials`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return count, nil
}

func scanCredential(row pgx.Row) (domain.CredentialRecord, error) {
	var record domain.CredentialRecord
	if err := row.Scan(
		&record.SubjectID,
		&record.DisplayName,
		&record.AccessToken,
		&record.RefreshToken,
		&record.GrantedRoles,
		&record.IssuedAt,
	); err != nil {
		return domain.CredentialRecord{}, err
	}
	return record, nil
}

// PostgresRedemptionRepo implements RedemptionCodeRepository.
type PostgresRedemptionRepo struct {
	db DBTX
}

func NewPostgresRedemptionRepo(db DBTX) *PostgresRedemptionRepo {
	return &PostgresRedemptionRepo{db: db}
}

const insertRedemptionSQL = `INSERT INTO redemption_codes (code, requested_quantity, used, creator_id, created_at)
VALUES ($1, $2, false, $3, $4)`

func (r *PostgresRedemptionRepo) Create(ctx context.Context, code domain.RedemptionCode) error {
	if _, err := r.db.Exec(ctx, insertRedemptionSQL, code.Code, code.RequestedQuantity, code.CreatorID, code.CreatedAt); err != nil {
		return fmt.Errorf("insert redemption code: %w", err)
	}
	return nil
}

func (r *PostgresRedemptionRepo) Get(ctx context.Context, code string) (domain.RedemptionCode, error) {
	var rc domain.RedemptionCode
	err := r.db.QueryRow(ctx,
		`SELECT code, requested_quantity, used, creator_id, created_at FROM redemption_codes WHERE code = $1`,
		code,
	).Scan(&rc.Code, &rc.RequestedQuantity, &rc.Used, &rc.CreatorID, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RedemptionCode{}, onboard.ErrCodeNotFound
		}
		return domain.RedemptionCode{}, fmt.Errorf("get redemption code: %w", err)
	}
	return rc, nil
}

func (r *PostgresRedemptionRepo) Claim(ctx context.Context, code string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE redemption_codes SET used = true WHERE code = $1 AND used = false`, code)
	if err != nil {
		return false, fmt.Errorf("claim redemption code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns a claimed code to the unused state.
func (r *PostgresRedemptionRepo) Release(ctx context.Context, code string) error {
	if _, err := r.db.Exec(ctx, `UPDATE redemption_codes SET used = false WHERE code = $1 AND used = true`, code); err != nil {
		return fmt.Errorf("release redemption code: %w", err)
	}
	return nil
}

func (r *PostgresRedemptionRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM redemption_codes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count redemption codes: %w", err)
	}
	return count, nil
}

// PostgresSettingsRepo implements SettingsRepository on a key-value table.
type PostgresSettingsRepo struct {
	db DBTX
}

func NewPostgresSettingsRepo(db DBTX) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

const (
	settingMainGroup    = "main_group_id"
	settingVerifiedRole = "verified_role_id"
	settingLogWebhook   = "log_webhook_url"
)

func (r *PostgresSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM onboard_settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	var (
		settings domain.Settings
		found    bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		found = true
		switch key {
		case settingMainGroup:
			settings.MainGroupID = value
		case settingVerifiedRole:
			settings.VerifiedRoleID = value
		case settingLogWebhook:
			settings.LogWebhookURL = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &settings, nil
}

const upsertSettingSQL = `INSERT INTO onboard_settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`

func (r *PostgresSettingsRepo) Save(ctx context.Context, settings domain.Settings) error {
	values := [][2]string{
		{settingMainGroup, settings.MainGroupID},
		{settingVerifiedRole, settings.VerifiedRoleID},
		{settingLogWebhook, settings.LogWebhookURL},
	}
	for _, kv := range values {
		if _, err := r.db.Exec(ctx, upsertSettingSQL, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save setting %s: %w", kv[0], err)
		}
	}
	return nil
}
