package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRedemptionClaimReportsRowsAffected(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRedemptionRepo(mock)
	claimSQL := regexp.QuoteMeta(`UPDATE redemption_codes SET used = true WHERE code = $1 AND used = false`)

	mock.ExpectExec(claimSQL).WithArgs("abc123").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(claimSQL).WithArgs("abc123").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	first, err := repo.Claim(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, first)

	second, err := repo.Claim(context.Background(), "abc123")
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionRelease(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRedemptionRepo(mock)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE redemption_codes SET used = false WHERE code = $1 AND used = true`)).
		WithArgs("abc123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Release(context.Background(), "abc123"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionGetMissingCode(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRedemptionRepo(mock)

	mock.ExpectQuery(`SELECT code, requested_quantity, used, creator_id, created_at FROM redemption_codes`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, onboard.ErrCodeNotFound)
	require.ErrorIs(t, err, onboard.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRedemptionRepo(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO redemption_codes`).
		WithArgs("abc123", 5, "admin-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), domain.RedemptionCode{Code: "abc123", RequestedQuantity: 5, CreatorID: "admin-1", CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialSample(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCredentialRepo(mock)
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"subject_id", "display_name", "access_token", "refresh_token", "granted_roles", "issued_at"}).
		AddRow("U1", "alice", "at-1", "rt-1", []string{"R1"}, issued).
		AddRow("U2", "bob", "at-2", "rt-2", []string{}, issued)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY random() LIMIT $1`)).WithArgs(2).WillReturnRows(rows)

	records, err := repo.Sample(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "U1", records[0].SubjectID)
	require.Equal(t, []string{"R1"}, records[0].GrantedRoles)
	require.Equal(t, "at-2", records[1].AccessToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialSampleZero(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCredentialRepo(mock)

	records, err := repo.Sample(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialDeleteAndCount(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCredentialRepo(mock)

	mock.ExpectExec(`DELETE FROM subject_credentials`).WithArgs("U1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM subject_credentials`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(9))

	require.NoError(t, repo.Delete(context.Background(), "U1"))
	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialUpsertNormalizesRoles(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCredentialRepo(mock)
	issued := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO subject_credentials`).
		WithArgs("U1", "alice", "at", "rt", []string{}, issued).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Upsert(context.Background(), domain.CredentialRecord{
		SubjectID:    "U1",
		DisplayName:  "alice",
		AccessToken:  "at",
		RefreshToken: "rt",
		IssuedAt:     issued,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRoundTrip(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresSettingsRepo(mock)

	mock.ExpectQuery(`SELECT key, value FROM onboard_settings`).WillReturnRows(
		pgxmock.NewRows([]string{"key", "value"}).
			AddRow("main_group_id", "G1").
			AddRow("log_webhook_url", "https://hooks.example/1"),
	)
	for _, kv := range [][2]string{{"main_group_id", "G2"}, {"verified_role_id", "R9"}, {"log_webhook_url", ""}} {
		mock.ExpectExec(`INSERT INTO onboard_settings`).WithArgs(kv[0], kv[1]).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.Equal(t, "G1", settings.MainGroupID)
	require.Equal(t, "https://hooks.example/1", settings.LogWebhookURL)
	require.Empty(t, settings.VerifiedRoleID)

	require.NoError(t, repo.Save(context.Background(), domain.Settings{MainGroupID: "G2", VerifiedRoleID: "R9"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetNothingSaved(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresSettingsRepo(mock)

	mock.ExpectQuery(`SELECT key, value FROM onboard_settings`).WillReturnRows(pgxmock.NewRows([]string{"key", "value"}))

	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, settings)
	require.NoError(t, mock.ExpectationsWereMet())
}
