package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApplySchemaRunsEveryStatement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, table := range []string{"subject_credentials", "redemption_codes", "onboard_settings"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	}

	require.NoError(t, ApplySchema(context.Background(), mock, zap.NewNop()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchemaStopsOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subject_credentials").WillReturnError(errors.New("permission denied"))

	err = ApplySchema(context.Background(), mock, nil)
	require.ErrorContains(t, err, "statement 1")
	require.NoError(t, mock.ExpectationsWereMet())
}
