package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository/memory"
)

type failingRepo struct{}

func (failingRepo) Get(context.Context) (*domain.Settings, error) { return nil, errors.New("down") }
func (failingRepo) Save(context.Context, domain.Settings) error   { return errors.New("down") }

func TestCurrentUsesDefaultsUntilSaved(t *testing.T) {
	defaults := domain.Settings{MainGroupID: "G1", VerifiedRoleID: "R1", LogWebhookURL: "https://hooks.example/x"}
	r := NewResolver(memory.NewSettings(), defaults, zap.NewNop())

	require.Equal(t, defaults, r.Current(context.Background()))
}

func TestSavedSettingsReplaceDefaults(t *testing.T) {
	repo := memory.NewSavedSettings(domain.Settings{MainGroupID: "G2"})
	r := NewResolver(repo, domain.Settings{MainGroupID: "G1", VerifiedRoleID: "R1"}, zap.NewNop())

	got := r.Current(context.Background())
	require.Equal(t, "G2", got.MainGroupID)
	require.Empty(t, got.VerifiedRoleID)
}

func TestUpdateClearsDefaultWebhook(t *testing.T) {
	r := NewResolver(memory.NewSettings(), domain.Settings{MainGroupID: "G1", LogWebhookURL: "https://hooks.example/x"}, zap.NewNop())

	got, err := r.Update(context.Background(), domain.Settings{MainGroupID: "G1", LogWebhookURL: ""})
	require.NoError(t, err)
	require.Empty(t, got.LogWebhookURL)
	require.Empty(t, r.Current(context.Background()).LogWebhookURL)
	require.Equal(t, "G1", r.Current(context.Background()).MainGroupID)
}

func TestCurrentFallsBackOnStoreError(t *testing.T) {
	r := NewResolver(failingRepo{}, domain.Settings{MainGroupID: "G1"}, zap.NewNop())
	require.Equal(t, "G1", r.Current(context.Background()).MainGroupID)
}

func TestUpdateValidatesWebhook(t *testing.T) {
	r := NewResolver(memory.NewSettings(), domain.Settings{}, zap.NewNop())

	_, err := r.Update(context.Background(), domain.Settings{LogWebhookURL: "ftp://nope"})
	require.ErrorIs(t, err, onboard.ErrValidation)

	got, err := r.Update(context.Background(), domain.Settings{MainGroupID: " G9 ", LogWebhookURL: "https://hooks.example/x"})
	require.NoError(t, err)
	require.Equal(t, "G9", got.MainGroupID)
	require.Equal(t, "G9", r.Current(context.Background()).MainGroupID)
}

func TestUpdateRoleWithoutGroup(t *testing.T) {
	r := NewResolver(memory.NewSettings(), domain.Settings{MainGroupID: "G1"}, zap.NewNop())
	_, err := r.Update(context.Background(), domain.Settings{VerifiedRoleID: "R1"})
	require.ErrorIs(t, err, onboard.ErrValidation)
}
