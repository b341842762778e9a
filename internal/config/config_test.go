package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/onboard")
	t.Setenv("PLATFORM_CLIENT_ID", "client")
	t.Setenv("PLATFORM_CLIENT_SECRET", "secret")
	t.Setenv("PLATFORM_REDIRECT_URI", "https://onboard.example/auth/callback")
	t.Setenv("PLATFORM_BOT_TOKEN", "bot-token")
	t.Setenv("ADMIN_API_KEY", "admin-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, cfg.AttemptDelay)
	require.Equal(t, time.Hour, cfg.StateTokenTTL)
	require.Equal(t, []string{"identify", "guilds.join"}, cfg.PlatformScopes)
	require.Equal(t, 16, cfg.BatchQueueSize)
	require.Equal(t, 10, cfg.RedeemRateLimitRPM)
	require.Equal(t, []string{"GET", "POST", "PUT", "OPTIONS"}, cfg.CORSAllowedMethods)
}

func TestLoadRejectsNonPositiveDelay(t *testing.T) {
	setRequired(t)
	t.Setenv("ONBOARD_ATTEMPT_DELAY", "0s")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ONBOARD_ATTEMPT_DELAY")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}
