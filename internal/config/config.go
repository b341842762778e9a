package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"valora-onboard"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PlatformAPIBase      string        `env:"PLATFORM_API_BASE" envDefault:"https://discord.com/api/v10"`
	PlatformAuthorizeURL string        `env:"PLATFORM_AUTHORIZE_URL" envDefault:"https://discord.com/oauth2/authorize"`
	PlatformTokenURL     string        `env:"PLATFORM_TOKEN_URL" envDefault:"https://discord.com/api/v10/oauth2/token"`
	PlatformClientID     string        `env:"PLATFORM_CLIENT_ID,required,notEmpty"`
	PlatformClientSecret string        `env:"PLATFORM_CLIENT_SECRET,required,notEmpty"`
	PlatformRedirectURI  string        `env:"PLATFORM_REDIRECT_URI,required,notEmpty"`
	PlatformBotToken     string        `env:"PLATFORM_BOT_TOKEN,required,notEmpty"`
	PlatformScopes       []string      `env:"PLATFORM_SCOPES" envSeparator:" " envDefault:"identify guilds.join"`
	PlatformHTTPTimeout  time.Duration `env:"PLATFORM_HTTP_TIMEOUT" envDefault:"10s"`

	StateTokenTTL  time.Duration `env:"STATE_TOKEN_TTL" envDefault:"1h"`
	AttemptDelay   time.Duration `env:"ONBOARD_ATTEMPT_DELAY" envDefault:"500ms"`
	BatchQueueSize int           `env:"BATCH_QUEUE_SIZE" envDefault:"16"`
	BatchStatusTTL time.Duration `env:"BATCH_STATUS_TTL" envDefault:"24h"`

	MainGroupID    string `env:"MAIN_GROUP_ID"`
	VerifiedRoleID string `env:"VERIFIED_ROLE_ID"`
	LogWebhookURL  string `env:"LOG_WEBHOOK_URL"`

	PublicBaseURL      string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	AdminAPIKey        string `env:"ADMIN_API_KEY,required,notEmpty"`
	RateLimitRPM       int    `env:"RATE_LIMIT_RPM" envDefault:"600"`
	RedeemRateLimitRPM int    `env:"REDEEM_RATE_LIMIT_RPM" envDefault:"10"`

	TelemetryEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	CORSAllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envDefault:"GET,POST,PUT,OPTIONS"`
	CORSAllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envDefault:"Authorization,Content-Type"`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that struct tags cannot express.
func (c Config) Validate() error {
	if c.AttemptDelay <= 0 {
		return fmt.Errorf("ONBOARD_ATTEMPT_DELAY must be positive")
	}
	if c.StateTokenTTL <= 0 {
		return fmt.Errorf("STATE_TOKEN_TTL must be positive")
	}
	if c.BatchQueueSize <= 0 {
		return fmt.Errorf("BATCH_QUEUE_SIZE must be positive")
	}
	if strings.TrimSpace(c.AdminAPIKey) == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}
	return nil
}
