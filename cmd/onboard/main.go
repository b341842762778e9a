package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/valora-onboard/internal/adapter/cache"
	"github.com/smallbiznis/valora-onboard/internal/adapter/notify"
	"github.com/smallbiznis/valora-onboard/internal/adapter/platform"
	"github.com/smallbiznis/valora-onboard/internal/bootstrap"
	"github.com/smallbiznis/valora-onboard/internal/config"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	httptransport "github.com/smallbiznis/valora-onboard/internal/http"
	"github.com/smallbiznis/valora-onboard/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-onboard/internal/http/middleware"
	apimiddleware "github.com/smallbiznis/valora-onboard/internal/middleware"
	"github.com/smallbiznis/valora-onboard/internal/repository"
	"github.com/smallbiznis/valora-onboard/internal/server"
	"github.com/smallbiznis/valora-onboard/internal/service"
	authservice "github.com/smallbiznis/valora-onboard/internal/service/auth"
	"github.com/smallbiznis/valora-onboard/internal/service/onboarding"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
	"github.com/smallbiznis/valora-onboard/internal/service/settings"
	"github.com/smallbiznis/valora-onboard/internal/telemetry"
	"github.com/smallbiznis/valora-onboard/internal/worker"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newCredentialStore,
			newRedemptionRepository,
			newSettingsRepository,
			newRedisClient,
			newStateStore,
			newBatchStatusStore,
			newPlatformClient,
			newNotifier,
			newSettingsResolver,
			newStateManager,
			newAuthService,
			newOrchestrator,
			newBatchQueue,
			newRedemptionService,
			newAdminService,
			newHealthService,
			newRateLimits,
			newAdminKey,
			newHandlers,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startBatchQueue, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}
	if provider.Enabled() {
		logger.Info("trace export enabled", zap.String("endpoint", cfg.TelemetryEndpoint))
	} else {
		logger.Info("trace export disabled")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newCredentialStore(pool *pgxpool.Pool) repository.CredentialStore {
	return repository.NewPostgresCredentialRepo(pool)
}

func newRedemptionRepository(pool *pgxpool.Pool) repository.RedemptionCodeRepository {
	return repository.NewPostgresRedemptionRepo(pool)
}

func newSettingsRepository(pool *pgxpool.Pool) repository.SettingsRepository {
	return repository.NewPostgresSettingsRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStateStore(client redis.UniversalClient) repository.StateTokenStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newBatchStatusStore(client redis.UniversalClient, cfg config.Config) repository.BatchStatusStore {
	return cacheadapter.NewRedisBatchStore(client, cfg.BatchStatusTTL)
}

func newPlatformClient(cfg config.Config) platform.Client {
	return platform.NewHTTPClient(nil, platform.Options{
		APIBase:      cfg.PlatformAPIBase,
		TokenURL:     cfg.PlatformTokenURL,
		ClientID:     cfg.PlatformClientID,
		ClientSecret: cfg.PlatformClientSecret,
		RedirectURI:  cfg.PlatformRedirectURI,
		BotToken:     cfg.PlatformBotToken,
		Timeout:      cfg.PlatformHTTPTimeout,
	})
}

func newNotifier(cfg config.Config, logger *zap.Logger) notify.Notifier {
	return notify.NewWebhookNotifier(nil, cfg.ServiceName, logger)
}

func newSettingsResolver(repo repository.SettingsRepository, cfg config.Config, logger *zap.Logger) *settings.Resolver {
	return settings.NewResolver(repo, domain.Settings{
		MainGroupID:    cfg.MainGroupID,
		VerifiedRoleID: cfg.VerifiedRoleID,
		LogWebhookURL:  cfg.LogWebhookURL,
	}, logger)
}

func newStateManager(store repository.StateTokenStore, cfg config.Config) *authservice.StateManager {
	return authservice.NewStateManager(store, cfg.StateTokenTTL)
}

func newAuthService(states *authservice.StateManager, client platform.Client, credentials repository.CredentialStore, resolver *settings.Resolver, notifier notify.Notifier, cfg config.Config, logger *zap.Logger) *authservice.Service {
	return authservice.NewService(states, client, credentials, resolver, notifier, authservice.Options{
		ClientID:     cfg.PlatformClientID,
		RedirectURI:  cfg.PlatformRedirectURI,
		AuthorizeURL: cfg.PlatformAuthorizeURL,
		Scopes:       cfg.PlatformScopes,
	}, logger)
}

func newOrchestrator(client platform.Client, credentials repository.CredentialStore, cfg config.Config, logger *zap.Logger) (*onboarding.Orchestrator, error) {
	return onboarding.NewOrchestrator(client, credentials, cfg.AttemptDelay, logger)
}

func newBatchQueue(orchestrator *onboarding.Orchestrator, statuses repository.BatchStatusStore, notifier notify.Notifier, resolver *settings.Resolver, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *worker.Queue {
	return worker.NewQueue(orchestrator, statuses, notifier, resolver, node, cfg.BatchQueueSize, logger)
}

func newRedemptionService(codes repository.RedemptionCodeRepository, credentials repository.CredentialStore, client platform.Client, queue *worker.Queue, cfg config.Config, logger *zap.Logger) *redemption.Service {
	return redemption.NewService(codes, credentials, client, queue, cfg.PublicBaseURL, logger)
}

func newAdminService(credentials repository.CredentialStore, codes repository.RedemptionCodeRepository, client platform.Client, queue *worker.Queue, resolver *settings.Resolver, redemptionService *redemption.Service, logger *zap.Logger) *service.AdminService {
	return service.NewAdminService(credentials, codes, client, queue, resolver, redemptionService, logger)
}

func newHealthService(pool *pgxpool.Pool, client redis.UniversalClient, logger *zap.Logger) *service.HealthService {
	return service.NewHealthService(map[string]repository.Pinger{
		"database": pool,
		"redis":    cacheadapter.NewPinger(client),
	}, logger)
}

func newRateLimits(cfg config.Config, logger *zap.Logger) httptransport.RateLimits {
	return httptransport.RateLimits{
		Public: apimiddleware.NewRateLimiter(cfg.RateLimitRPM,
			apimiddleware.WithName("public"),
			apimiddleware.WithLogger(logger),
		),
		Sensitive: apimiddleware.NewRateLimiter(cfg.RedeemRateLimitRPM,
			apimiddleware.WithName("sensitive"),
			apimiddleware.WithKey(apimiddleware.RouteClientKey),
			apimiddleware.WithBurst(3),
			apimiddleware.WithLogger(logger),
		),
	}
}

func newAdminKey(cfg config.Config) *httpmiddleware.AdminKey {
	return &httpmiddleware.AdminKey{Key: cfg.AdminAPIKey}
}

func newHandlers(auth *authservice.Service, redemptionService *redemption.Service, queue *worker.Queue, admin *service.AdminService, health *service.HealthService) httptransport.Handlers {
	return httptransport.Handlers{
		Auth:   handler.NewAuthHandler(auth),
		Redeem: handler.NewRedeemHandler(redemptionService, queue),
		Admin:  handler.NewAdminHandler(admin),
		Health: handler.NewHealthHandler(health),
	}
}

func startBatchQueue(lc fx.Lifecycle, queue *worker.Queue, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			queue.Start()
			logger.Info("batch queue started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if queue.Running() {
				logger.Info("waiting for running batch to finish")
			}
			return queue.Stop(ctx)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
