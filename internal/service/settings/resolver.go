package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

// Resolver serves saved settings, or the environment defaults until the first save.
type Resolver struct {
	repo     repository.SettingsRepository
	defaults domain.Settings
	logger   *zap.Logger
}

func NewResolver(repo repository.SettingsRepository, defaults domain.Settings, logger *zap.Logger) *Resolver {
	return &Resolver{repo: repo, defaults: defaults, logger: logger}
}

// Current returns the effective settings. A store failure degrades to the defaults.
func (r *Resolver) Current(ctx context.Context) domain.Settings {
	stored, err := r.repo.Get(ctx)
	if err != nil {
		r.log().Warn("load settings failed, using defaults", zap.Error(err))
		return r.defaults
	}
	if stored == nil {
		return r.defaults
	}
	return *stored
}

// Update validates and persists a complete settings record. Empty fields are
// stored as empty and are not refilled from the defaults.
func (r *Resolver) Update(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	in.MainGroupID = strings.TrimSpace(in.MainGroupID)
	in.VerifiedRoleID = strings.TrimSpace(in.VerifiedRoleID)
	in.LogWebhookURL = strings.TrimSpace(in.LogWebhookURL)

	if in.LogWebhookURL != "" {
		u, err := url.Parse(in.LogWebhookURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return domain.Settings{}, fmt.Errorf("%w: log_webhook_url must be an http(s) URL", onboard.ErrValidation)
		}
	}
	if in.VerifiedRoleID != "" && in.MainGroupID == "" {
		return domain.Settings{}, fmt.Errorf("%w: verified_role_id requires main_group_id", onboard.ErrValidation)
	}

	if err := r.repo.Save(ctx, in); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	r.log().Info("settings updated",
		zap.String("main_group_id", in.MainGroupID),
		zap.String("verified_role_id", in.VerifiedRoleID),
		zap.Bool("webhook_configured", in.LogWebhookURL != ""),
	)
	return in, nil
}

func (r *Resolver) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
