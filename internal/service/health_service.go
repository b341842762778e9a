package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/repository"
)

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (r HealthReport) Healthy() bool {
	return r.Status == "ok"
}

// HealthService pings the backing stores.
type HealthService struct {
	checks  map[string]repository.Pinger
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthService(checks map[string]repository.Pinger, logger *zap.Logger) *HealthService {
	return &HealthService{checks: checks, timeout: 2 * time.Second, logger: logger}
}

func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	for name, pinger := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			report.Status = "degraded"
			report.Checks[name] = "unavailable"
			if s.logger != nil {
				s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			}
			continue
		}
		report.Checks[name] = "connected"
	}
	return report
}
