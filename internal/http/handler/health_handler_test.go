package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/repository"
	"github.com/smallbiznis/valora-onboard/internal/service"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveHealth(t *testing.T, checks map[string]repository.Pinger) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(service.NewHealthService(checks, zap.NewNop()))
	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestHealthOK(t *testing.T) {
	w := serveHealth(t, map[string]repository.Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var report service.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, "ok", report.Status)
	require.Equal(t, "connected", report.Checks["database"])
}

func TestHealthDegraded(t *testing.T) {
	w := serveHealth(t, map[string]repository.Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report service.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, "degraded", report.Status)
	require.Equal(t, "unavailable", report.Checks["redis"])
	require.Equal(t, "connected", report.Checks["database"])
}
