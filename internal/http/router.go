package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/config"
	"github.com/smallbiznis/valora-onboard/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-onboard/internal/http/middleware"
	"github.com/smallbiznis/valora-onboard/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Auth   *handler.AuthHandler
	Redeem *handler.RedeemHandler
	Admin  *handler.AdminHandler
	Health *handler.HealthHandler
}

// RateLimits holds the limiter for all public routes and the tighter one for
// routes that consume a code or a state token.
type RateLimits struct {
	Public    *middleware.RateLimiter
	Sensitive *middleware.RateLimiter
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, h Handlers, adminKey *httpmiddleware.AdminKey, limits RateLimits, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", h.Health.Health)

	public := r.Group("/", limits.Public.Handler())
	sensitive := limits.Sensitive.Handler()
	{
		auth := public.Group("/auth")
		auth.GET("/start", h.Auth.Start)
		auth.GET("/authorize", h.Auth.Authorize)
		auth.GET("/callback", sensitive, h.Auth.Callback)

		redeem := public.Group("/redeem")
		redeem.GET("/batches/:id", h.Redeem.BatchStatus)
		redeem.GET("/:code", h.Redeem.Show)
		redeem.POST("/:code", sensitive, h.Redeem.Redeem)
	}

	admin := r.Group("/admin", adminKey.RequireAdminKey)
	{
		admin.POST("/batches", h.Admin.StartBatch)
		admin.GET("/batches/:id", h.Admin.BatchStatus)
		admin.POST("/codes", h.Admin.IssueCodes)
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/settings", h.Admin.GetSettings)
		admin.PUT("/settings", h.Admin.UpdateSettings)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}
