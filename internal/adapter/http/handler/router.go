package handler

import (
	"acquiring-gateway/config"
	"acquiring-gateway/internal/adapter/http/middleware"
	"acquiring-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Coordinator    ports.PaymentCoordinator
	Teams          ports.TeamStore
	TokenVerifier  ports.TokenVerifier
	RateLimiter    ports.RateLimiter
	AdminAuthSvc   ports.AdminAuthService
	TokenSvc       ports.TokenService
	Payments       ports.PaymentRepository
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Metrics        ports.MetricsSink
	PromGatherer   prometheus.Gatherer // nil = /metrics disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus exposition
	if deps.PromGatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.PromGatherer, promhttp.HandlerOpts{})))
	}

	rl := func(policy string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimit(deps.RateLimiter, deps.Metrics, policy, deps.Logger)
	}

	// --- Merchant API (token-authenticated) ---
	tokenAuth := middleware.TokenAuth(deps.Teams, deps.TokenVerifier, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.Coordinator)

	payment := r.Group("/api/payment")
	{
		payment.POST("/init", tokenAuth, rl(config.PolicyPaymentInit), paymentHandler.Init)
		payment.POST("/confirm", tokenAuth, rl(config.PolicyGeneral), paymentHandler.Confirm)
		payment.POST("/cancel", tokenAuth, rl(config.PolicyGeneral), paymentHandler.Cancel)
		payment.POST("/refund", tokenAuth, rl(config.PolicyGeneral), paymentHandler.Refund)
		payment.POST("/status", tokenAuth, rl(config.PolicyGeneral), paymentHandler.Status)

		// Customer-facing form flow: no merchant token, the one-time URL
		// itself is the credential.
		payment.GET("/form/:paymentId", rl(config.PolicyGeneral), paymentHandler.ShowForm)
		payment.POST("/submit", rl(config.PolicyGeneral), paymentHandler.SubmitCard)
		payment.POST("/3ds/complete", rl(config.PolicyGeneral), paymentHandler.Complete3DS)
	}

	// --- Operator API (JWT-authenticated) ---
	adminHandler := NewAdminHandler(deps.AdminAuthSvc, deps.Payments)
	teamHandler := NewTeamHandler(deps.Teams)

	r.POST("/api/admin/login", rl(config.PolicyGeneral), adminHandler.Login)

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	r.POST("/api/team/register", jwtAuth, teamHandler.Register)
	r.GET("/api/admin/stats", jwtAuth, adminHandler.Stats)

	return r
}
