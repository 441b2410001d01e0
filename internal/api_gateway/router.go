package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stipend-escrow-ledger/internal/api_gateway/handler"
	"github.com/stipend-escrow-ledger/internal/api_gateway/middleware"
	"github.com/stipend-escrow-ledger/internal/config"
)

// Rate limit scopes
const (
	scopeDispute  = "dispute"
	scopeCheckout = "checkout"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	holds    *handler.HoldHandler
	checkout *handler.CheckoutHandler
	wallets  *handler.WalletHandler
	webhooks *handler.WebhookHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	h handlers,
	limiter middleware.Limiter,
	limits config.RateLimitConfig,
	deps map[string]Pinger,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	api := r.Group("/api/v1")

	// Gateway callbacks authenticate by signature, not by caller identity
	api.POST("/webhooks/payments", h.webhooks.Receive)

	v1 := api.Group("")
	v1.Use(middleware.Actor())
	{
		holds := v1.Group("/holds/:id")
		{
			holds.GET("", h.holds.GetByID)
			holds.GET("/audit", h.holds.AuditTrail)
			holds.GET("/settlements", h.holds.Settlements)
			holds.POST("/confirm", h.holds.ConfirmDelivery)
			holds.POST("/disputes",
				middleware.RateLimit(limiter, scopeDispute, limits.DisputeLimit, limits.Window),
				h.holds.FileDispute,
			)
			holds.POST("/resolution", h.holds.ResolveDispute)
		}

		v1.POST("/checkout",
			middleware.RateLimit(limiter, scopeCheckout, limits.CheckoutLimit, limits.Window),
			h.checkout.Create,
		)

		v1.GET("/wallets/:userId", h.wallets.GetByUserID)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	// Readiness fails while any backing store is unreachable
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": checks})
	})
}
