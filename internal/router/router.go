package router

import (
	"net/http"
	"time"

	"partsight/config"
	"partsight/internal/handler"
	"partsight/internal/middleware"
	"partsight/internal/repository"
	"partsight/internal/service"

	"github.com/gin-gonic/gin"
)

// Deps holds the externally constructed collaborators the router wires
// into handlers.
type Deps struct {
	Analysis *service.AnalysisService
	Billing  *service.BillingService
	Checkout *service.CheckoutService
	Credits  *service.CreditService
	Auth     *service.AuthService
	UserRepo *repository.UserRepository
	SubRepo  *repository.SubscriptionRepository
}

func Setup(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	authHandler := handler.NewAuthHandler(deps.Auth)
	meHandler := handler.NewMeHandler(deps.UserRepo)
	creditHandler := handler.NewCreditHandler(deps.Credits)
	billingHandler := handler.NewBillingHandler(deps.Checkout, deps.SubRepo)
	webhookHandler := handler.NewBillingWebhookHandler(deps.Billing)
	analysisHandler := handler.NewAnalysisHandler(deps.Analysis, deps.Credits)
	adminHandler := handler.NewAdminHandler(deps.Credits)

	authMw := middleware.AuthRequired(&cfg.JWT)
	tierMw := middleware.TierRateLimit(middleware.NewInMemoryRateLimiter(300, time.Minute), deps.SubRepo)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		me := api.Group("/me")
		me.Use(authMw, tierMw)
		{
			me.GET("", meHandler.Get)
			me.GET("/credits", creditHandler.GetBalance)
			me.GET("/credits/transactions", creditHandler.ListTransactions)
			me.GET("/subscription", billingHandler.GetSubscription)
			me.GET("/analyses", analysisHandler.ListJobs)
			me.GET("/analyses/:id", analysisHandler.GetJob)
		}

		billing := api.Group("/billing")
		billing.Use(authMw, tierMw)
		{
			billing.POST("/checkout/subscription", billingHandler.CreateSubscriptionCheckout)
			billing.POST("/checkout/credits", billingHandler.CreateCreditsCheckout)
			billing.POST("/subscription/cancel", billingHandler.Cancel)
			billing.POST("/subscription/reactivate", billingHandler.Reactivate)
		}

		analysis := api.Group("/analysis")
		analysis.Use(authMw, tierMw)
		{
			analysis.POST("", analysisHandler.Submit)
			analysis.GET("/:id", analysisHandler.GetJob)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.POST("/users/:id/credits", adminHandler.GrantCredits)
		}

		api.POST("/webhooks/billing", webhookHandler.Handle)
	}

	return r
}
