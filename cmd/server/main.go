package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partsight/config"
	"partsight/internal/database"
	"partsight/internal/repository"
	"partsight/internal/router"
	"partsight/internal/service"
	"partsight/pkg/analyzer"
	"partsight/pkg/artifact"
	"partsight/pkg/billing"

	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	database.SeedAdmin(db)

	resolveBillingSecrets(cfg, db)

	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	checkoutRepo := repository.NewCheckoutRepository(db)
	jobRepo := repository.NewAnalysisJobRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)

	provider := newProvider(cfg)
	artifacts := newArtifactStore()
	client := analyzer.New(cfg.Analyzer.BaseURL, cfg.Analyzer.InteractiveTimeout, cfg.Analyzer.DeepTimeout, cfg.Analyzer.HealthTimeout)

	authSvc := service.NewAuthService(cfg, userRepo)
	creditSvc := service.NewCreditService(creditRepo, userRepo)
	checkoutSvc := service.NewCheckoutService(provider, checkoutRepo, userRepo, cfg)
	billingSvc := service.NewBillingService(provider, subRepo, creditRepo, checkoutRepo, eventRepo)
	analysisSvc := service.NewAnalysisService(jobRepo, creditSvc, subRepo, client, artifacts)

	scheduler := service.NewRetryScheduler(jobRepo, userRepo, analysisSvc,
		cfg.Scheduler.Interval, cfg.Scheduler.BatchSize, cfg.Scheduler.MaxRetries)
	scheduler.Start()

	engine := router.Setup(cfg, router.Deps{
		Analysis: analysisSvc,
		Billing:  billingSvc,
		Checkout: checkoutSvc,
		Credits:  creditSvc,
		Auth:     authSvc,
		UserRepo: userRepo,
		SubRepo:  subRepo,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	log.Println("server stopped")
}

// resolveBillingSecrets fills empty Stripe keys from persisted system
// settings, so keys rotated through the admin surface survive restarts
// without env changes.
func resolveBillingSecrets(cfg *config.Config, db *gorm.DB) {
	settings := repository.NewSettingRepository(db)
	if cfg.Billing.SecretKey == "" {
		if v, err := settings.Get("stripe_secret_key"); err == nil && v != "" {
			cfg.Billing.SecretKey = v
		}
	}
	if cfg.Billing.WebhookSecret == "" {
		if v, err := settings.Get("stripe_webhook_secret"); err == nil && v != "" {
			cfg.Billing.WebhookSecret = v
		}
	}
}

func newProvider(cfg *config.Config) billing.Provider {
	if p, err := billing.NewStripeProvider(cfg.Billing.SecretKey, cfg.Billing.WebhookSecret); err == nil {
		log.Printf("[billing] stripe provider enabled")
		return p
	}
	log.Printf("[billing] stripe keys missing; using stub provider")
	return billing.NewStubProvider()
}

func newArtifactStore() artifact.Store {
	cc := config.LoadCloudinary()
	store, err := artifact.NewCloudinaryStore(cc.CloudName, cc.APIKey, cc.APISecret)
	if err != nil {
		log.Printf("[artifact] cloudinary unavailable (%v); using in-memory store", err)
		return artifact.NewMemoryStore()
	}
	log.Printf("[artifact] cloudinary store enabled")
	return store
}
