// Command server runs the agency management API.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	app "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/httpapi"
	billingsvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/postgres"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/config"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/database"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/middleware"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/stripe"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/supabase"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/telnyx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault("server").WithError(err).Fatal("loading configuration")
	}
	log := logging.New("server", cfg.LogLevel)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connecting to database")
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.Database); err != nil {
		log.WithError(err).Fatal("migrating database")
	}

	store := postgres.New(db)
	stores := app.Stores{
		Agencies:  store,
		Users:     store,
		Positions: store,
		Carriers:  store,
		Clients:   store,
		Deals:     store,
		Messaging: store,
		NIPR:      store,
		Billing:   store,
	}

	var dedup billingsvc.Deduper
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; webhook dedup disabled")
		} else {
			dedup = billingsvc.NewRedisDeduper(rdb, 0)
		}
	}

	opts := app.Options{
		SMSSender: telnyx.New(cfg.Telnyx.APIKey, cfg.Telnyx.BaseURL, cfg.Telnyx.Timeout),
		Payments:  stripe.New(cfg.Stripe.SecretKey),
		Dedup:     dedup,
		AuthAdmin: supabase.New(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey),
		Prices: billingsvc.Prices{
			Basic:  cfg.Stripe.BasicPriceID,
			Pro:    cfg.Stripe.ProPriceID,
			Expert: cfg.Stripe.ExpertPriceID,
		},
		SiteURL:    cfg.Stripe.PortalBaseURL,
		ReaperTick: cfg.NIPR.ReaperInterval,
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Fatal("building application")
	}

	rateLimiter := middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)
	router := httpapi.New(application, httpapi.Options{
		Auth:                middleware.Auth(cfg.Auth.JWTSecret, application.Agents, log),
		RateLimit:           rateLimiter.Middleware,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		WorkerToken:         cfg.NIPR.WorkerToken,
		Log:                 log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("starting background services")
	}

	// Scheduled tier changes are normally applied by the renewal
	// webhook; the cron sweep catches users the webhook missed.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 15m", func() {
		if _, err := application.Billing.ApplyDueTierChanges(context.Background()); err != nil {
			log.WithError(err).Error("applying scheduled tier changes")
		}
	}); err != nil {
		log.WithError(err).Fatal("scheduling tier change sweep")
	}
	sweeper.Start()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.WithError(err).Fatal("http server failed")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	<-sweeper.Stop().Done()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("stopping background services")
	}
}
