package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/decodecollective/decode-backend/api/routes"
	"github.com/decodecollective/decode-backend/internal/auctions"
	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/internal/notifications"
	"github.com/decodecollective/decode-backend/internal/offers"
	"github.com/decodecollective/decode-backend/internal/payouts"
	"github.com/decodecollective/decode-backend/internal/settlement"
	stripewebhooks "github.com/decodecollective/decode-backend/internal/webhooks/stripe"
	"github.com/decodecollective/decode-backend/pkg/config"
	"github.com/decodecollective/decode-backend/pkg/db"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
	"github.com/decodecollective/decode-backend/pkg/migrate"
	"github.com/decodecollective/decode-backend/pkg/pubsub"
	"github.com/decodecollective/decode-backend/pkg/redis"
	"github.com/decodecollective/decode-backend/pkg/scheduler"
	"github.com/decodecollective/decode-backend/pkg/stripe"
	"github.com/decodecollective/decode-backend/pkg/tokens"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	schedulerClient, err := scheduler.NewClient(cfg.Scheduler, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap scheduler", err)
		os.Exit(1)
	}

	issuer, err := tokens.NewIssuer(cfg.Tokens)
	if err != nil {
		logg.Error(context.Background(), "failed to create token issuer", err)
		os.Exit(1)
	}

	var notificationPublisher notifications.Publisher
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		notificationPublisher = notifications.NewTopicPublisher(pubsubClient.NotificationPublisher())
	} else {
		logg.Warn(context.Background(), "pubsub disabled, notifications are recorded but not published")
	}

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	auctionRepo := auctions.NewRepository(dbClient.DB())
	bidRepo := bids.NewRepository(dbClient.DB())
	payoutRepo := payouts.NewRepository(dbClient.DB())
	offerRepo := offers.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())

	notificationSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notificationRepo,
		Publisher: notificationPublisher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	preauth, err := bids.NewPreAuthManager(bids.PreAuthManagerParams{
		Repo:     bidRepo,
		Gateway:  stripeClient,
		Notifier: notificationSvc,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pre-auth manager", err)
		os.Exit(1)
	}

	bidSvc, err := bids.NewService(bids.ServiceParams{
		AuctionRepo: auctionRepo,
		BidRepo:     bidRepo,
		Gateway:     stripeClient,
		PreAuth:     preauth,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid service", err)
		os.Exit(1)
	}

	capturer, err := settlement.NewCapturer(settlement.CapturerParams{
		BidRepo: bidRepo,
		Gateway: stripeClient,
		Logger:  logg,
		Metrics: settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create capturer", err)
		os.Exit(1)
	}

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		AuctionRepo: auctionRepo,
		BidRepo:     bidRepo,
		PayoutRepo:  payoutRepo,
		Capturer:    capturer,
		Gateway:     stripeClient,
		Scheduler:   schedulerClient,
		Minter:      issuer,
		Notifier:    notificationSvc,
		Config:      cfg.Settlement,
		Logger:      logg,
		Metrics:     settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	offerSvc, err := offers.NewService(offers.ServiceParams{
		Repo:     offerRepo,
		Gateway:  stripeClient,
		Notifier: notificationSvc,
		Logger:   logg,
		Metrics:  settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer service", err)
		os.Exit(1)
	}

	eventGuard, err := stripewebhooks.NewEventGuard(redisClient, cfg.Settlement.WebhookDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create event guard", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhooks.NewService(stripewebhooks.ServiceParams{
		Guard:    eventGuard,
		Ledger:   stripewebhooks.NewLedger(dbClient.DB()),
		BidRepo:  bidRepo,
		PreAuth:  preauth,
		OfferSvc: offerSvc,
		Logger:   logg,
		Metrics:  settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			BidService:      bidSvc,
			Settlement:      settlementSvc,
			Notifications:   notificationSvc,
			WebhookService:  webhookSvc,
			StripeClient:    stripeClient,
			MetricsGatherer: registry,
		}),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(ctx, "shutting down on signal "+sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
