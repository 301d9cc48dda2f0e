package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decodecollective/decode-backend/api/controllers"
	webhookcontrollers "github.com/decodecollective/decode-backend/api/controllers/webhooks"
	"github.com/decodecollective/decode-backend/api/middleware"
	"github.com/decodecollective/decode-backend/pkg/config"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// Params carries everything the router wires into handlers.
type Params struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           controllers.Pinger
	BidService      controllers.BidService
	Settlement      controllers.SettlementService
	Notifications   controllers.NotificationService
	WebhookService  webhookcontrollers.StripeWebhookService
	StripeClient    interface{ SigningSecret() string }
	MetricsGatherer prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, map[string]controllers.Pinger{
			"database": p.DB,
			"redis":    p.Redis,
		}))
	})

	if p.MetricsGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.WebhookService, p.StripeClient, p.Logger))
	})

	r.Route("/api/v1/scheduler", func(r chi.Router) {
		r.Use(middleware.SchedulerAuth(p.Config.Scheduler.CallbackToken, p.Logger))
		r.Post("/callback", controllers.SchedulerCallback(p.Settlement, p.Logger))
	})

	r.Route("/api/v1/bids", func(r chi.Router) {
		r.Post("/", controllers.PlaceBid(p.BidService, p.Logger))
	})

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", controllers.ListNotifications(p.Notifications, p.Logger))
	})

	return r
}
