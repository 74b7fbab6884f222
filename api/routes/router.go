package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentorahq/mentora-backend/api/controllers"
	webhookcontrollers "github.com/mentorahq/mentora-backend/api/controllers/webhooks"
	"github.com/mentorahq/mentora-backend/api/middleware"
	checkoutsvc "github.com/mentorahq/mentora-backend/internal/checkout"
	"github.com/mentorahq/mentora-backend/internal/gateway"
	orderssvc "github.com/mentorahq/mentora-backend/internal/orders"
	refundssvc "github.com/mentorahq/mentora-backend/internal/refunds"
	"github.com/mentorahq/mentora-backend/pkg/config"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

type webhookGateway interface {
	Tag() enums.PaymentGateway
	VerifyWebhookSignature(payload []byte, headers http.Header) bool
	ParseWebhookEvent(payload []byte) (*gateway.Event, error)
}

type webhookProcessor interface {
	ProcessEvent(ctx context.Context, gw enums.PaymentGateway, event *gateway.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type checkoutService interface {
	Checkout(ctx context.Context, params checkoutsvc.Params) (*checkoutsvc.Result, error)
}

type orderService interface {
	GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, role enums.MemberRole) (*orderssvc.OrderDetail, error)
}

type refundService interface {
	Initiate(ctx context.Context, params refundssvc.InitiateParams) (*models.Refund, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisPinger controllers.Pinger,
	metricsGatherer prometheus.Gatherer,
	stripeGateway webhookGateway,
	squareGateway webhookGateway,
	webhookService webhookProcessor,
	stripeGuard webhookGuard,
	squareGuard webhookGuard,
	checkoutService checkoutService,
	orderService orderService,
	refundService refundService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbPinger, redisPinger))
	})

	if metricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeGateway, webhookService, stripeGuard, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(squareGateway, webhookService, squareGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Post("/v1/checkout", controllers.Checkout(checkoutService, logg))
		r.Get("/v1/orders/{orderID}", controllers.GetOrder(orderService, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin.String(), logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Post("/v1/orders/{orderID}/refund", controllers.AdminRefundOrder(refundService, logg))
	})

	return r
}
