package webhooks

import (
	"net/http"

	"github.com/mentorahq/mentora-backend/pkg/logger"
)

// StripeWebhook handles Stripe payment lifecycle events.
func StripeWebhook(client gatewayVerifier, svc EventProcessor, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return handle(client, svc, guard, logg)
}
