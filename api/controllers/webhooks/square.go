package webhooks

import (
	"net/http"

	"github.com/mentorahq/mentora-backend/pkg/logger"
)

// SquareWebhook handles Square payment lifecycle events.
func SquareWebhook(client gatewayVerifier, svc EventProcessor, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return handle(client, svc, guard, logg)
}
