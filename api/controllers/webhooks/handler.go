package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mentorahq/mentora-backend/api/responses"
	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

// EventProcessor applies a verified canonical event to order state.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, gw enums.PaymentGateway, event *gateway.Event) error
}

type gatewayVerifier interface {
	Tag() enums.PaymentGateway
	VerifyWebhookSignature(payload []byte, headers http.Header) bool
	ParseWebhookEvent(payload []byte) (*gateway.Event, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// handle is the shared ingestion pipeline: read the raw body, verify the
// signature over those exact bytes, parse, dedupe, process. Any response
// other than 2xx makes the gateway redeliver, so unprocessable-but-valid
// events are acknowledged.
func handle(client gatewayVerifier, svc EventProcessor, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if client == nil || svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !client.VerifyWebhookSignature(payload, r.Header) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := client.ParseWebhookEvent(payload)
		if err != nil {
			// A payload that authenticates but cannot be parsed will not
			// parse on redelivery either, so it is acknowledged and dropped.
			if logg != nil {
				logg.Warn(ctx, fmt.Sprintf("%s webhook payload not parseable: %v", client.Tag(), err))
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if event.ID != "" {
			alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteSuccess(w, nil)
				return
			}
		}

		if err := svc.ProcessEvent(ctx, client.Tag(), event); err != nil {
			if event.ID != "" {
				_ = guard.Delete(ctx, event.ID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("%s event %s processed", client.Tag(), event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
