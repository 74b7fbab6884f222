package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/pkg/enums"
)

// ErrUnreachable marks network-level failures talking to a processor. The
// refund orchestrator treats it as transient: the refund row stays pending
// for manual reconciliation instead of being marked failed.
var ErrUnreachable = errors.New("payment gateway unreachable")

// ChargeRequest asks a processor to open a hosted payment flow for an order.
type ChargeRequest struct {
	OrderID     uuid.UUID
	Title       string
	AmountCents int64
	Currency    enums.Currency
}

// ChargeResult carries the processor-side order handle and the redirect the
// buyer completes payment on.
type ChargeResult struct {
	GatewayOrderID string
	RedirectURL    string
	Raw            json.RawMessage
}

// RefundRequest asks a processor to return money for a settled payment.
// InternalRefundID doubles as the idempotency key where the processor
// supports one.
type RefundRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	InternalRefundID uuid.UUID
	AmountCents      int64
	Currency         enums.Currency
	Reason           string
}

// RefundResult reports the processor's verdict. A definitive rejection comes
// back as Success=false with a reason; transport failures surface as errors.
type RefundResult struct {
	Success         bool
	GatewayRefundID string
	FailureReason   string
}

// EventType is the processor-independent classification of a webhook.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentAbandoned EventType = "payment_abandoned"
	EventUnknown          EventType = "unknown"
)

// Event is the canonical, processor-independent view of a webhook payload.
// OrderID is the raw correlation string; the ingestion pipeline parses it
// into an internal identifier and silently discards anything unparseable.
type Event struct {
	ID               string
	Type             EventType
	OrderID          string
	GatewayPaymentID string
	Raw              json.RawMessage
}

// Client is implemented once per external processor. Signature verification
// operates on the exact raw bytes received, before any JSON decoding; parsing
// runs only after verification succeeds.
type Client interface {
	Tag() enums.PaymentGateway
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	VerifyWebhookSignature(payload []byte, headers http.Header) bool
	ParseWebhookEvent(payload []byte) (*Event, error)
}
