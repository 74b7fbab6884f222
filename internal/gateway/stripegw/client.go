package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/pkg/config"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	signatureHeader = "Stripe-Signature"

	eventCheckoutCompleted = "checkout.session.completed"
	eventCheckoutExpired   = "checkout.session.expired"
	eventPaymentFailed     = "payment_intent.payment_failed"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// stripeAPI is the subset of Stripe operations the gateway needs, extracted
// so tests can stub the network edge.
type stripeAPI interface {
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type liveAPI struct{}

func (liveAPI) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (liveAPI) NewRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}

// Client implements the gateway contract against Stripe Checkout Sessions.
type Client struct {
	api           stripeAPI
	environment   string
	signingSecret string
	successURL    string
	cancelURL     string
	timeout       time.Duration
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           liveAPI{},
		environment:   env,
		signingSecret: signingSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		timeout:       cfg.Timeout,
		logger:        logg,
	}, nil
}

// Tag reports which gateway this client speaks to.
func (c *Client) Tag() enums.PaymentGateway {
	return enums.GatewayStripe
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Charge opens a Checkout Session for the order. The internal order id rides
// both on the session's client reference and in the payment intent metadata so
// either webhook shape can be correlated back.
func (c *Client) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	orderID := req.OrderID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency.String())),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Title),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": orderID},
		},
	}

	sess, err := c.api.NewCheckoutSession(ctx, params)
	if err != nil {
		return nil, c.wrapTransportError(ctx, "create checkout session", err)
	}

	raw, _ := json.Marshal(sess)
	return &gateway.ChargeResult{
		GatewayOrderID: sess.ID,
		RedirectURL:    sess.URL,
		Raw:            raw,
	}, nil
}

// Refund issues a partial or full refund against the order's payment intent.
// The internal refund id is the Stripe idempotency key, so a retried call
// after a timeout cannot double-refund.
func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayPaymentID),
		Amount:        stripe.Int64(req.AmountCents),
		Metadata:      map[string]string{"refund_id": req.InternalRefundID.String()},
	}
	params.SetIdempotencyKey(req.InternalRefundID.String())

	ref, err := c.api.NewRefund(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < http.StatusInternalServerError {
			return &gateway.RefundResult{
				Success:       false,
				FailureReason: stripeErr.Msg,
			}, nil
		}
		return nil, c.wrapTransportError(ctx, "create refund", err)
	}

	if ref.Status == stripe.RefundStatusFailed {
		return &gateway.RefundResult{
			Success:         false,
			GatewayRefundID: ref.ID,
			FailureReason:   string(ref.FailureReason),
		}, nil
	}

	return &gateway.RefundResult{
		Success:         true,
		GatewayRefundID: ref.ID,
	}, nil
}

// VerifyWebhookSignature checks the timestamped signature header against the
// raw request bytes.
func (c *Client) VerifyWebhookSignature(payload []byte, headers http.Header) bool {
	sigHeader := headers.Get(signatureHeader)
	if sigHeader == "" {
		return false
	}
	return webhook.ValidatePayload(payload, sigHeader, c.signingSecret) == nil
}

// ParseWebhookEvent maps a verified Stripe event onto the canonical shape.
// Event types outside the payment lifecycle come back as unknown so the
// ingestion pipeline can acknowledge and drop them.
func (c *Client) ParseWebhookEvent(payload []byte) (*gateway.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}

	out := &gateway.Event{
		ID:   event.ID,
		Type: gateway.EventUnknown,
		Raw:  payload,
	}

	switch string(event.Type) {
	case eventCheckoutCompleted, eventCheckoutExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session from event %s: %w", event.ID, err)
		}
		out.OrderID = sess.ClientReferenceID
		if sess.PaymentIntent != nil {
			out.GatewayPaymentID = sess.PaymentIntent.ID
		}
		if string(event.Type) == eventCheckoutCompleted {
			out.Type = gateway.EventPaymentSucceeded
		} else {
			out.Type = gateway.EventPaymentAbandoned
		}
	case eventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent from event %s: %w", event.ID, err)
		}
		out.Type = gateway.EventPaymentFailed
		out.OrderID = intent.Metadata["order_id"]
		out.GatewayPaymentID = intent.ID
	}

	return out, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrapTransportError(ctx context.Context, op string, err error) error {
	if c.logger != nil {
		c.logger.Error(ctx, fmt.Sprintf("stripe %s", op), err)
	}
	return fmt.Errorf("%w: stripe %s: %v", gateway.ErrUnreachable, op, err)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
