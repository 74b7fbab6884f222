package squaregw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/pkg/config"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	signatureHeader = "X-Square-Hmacsha256-Signature"

	paymentStatusCompleted = "COMPLETED"
	paymentStatusFailed    = "FAILED"
	paymentStatusCanceled  = "CANCELED"

	refundStatusRejected = "REJECTED"
	refundStatusFailed   = "FAILED"
)

var (
	errAccessTokenRequired     = errors.New("square access token is required")
	errWebhookSecretRequired   = errors.New("square webhook secret is required")
	errLocationRequired        = errors.New("square location id is required")
	errNotificationURLRequired = errors.New("square notification url is required")
	errInvalidSquareEnv        = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// squareAPI is the subset of Square operations the gateway needs, extracted
// so tests can stub the network edge.
type squareAPI interface {
	CreatePaymentLink(ctx context.Context, req *sqcheckout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error)
	RefundPayment(ctx context.Context, req *sq.RefundPaymentRequest) (*sq.RefundPaymentResponse, error)
}

type liveAPI struct {
	sdk *sqclient.Client
}

func (a liveAPI) CreatePaymentLink(ctx context.Context, req *sqcheckout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
	return a.sdk.Checkout.PaymentLinks.Create(ctx, req)
}

func (a liveAPI) RefundPayment(ctx context.Context, req *sq.RefundPaymentRequest) (*sq.RefundPaymentResponse, error) {
	return a.sdk.Refunds.RefundPayment(ctx, req)
}

// Client implements the gateway contract against Square Payment Links.
type Client struct {
	api             squareAPI
	environment     string
	webhookSecret   string
	locationID      string
	notificationURL string
	timeout         time.Duration
	logger          *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	notificationURL := strings.TrimSpace(cfg.NotificationURL)
	if notificationURL == "" {
		return nil, errNotificationURLRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("square client initialized (%s)", env))
	}

	return &Client{
		api:             liveAPI{sdk: sdk},
		environment:     env,
		webhookSecret:   webhookSecret,
		locationID:      locationID,
		notificationURL: notificationURL,
		timeout:         cfg.Timeout,
		logger:          logg,
	}, nil
}

// Tag reports which gateway this client speaks to.
func (c *Client) Tag() enums.PaymentGateway {
	return enums.GatewaySquare
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Charge creates a Payment Link whose underlying order carries the internal
// order id as its reference, which is how payment webhooks correlate back.
func (c *Client) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	orderID := req.OrderID.String()
	linkReq := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(fmt.Sprintf("order-charge-%s", orderID)),
		Order: &sq.Order{
			LocationID:  c.locationID,
			ReferenceID: ptrString(orderID),
			LineItems: []*sq.OrderLineItem{
				{
					Name:           ptrString(req.Title),
					Quantity:       "1",
					BasePriceMoney: moneyPtr(req.AmountCents, req.Currency.String()),
				},
			},
		},
	}

	c.log(ctx, "request", "create_payment_link", map[string]any{
		"order_id":    orderID,
		"location_id": c.locationID,
		"amount":      req.AmountCents,
	})

	resp, err := c.api.CreatePaymentLink(ctx, linkReq)
	if err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: square create payment link: %v", gateway.ErrUnreachable, err)
	}

	link := resp.GetPaymentLink()
	raw, _ := json.Marshal(resp)
	c.log(ctx, "response", "create_payment_link", map[string]any{
		"gateway_order_id": stringValue(link.GetOrderID()),
	})

	return &gateway.ChargeResult{
		GatewayOrderID: stringValue(link.GetOrderID()),
		RedirectURL:    stringValue(link.GetURL()),
		Raw:            raw,
	}, nil
}

// Refund returns money against a completed Square payment. The internal
// refund id is the Square idempotency key, so a retried call after a timeout
// cannot double-refund.
func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	refundReq := &sq.RefundPaymentRequest{
		IdempotencyKey: req.InternalRefundID.String(),
		PaymentID:      ptrString(req.GatewayPaymentID),
		AmountMoney:    moneyPtr(req.AmountCents, req.Currency.String()),
		Reason:         ptrString(req.Reason),
	}

	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_id": req.GatewayPaymentID,
		"refund_id":  req.InternalRefundID.String(),
		"amount":     req.AmountCents,
	})

	resp, err := c.api.RefundPayment(ctx, refundReq)
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		var apiErr *sqcore.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return &gateway.RefundResult{
				Success:       false,
				FailureReason: apiErr.Error(),
			}, nil
		}
		return nil, fmt.Errorf("%w: square refund payment: %v", gateway.ErrUnreachable, err)
	}

	ref := resp.GetRefund()
	status := stringValue(ref.GetStatus())
	c.log(ctx, "response", "refund_payment", map[string]any{
		"gateway_refund_id": ref.GetID(),
		"status":            status,
	})

	if status == refundStatusRejected || status == refundStatusFailed {
		return &gateway.RefundResult{
			Success:         false,
			GatewayRefundID: ref.GetID(),
			FailureReason:   fmt.Sprintf("square refund %s", strings.ToLower(status)),
		}, nil
	}

	return &gateway.RefundResult{
		Success:         true,
		GatewayRefundID: ref.GetID(),
	}, nil
}

// VerifyWebhookSignature recomputes the HMAC-SHA256 of the notification URL
// concatenated with the raw body and compares it to the signature header in
// constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, headers http.Header) bool {
	provided := headers.Get(signatureHeader)
	if provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(c.notificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

type webhookEnvelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment *paymentPayload `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type paymentPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
}

// ParseWebhookEvent maps a verified Square payment event onto the canonical
// shape. Non-payment events and intermediate payment states come back as
// unknown so the ingestion pipeline can acknowledge and drop them.
func (c *Client) ParseWebhookEvent(payload []byte) (*gateway.Event, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode square event: %w", err)
	}

	out := &gateway.Event{
		ID:   envelope.EventID,
		Type: gateway.EventUnknown,
		Raw:  payload,
	}

	if !strings.HasPrefix(envelope.Type, "payment.") || envelope.Data.Object.Payment == nil {
		return out, nil
	}

	payment := envelope.Data.Object.Payment
	out.OrderID = payment.ReferenceID
	out.GatewayPaymentID = payment.ID

	switch payment.Status {
	case paymentStatusCompleted:
		out.Type = gateway.EventPaymentSucceeded
	case paymentStatusFailed:
		out.Type = gateway.EventPaymentFailed
	case paymentStatusCanceled:
		out.Type = gateway.EventPaymentAbandoned
	}

	return out, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
