package squaregw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/pkg/config"
	"github.com/mentorahq/mentora-backend/pkg/enums"
)

type stubAPI struct {
	linkResp   *sq.CreatePaymentLinkResponse
	linkErr    error
	refundResp *sq.RefundPaymentResponse
	refundErr  error

	lastLinkReq   *sqcheckout.CreatePaymentLinkRequest
	lastRefundReq *sq.RefundPaymentRequest
}

func (s *stubAPI) CreatePaymentLink(_ context.Context, req *sqcheckout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
	s.lastLinkReq = req
	return s.linkResp, s.linkErr
}

func (s *stubAPI) RefundPayment(_ context.Context, req *sq.RefundPaymentRequest) (*sq.RefundPaymentResponse, error) {
	s.lastRefundReq = req
	return s.refundResp, s.refundErr
}

func testConfig() config.SquareConfig {
	return config.SquareConfig{
		AccessToken:     "sandbox-token",
		WebhookSecret:   "sq-secret",
		Env:             "sandbox",
		LocationID:      "L123",
		NotificationURL: "https://mentora.test/api/v1/webhooks/square",
		Timeout:         5 * time.Second,
	}
}

func newTestClient(t *testing.T, api *stubAPI) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	client.api = api
	return client
}

func signPayload(secret, notificationURL string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func strPtr(v string) *string { return &v }

func TestNewClientValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "staging"
	_, err := NewClient(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, errInvalidSquareEnv)

	cfg = testConfig()
	cfg.AccessToken = " "
	_, err = NewClient(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, errAccessTokenRequired)

	cfg = testConfig()
	cfg.NotificationURL = ""
	_, err = NewClient(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, errNotificationURLRequired)
}

func TestChargeCarriesOrderReference(t *testing.T) {
	api := &stubAPI{linkResp: &sq.CreatePaymentLinkResponse{
		PaymentLink: &sq.PaymentLink{
			OrderID: strPtr("sq-order-1"),
			URL:     strPtr("https://square.link/u/abc"),
		},
	}}
	client := newTestClient(t, api)

	orderID := uuid.New()
	result, err := client.Charge(context.Background(), gateway.ChargeRequest{
		OrderID:     orderID,
		Title:       "Interview Prep Sprint",
		AmountCents: 9900,
		Currency:    enums.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.Equal(t, "sq-order-1", result.GatewayOrderID)
	assert.Equal(t, "https://square.link/u/abc", result.RedirectURL)

	req := api.lastLinkReq
	require.NotNil(t, req)
	require.NotNil(t, req.Order)
	assert.Equal(t, "L123", req.Order.LocationID)
	assert.Equal(t, orderID.String(), *req.Order.ReferenceID)
	assert.Equal(t, int64(9900), *req.Order.LineItems[0].BasePriceMoney.Amount)
}

func TestChargeTransportFailureIsUnreachable(t *testing.T) {
	api := &stubAPI{linkErr: errors.New("dial tcp: connection refused")}
	client := newTestClient(t, api)

	_, err := client.Charge(context.Background(), gateway.ChargeRequest{OrderID: uuid.New(), AmountCents: 100})
	assert.ErrorIs(t, err, gateway.ErrUnreachable)
}

func TestRefundUsesInternalIDAsIdempotencyKey(t *testing.T) {
	api := &stubAPI{refundResp: &sq.RefundPaymentResponse{
		Refund: &sq.PaymentRefund{
			ID:     "sq-refund-1",
			Status: strPtr("PENDING"),
		},
	}}
	client := newTestClient(t, api)

	refundID := uuid.New()
	result, err := client.Refund(context.Background(), gateway.RefundRequest{
		GatewayPaymentID: "sq-payment-1",
		InternalRefundID: refundID,
		AmountCents:      2500,
		Currency:         enums.CurrencyUSD,
		Reason:           "requested by buyer",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sq-refund-1", result.GatewayRefundID)

	req := api.lastRefundReq
	require.NotNil(t, req)
	assert.Equal(t, refundID.String(), req.IdempotencyKey)
	assert.Equal(t, "sq-payment-1", *req.PaymentID)
	assert.Equal(t, int64(2500), *req.AmountMoney.Amount)
}

func TestRefundRejectionIsDefinitive(t *testing.T) {
	api := &stubAPI{refundErr: sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"REFUND_AMOUNT_INVALID"}]}`))}
	client := newTestClient(t, api)

	result, err := client.Refund(context.Background(), gateway.RefundRequest{InternalRefundID: uuid.New(), AmountCents: 100})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.FailureReason)
}

func TestRefundRejectedStatusIsDefinitive(t *testing.T) {
	api := &stubAPI{refundResp: &sq.RefundPaymentResponse{
		Refund: &sq.PaymentRefund{
			ID:     "sq-refund-2",
			Status: strPtr("REJECTED"),
		},
	}}
	client := newTestClient(t, api)

	result, err := client.Refund(context.Background(), gateway.RefundRequest{InternalRefundID: uuid.New(), AmountCents: 100})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "square refund rejected", result.FailureReason)
}

func TestRefundServerErrorIsUnreachable(t *testing.T) {
	api := &stubAPI{refundErr: sqcore.NewAPIError(http.StatusBadGateway, errors.New("upstream timeout"))}
	client := newTestClient(t, api)

	_, err := client.Refund(context.Background(), gateway.RefundRequest{InternalRefundID: uuid.New(), AmountCents: 100})
	assert.ErrorIs(t, err, gateway.ErrUnreachable)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := newTestClient(t, &stubAPI{})
	cfg := testConfig()
	payload := []byte(`{"event_id":"evt-1"}`)

	headers := http.Header{}
	headers.Set(signatureHeader, signPayload(cfg.WebhookSecret, cfg.NotificationURL, payload))
	assert.True(t, client.VerifyWebhookSignature(payload, headers))

	headers.Set(signatureHeader, signPayload("wrong-secret", cfg.NotificationURL, payload))
	assert.False(t, client.VerifyWebhookSignature(payload, headers))

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'x'
	headers.Set(signatureHeader, signPayload(cfg.WebhookSecret, cfg.NotificationURL, payload))
	assert.False(t, client.VerifyWebhookSignature(tampered, headers))

	assert.False(t, client.VerifyWebhookSignature(payload, http.Header{}))
}

func paymentEvent(eventID, status, referenceID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event_id": %q,
		"type": "payment.updated",
		"data": {
			"object": {
				"payment": {
					"id": "sq-payment-1",
					"status": %q,
					"order_id": "sq-order-1",
					"reference_id": %q
				}
			}
		}
	}`, eventID, status, referenceID))
}

func TestParseWebhookEventStatuses(t *testing.T) {
	client := newTestClient(t, &stubAPI{})
	orderID := uuid.NewString()

	cases := []struct {
		status string
		want   gateway.EventType
	}{
		{"COMPLETED", gateway.EventPaymentSucceeded},
		{"FAILED", gateway.EventPaymentFailed},
		{"CANCELED", gateway.EventPaymentAbandoned},
		{"PENDING", gateway.EventUnknown},
	}
	for _, tc := range cases {
		event, err := client.ParseWebhookEvent(paymentEvent("evt-1", tc.status, orderID))
		require.NoError(t, err, tc.status)
		assert.Equal(t, tc.want, event.Type, tc.status)
		assert.Equal(t, orderID, event.OrderID, tc.status)
		assert.Equal(t, "sq-payment-1", event.GatewayPaymentID, tc.status)
	}
}

func TestParseWebhookEventUnrelatedTypeIsUnknown(t *testing.T) {
	client := newTestClient(t, &stubAPI{})

	event, err := client.ParseWebhookEvent([]byte(`{"event_id":"evt-2","type":"catalog.version.updated","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, gateway.EventUnknown, event.Type)
	assert.Empty(t, event.OrderID)
}
