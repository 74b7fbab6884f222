package checkout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/internal/orders"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

type stubCatalog struct {
	duration *models.ProgramDuration
	err      error
}

func (s *stubCatalog) FindActiveDuration(context.Context, uuid.UUID) (*models.ProgramDuration, error) {
	return s.duration, s.err
}

type stubOrderRepo struct {
	orders.Repository
	created *models.Order
	updates map[string]any
}

func (s *stubOrderRepo) Create(_ context.Context, order *models.Order) (*models.Order, error) {
	s.created = order
	return order, nil
}

func (s *stubOrderRepo) Update(_ context.Context, _ uuid.UUID, updates map[string]any) error {
	s.updates = updates
	return nil
}

type stubGatewayClient struct {
	tag     enums.PaymentGateway
	result  *gateway.ChargeResult
	err     error
	lastReq *gateway.ChargeRequest
}

func (s *stubGatewayClient) Tag() enums.PaymentGateway { return s.tag }
func (s *stubGatewayClient) Charge(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	s.lastReq = &req
	return s.result, s.err
}
func (s *stubGatewayClient) Refund(context.Context, gateway.RefundRequest) (*gateway.RefundResult, error) {
	return nil, nil
}
func (s *stubGatewayClient) VerifyWebhookSignature([]byte, http.Header) bool { return false }
func (s *stubGatewayClient) ParseWebhookEvent([]byte) (*gateway.Event, error) {
	return nil, nil
}

type stubResolver struct {
	client      *stubGatewayClient
	resolvedTag enums.PaymentGateway
}

func (s *stubResolver) Resolve(tag enums.PaymentGateway) (gateway.Client, error) {
	s.resolvedTag = tag
	s.client.tag = tag
	return s.client, nil
}

func activeDuration() *models.ProgramDuration {
	return &models.ProgramDuration{
		ID:            uuid.New(),
		ProgramID:     uuid.New(),
		TierID:        uuid.New(),
		ExpertID:      uuid.New(),
		Title:         "Backend Career Track",
		PriceCents:    49900,
		DiscountCents: 4900,
		Currency:      enums.CurrencyUSD,
		Active:        true,
	}
}

func newCheckoutService(t *testing.T, cat *stubCatalog, repo *stubOrderRepo, resolver *stubResolver) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Catalog:   cat,
		OrderRepo: repo,
		Gateways:  resolver,
		Logger:    logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestCheckoutCreatesOrderAndOpensPayment(t *testing.T) {
	duration := activeDuration()
	repo := &stubOrderRepo{}
	client := &stubGatewayClient{result: &gateway.ChargeResult{
		GatewayOrderID: "cs_1",
		RedirectURL:    "https://checkout.stripe.com/pay/cs_1",
		Raw:            []byte(`{"id":"cs_1"}`),
	}}
	resolver := &stubResolver{client: client}
	svc := newCheckoutService(t, &stubCatalog{duration: duration}, repo, resolver)

	buyerID := uuid.New()
	result, err := svc.Checkout(context.Background(), Params{
		BuyerID:      buyerID,
		DurationID:   duration.ID,
		LocationCode: "GB",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_1", result.RedirectURL)

	require.NotNil(t, repo.created)
	assert.Equal(t, buyerID, repo.created.BuyerID)
	assert.Equal(t, int64(45000), repo.created.AmountCents)
	assert.Equal(t, enums.OrderStatusPending, repo.created.Status)
	assert.Equal(t, enums.GatewayStripe, repo.created.Gateway)

	require.NotNil(t, client.lastReq)
	assert.Equal(t, repo.created.ID, client.lastReq.OrderID)
	assert.Equal(t, "Backend Career Track", client.lastReq.Title)

	assert.Equal(t, "cs_1", repo.updates["gateway_order_id"])
}

func TestCheckoutRoutesUSBuyersToSquare(t *testing.T) {
	duration := activeDuration()
	repo := &stubOrderRepo{}
	resolver := &stubResolver{client: &stubGatewayClient{result: &gateway.ChargeResult{GatewayOrderID: "sq-1"}}}
	svc := newCheckoutService(t, &stubCatalog{duration: duration}, repo, resolver)

	_, err := svc.Checkout(context.Background(), Params{
		BuyerID:      uuid.New(),
		DurationID:   duration.ID,
		LocationCode: "US",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.GatewaySquare, resolver.resolvedTag)
	assert.Equal(t, enums.GatewaySquare, repo.created.Gateway)
}

func TestCheckoutUnknownDuration(t *testing.T) {
	repo := &stubOrderRepo{}
	resolver := &stubResolver{client: &stubGatewayClient{}}
	svc := newCheckoutService(t, &stubCatalog{err: gorm.ErrRecordNotFound}, repo, resolver)

	_, err := svc.Checkout(context.Background(), Params{
		BuyerID:      uuid.New(),
		DurationID:   uuid.New(),
		LocationCode: "GB",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.Nil(t, repo.created)
}

func TestCheckoutRejectsNonPositiveAmount(t *testing.T) {
	duration := activeDuration()
	duration.DiscountCents = duration.PriceCents
	repo := &stubOrderRepo{}
	resolver := &stubResolver{client: &stubGatewayClient{}}
	svc := newCheckoutService(t, &stubCatalog{duration: duration}, repo, resolver)

	_, err := svc.Checkout(context.Background(), Params{
		BuyerID:      uuid.New(),
		DurationID:   duration.ID,
		LocationCode: "GB",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Nil(t, repo.created)
}

func TestCheckoutChargeFailureLeavesOrderPending(t *testing.T) {
	duration := activeDuration()
	repo := &stubOrderRepo{}
	client := &stubGatewayClient{err: errors.Join(gateway.ErrUnreachable, errors.New("timeout"))}
	resolver := &stubResolver{client: client}
	svc := newCheckoutService(t, &stubCatalog{duration: duration}, repo, resolver)

	_, err := svc.Checkout(context.Background(), Params{
		BuyerID:      uuid.New(),
		DurationID:   duration.ID,
		LocationCode: "GB",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	require.NotNil(t, repo.created)
	assert.Equal(t, enums.OrderStatusPending, repo.created.Status)
	assert.Nil(t, repo.updates)
}
