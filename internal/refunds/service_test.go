package refunds

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/internal/orders"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
	"github.com/mentorahq/mentora-backend/pkg/outbox"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  program_id TEXT NOT NULL,
  duration_id TEXT NOT NULL,
  tier_id TEXT NOT NULL,
  expert_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'USD',
  location_code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gateway TEXT NOT NULL,
  gateway_order_id TEXT,
  gateway_payment_id TEXT,
  gateway_response TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS refunds (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gateway_refund_id TEXT,
  failure_reason TEXT,
  initiated_by TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type stubGatewayClient struct {
	tag     enums.PaymentGateway
	result  *gateway.RefundResult
	err     error
	lastReq *gateway.RefundRequest
}

func (s *stubGatewayClient) Tag() enums.PaymentGateway { return s.tag }
func (s *stubGatewayClient) Charge(context.Context, gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return nil, nil
}
func (s *stubGatewayClient) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	s.lastReq = &req
	return s.result, s.err
}
func (s *stubGatewayClient) VerifyWebhookSignature([]byte, http.Header) bool { return false }
func (s *stubGatewayClient) ParseWebhookEvent([]byte) (*gateway.Event, error) {
	return nil, nil
}

type stubResolver struct {
	client gateway.Client
}

func (s *stubResolver) Resolve(enums.PaymentGateway) (gateway.Client, error) {
	return s.client, nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type refundFixture struct {
	db         *gorm.DB
	svc        *Service
	orderRepo  orders.Repository
	refundRepo Repository
	client     *stubGatewayClient
	emitter    *recordingEmitter
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()

	db := setupServiceTestDB(t)
	orderRepo := orders.NewRepository(db)
	refundRepo := NewRepository(db)
	client := &stubGatewayClient{tag: enums.GatewayStripe}
	emitter := &recordingEmitter{}

	svc, err := NewService(ServiceParams{
		OrderRepo:         orderRepo,
		RefundRepo:        refundRepo,
		Gateways:          &stubResolver{client: client},
		Outbox:            emitter,
		TransactionRunner: &gormTxRunner{db: db},
		Logger:            logger.New(logger.Options{ServiceName: "refunds-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &refundFixture{
		db:         db,
		svc:        svc,
		orderRepo:  orderRepo,
		refundRepo: refundRepo,
		client:     client,
		emitter:    emitter,
	}
}

func (f *refundFixture) createPaidOrder(t *testing.T, amountCents int64) *models.Order {
	t.Helper()
	paymentID := "pi_" + uuid.NewString()
	order := &models.Order{
		ID:               uuid.New(),
		BuyerID:          uuid.New(),
		ProgramID:        uuid.New(),
		DurationID:       uuid.New(),
		TierID:           uuid.New(),
		ExpertID:         uuid.New(),
		AmountCents:      amountCents,
		Currency:         enums.CurrencyGBP,
		LocationCode:     "GB",
		Status:           enums.OrderStatusPaid,
		Gateway:          enums.GatewayStripe,
		GatewayPaymentID: &paymentID,
	}
	_, err := f.orderRepo.Create(context.Background(), order)
	require.NoError(t, err)
	return order
}

func TestInitiateFullRefundSettlesOrder(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_1"}

	refund, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 10000,
		Reason:      "program canceled",
		InitiatedBy: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, refund.Status)

	require.NotNil(t, f.client.lastReq)
	assert.Equal(t, refund.ID, f.client.lastReq.InternalRefundID)
	assert.Equal(t, int64(10000), f.client.lastReq.AmountCents)
	assert.Equal(t, enums.CurrencyGBP, f.client.lastReq.Currency)

	updated, err := f.orderRepo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, updated.Status)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, enums.EventOrderRefunded, f.emitter.events[0].EventType)
}

func TestInitiatePartialRefundLeavesOrderPaid(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_2"}

	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 5000,
		Reason:      "partial credit",
		InitiatedBy: uuid.New(),
	})
	require.NoError(t, err)

	updated, err := f.orderRepo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
}

func TestInitiateRejectsOverRefund(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_3"}

	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 5000,
		Reason:      "partial credit",
		InitiatedBy: uuid.New(),
	})
	require.NoError(t, err)

	f.client.lastReq = nil
	_, err = f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 7500,
		Reason:      "too much",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Nil(t, f.client.lastReq)

	list, err := f.refundRepo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInitiateRejectsNonPaidOrders(t *testing.T) {
	f := newRefundFixture(t)

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusFailed,
		enums.OrderStatusRefunded,
	} {
		order := f.createPaidOrder(t, 10000)
		require.NoError(t, f.orderRepo.Update(context.Background(), order.ID, map[string]any{"status": status}))

		_, err := f.svc.Initiate(context.Background(), InitiateParams{
			OrderID:     order.ID,
			AmountCents: 1000,
			Reason:      "test",
			InitiatedBy: uuid.New(),
		})
		require.Error(t, err, status)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), status)

		list, listErr := f.refundRepo.ListByOrder(context.Background(), order.ID)
		require.NoError(t, listErr)
		assert.Empty(t, list, status)
	}
}

func TestInitiateUnknownOrder(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     uuid.New(),
		AmountCents: 1000,
		Reason:      "test",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestInitiateValidatesAmount(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     uuid.New(),
		AmountCents: 0,
		Reason:      "test",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestInitiateUnreachableGatewayLeavesRefundPending(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.err = gateway.ErrUnreachable

	refund, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 10000,
		Reason:      "program canceled",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	require.NotNil(t, refund)

	stored, err := f.refundRepo.FindByID(context.Background(), refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusPending, stored.Status)

	updated, err := f.orderRepo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Empty(t, f.emitter.events)
}

func TestInitiateGatewayRejectionMarksRefundFailed(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.result = &gateway.RefundResult{Success: false, FailureReason: "payment not settled"}

	refund, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 10000,
		Reason:      "program canceled",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	stored, err := f.refundRepo.FindByID(context.Background(), refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "payment not settled", *stored.FailureReason)

	updated, err := f.orderRepo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
}

func TestInitiateRequiresPaymentReference(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	require.NoError(t, f.orderRepo.Update(context.Background(), order.ID, map[string]any{"gateway_payment_id": nil}))

	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 1000,
		Reason:      "test",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

// staleOrderRepo serves a snapshot from before a concurrent writer
// committed. Inside a transaction the embedded repository takes over, so
// the reservation sees live rows.
type staleOrderRepo struct {
	orders.Repository
	stale *models.Order
}

func (s *staleOrderRepo) FindByID(context.Context, uuid.UUID) (*models.Order, error) {
	return s.stale, nil
}

func TestInitiateReservationRechecksOrderState(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)
	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_5"}

	snapshot := *order
	svc, err := NewService(ServiceParams{
		OrderRepo:         &staleOrderRepo{Repository: f.orderRepo, stale: &snapshot},
		RefundRepo:        f.refundRepo,
		Gateways:          &stubResolver{client: f.client},
		Outbox:            f.emitter,
		TransactionRunner: &gormTxRunner{db: f.db},
		Logger:            logger.New(logger.Options{ServiceName: "refunds-test", Output: io.Discard}),
	})
	require.NoError(t, err)

	// Order settles between the eligibility read and the reservation write.
	require.NoError(t, f.orderRepo.Update(context.Background(), order.ID,
		map[string]any{"status": enums.OrderStatusRefunded}))

	_, err = svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 1000,
		Reason:      "late request",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Nil(t, f.client.lastReq)

	list, err := f.refundRepo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInitiatePendingReservationBlocksSecondRefund(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)

	f.client.err = gateway.ErrUnreachable
	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 6000,
		Reason:      "first request",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)

	// The pending row keeps its amount reserved, so a second refund that
	// would jointly exceed the charge never reaches the gateway.
	f.client.err = nil
	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_6"}
	f.client.lastReq = nil
	_, err = f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 6000,
		Reason:      "second request",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Nil(t, f.client.lastReq)

	list, err := f.refundRepo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFailedRefundReleasesReservedAmount(t *testing.T) {
	f := newRefundFixture(t)
	order := f.createPaidOrder(t, 10000)

	f.client.result = &gateway.RefundResult{Success: false, FailureReason: "declined"}
	_, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 10000,
		Reason:      "first try",
		InitiatedBy: uuid.New(),
	})
	require.Error(t, err)

	f.client.result = &gateway.RefundResult{Success: true, GatewayRefundID: "re_4"}
	refund, err := f.svc.Initiate(context.Background(), InitiateParams{
		OrderID:     order.ID,
		AmountCents: 10000,
		Reason:      "second try",
		InitiatedBy: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, refund.Status)
}
