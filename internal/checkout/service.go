package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/internal/catalog"
	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/internal/orders"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

type gatewayResolver interface {
	Resolve(tag enums.PaymentGateway) (gateway.Client, error)
}

// Params describes one checkout request for a program duration.
type Params struct {
	BuyerID      uuid.UUID
	DurationID   uuid.UUID
	LocationCode string
}

// Result carries the created order and the hosted payment redirect.
type Result struct {
	Order       *models.Order
	RedirectURL string
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Catalog   catalog.Repository
	OrderRepo orders.Repository
	Gateways  gatewayResolver
	Logger    *logger.Logger
}

// Service opens paid checkouts. The order is persisted pending before the
// gateway call; a gateway failure leaves it pending with no gateway order
// id, and the buyer can retry with a fresh checkout.
type Service struct {
	catalog   catalog.Repository
	orderRepo orders.Repository
	gateways  gatewayResolver
	logger    *logger.Logger
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repo required")
	}
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.Gateways == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway resolver required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		catalog:   params.Catalog,
		orderRepo: params.OrderRepo,
		gateways:  params.Gateways,
		logger:    params.Logger,
	}, nil
}

// Checkout prices the duration, creates a pending order routed to the
// buyer's gateway, and opens the hosted payment flow.
func (s *Service) Checkout(ctx context.Context, params Params) (*Result, error) {
	duration, err := s.catalog.FindActiveDuration(ctx, params.DurationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "program duration not available")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load program duration")
	}

	amountCents := duration.PriceCents - duration.DiscountCents
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}

	tag := gateway.ForLocation(params.LocationCode)
	client, err := s.gateways.Resolve(tag)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       params.BuyerID,
		ProgramID:     duration.ProgramID,
		DurationID:    duration.ID,
		TierID:        duration.TierID,
		ExpertID:      duration.ExpertID,
		AmountCents:   amountCents,
		DiscountCents: duration.DiscountCents,
		Currency:      duration.Currency,
		LocationCode:  params.LocationCode,
		Status:        enums.OrderStatusPending,
		Gateway:       tag,
	}
	if _, err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	ctx = s.logger.WithGateway(ctx, tag.String())

	charge, err := client.Charge(ctx, gateway.ChargeRequest{
		OrderID:     order.ID,
		Title:       duration.Title,
		AmountCents: amountCents,
		Currency:    duration.Currency,
	})
	if err != nil {
		s.logger.Error(ctx, "gateway charge failed, order left pending", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open payment flow")
	}

	updates := map[string]any{
		"gateway_order_id": charge.GatewayOrderID,
	}
	if len(charge.Raw) > 0 {
		updates["gateway_response"] = []byte(charge.Raw)
	}
	if err := s.orderRepo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway order id")
	}
	order.GatewayOrderID = &charge.GatewayOrderID
	order.GatewayResponse = charge.Raw

	s.logger.Info(ctx, "checkout opened")
	return &Result{
		Order:       order,
		RedirectURL: charge.RedirectURL,
	}, nil
}
