package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/internal/gateway"
	"github.com/mentorahq/mentora-backend/internal/orders"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
	"github.com/mentorahq/mentora-backend/pkg/metrics"
	"github.com/mentorahq/mentora-backend/pkg/outbox"
	"github.com/mentorahq/mentora-backend/pkg/outbox/payloads"
)

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeUnmatched = "unmatched"
	outcomeIgnored   = "ignored"
	outcomeConflict  = "conflict"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the webhook processing service.
type ServiceParams struct {
	OrderRepo         orders.Repository
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.PaymentMetrics
}

// Service applies verified, deduplicated gateway events to order state.
// Events that cannot be correlated to an order are acknowledged and dropped;
// returning an error would only make the gateway redeliver something that
// can never be processed.
type Service struct {
	orderRepo orders.Repository
	outbox    eventEmitter
	txRunner  txRunner
	logger    *logger.Logger
	metrics   *metrics.PaymentMetrics
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orderRepo: params.OrderRepo,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logger:    params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// ProcessEvent applies one canonical gateway event. The caller has already
// verified the signature and passed the delivery through the idempotency
// guard; this method is still safe to re-run because state changes go
// through compare-and-set transitions.
func (s *Service) ProcessEvent(ctx context.Context, gw enums.PaymentGateway, event *gateway.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event required")
	}

	ctx = s.logger.WithGateway(ctx, gw.String())
	ctx = s.logger.WithField(ctx, "event_id", event.ID)

	if event.Type == gateway.EventUnknown {
		s.logger.Info(ctx, "ignoring unhandled gateway event")
		s.countEvent(gw, outcomeIgnored)
		return nil
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("webhook event carries no usable order reference (%q)", event.OrderID))
		s.countEvent(gw, outcomeUnmatched)
		return nil
	}
	ctx = s.logger.WithOrderID(ctx, orderID.String())

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn(ctx, "webhook event references an unknown order")
			s.countEvent(gw, outcomeUnmatched)
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.Gateway != gw {
		s.logger.Warn(ctx, fmt.Sprintf("order belongs to gateway %q, event came from %q", order.Gateway, gw))
		s.countEvent(gw, outcomeUnmatched)
		return nil
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		return s.applyPayment(ctx, gw, order, event)
	case gateway.EventPaymentFailed, gateway.EventPaymentAbandoned:
		return s.applyFailure(ctx, gw, order, event)
	default:
		s.logger.Info(ctx, "ignoring unhandled gateway event")
		s.countEvent(gw, outcomeIgnored)
		return nil
	}
}

func (s *Service) applyPayment(ctx context.Context, gw enums.PaymentGateway, order *models.Order, event *gateway.Event) error {
	if order.Status == enums.OrderStatusPaid {
		s.logger.Info(ctx, "order already paid, duplicate outcome dropped")
		s.countEvent(gw, outcomeDuplicate)
		return nil
	}

	updates := map[string]any{
		"gateway_response": []byte(event.Raw),
	}
	if event.GatewayPaymentID != "" {
		updates["gateway_payment_id"] = event.GatewayPaymentID
	}

	var won bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.orderRepo.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, updates)
		if txErr != nil {
			return txErr
		}
		if !won {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				ProgramID:  order.ProgramID,
				DurationID: order.DurationID,
				TierID:     order.TierID,
				ExpertID:   order.ExpertID,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment")
	}

	if won {
		s.logger.Info(ctx, "order marked paid")
		s.countEvent(gw, outcomeProcessed)
		return nil
	}
	return s.resolveLostRace(ctx, gw, order.ID, enums.OrderStatusPaid)
}

func (s *Service) applyFailure(ctx context.Context, gw enums.PaymentGateway, order *models.Order, event *gateway.Event) error {
	if order.Status == enums.OrderStatusFailed {
		s.logger.Info(ctx, "order already failed, duplicate outcome dropped")
		s.countEvent(gw, outcomeDuplicate)
		return nil
	}

	reason := string(event.Type)
	updates := map[string]any{
		"failure_reason":   reason,
		"gateway_response": []byte(event.Raw),
	}

	var won bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.orderRepo.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusFailed, updates)
		if txErr != nil {
			return txErr
		}
		if !won {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFailedEvent{
				OrderID: order.ID,
				BuyerID: order.BuyerID,
				Reason:  reason,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment failure")
	}

	if won {
		s.logger.Info(ctx, "order marked failed")
		s.countEvent(gw, outcomeProcessed)
		return nil
	}
	return s.resolveLostRace(ctx, gw, order.ID, enums.OrderStatusFailed)
}

// resolveLostRace re-reads the order after a compare-and-set miss. Losing to
// a writer that reached the same status is a duplicate; anything else is a
// conflicting outcome for an order that already settled differently.
func (s *Service) resolveLostRace(ctx context.Context, gw enums.PaymentGateway, orderID uuid.UUID, wanted enums.OrderStatus) error {
	current, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if current.Status == wanted {
		s.logger.Info(ctx, "concurrent delivery already applied this outcome")
		s.countEvent(gw, outcomeDuplicate)
		return nil
	}
	s.countEvent(gw, outcomeConflict)
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("order is %s, cannot apply %s outcome", current.Status, wanted))
}

func (s *Service) countEvent(gw enums.PaymentGateway, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncWebhookEvent(gw.String(), outcome)
}
