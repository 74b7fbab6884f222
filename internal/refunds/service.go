package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

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
	outcomeCompleted   = "completed"
	outcomeRejected    = "rejected"
	outcomeUnreachable = "unreachable"
)

type gatewayResolver interface {
	Resolve(tag enums.PaymentGateway) (gateway.Client, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InitiateParams describes one admin-initiated refund request.
type InitiateParams struct {
	OrderID     uuid.UUID
	AmountCents int64
	Reason      string
	InitiatedBy uuid.UUID
}

// ServiceParams wires the refund orchestration service.
type ServiceParams struct {
	OrderRepo         orders.Repository
	RefundRepo        Repository
	Gateways          gatewayResolver
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.PaymentMetrics
}

// Service orchestrates refunds against the order's gateway. A refund row is
// persisted in pending state before the gateway call, so every attempt
// leaves a trace even if the process dies mid-call.
type Service struct {
	orderRepo  orders.Repository
	refundRepo Repository
	gateways   gatewayResolver
	outbox     eventEmitter
	txRunner   txRunner
	logger     *logger.Logger
	metrics    *metrics.PaymentMetrics
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.RefundRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund repo required")
	}
	if params.Gateways == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway resolver required")
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
		orderRepo:  params.OrderRepo,
		refundRepo: params.RefundRepo,
		gateways:   params.Gateways,
		outbox:     params.Outbox,
		txRunner:   params.TransactionRunner,
		logger:     params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// Initiate validates, persists, and executes one refund. Validation failures
// reject the request before any row is written. A gateway rejection marks
// the row failed; an unreachable gateway leaves it pending for manual
// reconciliation and surfaces a retryable error to the caller.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*models.Refund, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if params.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}

	ctx = s.logger.WithOrderID(ctx, params.OrderID.String())

	order, err := s.orderRepo.FindByID(ctx, params.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, only paid orders can be refunded", order.Status))
	}
	if order.GatewayPaymentID == nil || *order.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no settled payment reference")
	}

	client, err := s.gateways.Resolve(order.Gateway)
	if err != nil {
		return nil, err
	}

	// Reserve the amount inside a transaction so two concurrent refunds
	// cannot both fit into the same remaining balance.
	refund := &models.Refund{
		ID:          uuid.New(),
		OrderID:     order.ID,
		AmountCents: params.AmountCents,
		Reason:      params.Reason,
		Status:      enums.RefundStatusPending,
		InitiatedBy: params.InitiatedBy,
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		// The same-status write takes the row lock on the order, so
		// concurrent reservations serialize here and each sees the rows
		// committed by the reservations before it. It also re-verifies the
		// order did not settle between the eligibility read and this point.
		stillPaid, txErr := s.orderRepo.WithTx(tx).TransitionStatus(ctx, order.ID,
			enums.OrderStatusPaid, enums.OrderStatusPaid, nil)
		if txErr != nil {
			return txErr
		}
		if !stillPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer refundable")
		}

		repo := s.refundRepo.WithTx(tx)
		reserved, txErr := repo.SumReservedByOrder(ctx, order.ID)
		if txErr != nil {
			return txErr
		}
		if reserved+params.AmountCents > order.AmountCents {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("refund of %d cents exceeds remaining refundable balance of %d cents",
					params.AmountCents, order.AmountCents-reserved))
		}
		_, txErr = repo.Create(ctx, refund)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithField(ctx, "refund_id", refund.ID.String())

	result, err := client.Refund(ctx, gateway.RefundRequest{
		GatewayOrderID:   derefString(order.GatewayOrderID),
		GatewayPaymentID: *order.GatewayPaymentID,
		InternalRefundID: refund.ID,
		AmountCents:      params.AmountCents,
		Currency:         order.Currency,
		Reason:           params.Reason,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnreachable) {
			s.logger.Warn(ctx, "gateway unreachable, refund left pending for reconciliation")
			s.countRefund(outcomeUnreachable)
			return refund, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway unreachable, refund pending")
		}
		return refund, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute refund")
	}

	if !result.Success {
		failure := map[string]any{"failure_reason": result.FailureReason}
		if result.GatewayRefundID != "" {
			failure["gateway_refund_id"] = result.GatewayRefundID
		}
		if updateErr := s.refundRepo.UpdateStatus(ctx, refund.ID, enums.RefundStatusFailed, failure); updateErr != nil {
			return refund, pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "record refund rejection")
		}
		s.logger.Warn(ctx, fmt.Sprintf("gateway rejected refund: %s", result.FailureReason))
		s.countRefund(outcomeRejected)
		refund.Status = enums.RefundStatusFailed
		return refund, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("gateway rejected refund: %s", result.FailureReason))
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.refundRepo.WithTx(tx)
		if txErr := repo.UpdateStatus(ctx, refund.ID, enums.RefundStatusCompleted, map[string]any{
			"gateway_refund_id": result.GatewayRefundID,
		}); txErr != nil {
			return txErr
		}

		if txErr := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         &outbox.ActorRef{UserID: params.InitiatedBy, Role: enums.RoleAdmin.String()},
			Data: payloads.OrderRefundedEvent{
				OrderID:     order.ID,
				RefundID:    refund.ID,
				BuyerID:     order.BuyerID,
				AmountCents: params.AmountCents,
				RefundedAt:  time.Now().UTC(),
			},
		}); txErr != nil {
			return txErr
		}

		return s.settleOrderIfFullyRefunded(ctx, tx, order)
	})
	if err != nil {
		return refund, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize refund")
	}

	s.logger.Info(ctx, "refund completed")
	s.countRefund(outcomeCompleted)
	refund.Status = enums.RefundStatusCompleted
	if result.GatewayRefundID != "" {
		refund.GatewayRefundID = &result.GatewayRefundID
	}
	return refund, nil
}

// settleOrderIfFullyRefunded moves the order to refunded once completed
// refunds cover the full amount. Partial refunds leave the order paid.
func (s *Service) settleOrderIfFullyRefunded(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	refunds, err := s.refundRepo.WithTx(tx).ListByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	var completed int64
	for _, r := range refunds {
		if r.Status == enums.RefundStatusCompleted {
			completed += r.AmountCents
		}
	}
	if completed < order.AmountCents {
		return nil
	}

	_, err = s.orderRepo.WithTx(tx).TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusRefunded, nil)
	return err
}

func (s *Service) countRefund(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRefund(outcome)
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
