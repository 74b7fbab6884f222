package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

// RefundLister exposes the refund rows attached to an order.
type RefundLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

// OrderDetail is the read model served to buyers and admins.
type OrderDetail struct {
	Order         models.Order
	Refunds       []models.Refund
	RefundedCents int64
}

// ServiceParams wires the order read service.
type ServiceParams struct {
	Repo    Repository
	Refunds RefundLister
	Logger  *logger.Logger
}

// Service serves order reads with ownership enforcement.
type Service struct {
	repo    Repository
	refunds RefundLister
	logger  *logger.Logger
}

// NewService validates dependencies and builds the service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Refunds == nil {
		return nil, errors.New("refund lister is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:    params.Repo,
		refunds: params.Refunds,
		logger:  params.Logger,
	}, nil
}

// GetOrder loads an order with its refund history. Buyers only see their own
// orders; a foreign order reads as not found so existence does not leak.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, role enums.MemberRole) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if role != enums.RoleAdmin && order.BuyerID != requesterID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	refunds, err := s.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refunds")
	}

	var refundedCents int64
	for _, refund := range refunds {
		if refund.Status == enums.RefundStatusCompleted {
			refundedCents += refund.AmountCents
		}
	}

	return &OrderDetail{
		Order:         *order,
		Refunds:       refunds,
		RefundedCents: refundedCents,
	}, nil
}
