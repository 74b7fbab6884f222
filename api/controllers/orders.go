package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/api/middleware"
	"github.com/mentorahq/mentora-backend/api/responses"
	"github.com/mentorahq/mentora-backend/api/validators"
	orderssvc "github.com/mentorahq/mentora-backend/internal/orders"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	"github.com/mentorahq/mentora-backend/pkg/enums"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
	"github.com/mentorahq/mentora-backend/pkg/money"
)

type orderGetter interface {
	GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, role enums.MemberRole) (*orderssvc.OrderDetail, error)
}

type refundItemResponse struct {
	ID              uuid.UUID `json:"id"`
	AmountCents     int64     `json:"amount_cents"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	GatewayRefundID *string   `json:"gateway_refund_id,omitempty"`
	FailureReason   *string   `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type orderResponse struct {
	ID            uuid.UUID            `json:"id"`
	BuyerID       uuid.UUID            `json:"buyer_id"`
	ProgramID     uuid.UUID            `json:"program_id"`
	DurationID    uuid.UUID            `json:"duration_id"`
	TierID        uuid.UUID            `json:"tier_id"`
	AmountCents   int64                `json:"amount_cents"`
	Amount        string               `json:"amount"`
	Currency      string               `json:"currency"`
	Status        string               `json:"status"`
	Gateway       string               `json:"gateway"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	RefundedCents int64                `json:"refunded_cents"`
	Refunds       []refundItemResponse `json:"refunds"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func newOrderResponse(detail *orderssvc.OrderDetail) orderResponse {
	refunds := make([]refundItemResponse, 0, len(detail.Refunds))
	for _, refund := range detail.Refunds {
		refunds = append(refunds, newRefundItemResponse(refund))
	}
	return orderResponse{
		ID:            detail.Order.ID,
		BuyerID:       detail.Order.BuyerID,
		ProgramID:     detail.Order.ProgramID,
		DurationID:    detail.Order.DurationID,
		TierID:        detail.Order.TierID,
		AmountCents:   detail.Order.AmountCents,
		Amount:        money.FromMinorUnits(detail.Order.AmountCents),
		Currency:      detail.Order.Currency.String(),
		Status:        detail.Order.Status.String(),
		Gateway:       detail.Order.Gateway.String(),
		FailureReason: detail.Order.FailureReason,
		RefundedCents: detail.RefundedCents,
		Refunds:       refunds,
		CreatedAt:     detail.Order.CreatedAt,
		UpdatedAt:     detail.Order.UpdatedAt,
	}
}

func newRefundItemResponse(refund models.Refund) refundItemResponse {
	return refundItemResponse{
		ID:              refund.ID,
		AmountCents:     refund.AmountCents,
		Amount:          money.FromMinorUnits(refund.AmountCents),
		Reason:          refund.Reason,
		Status:          refund.Status.String(),
		GatewayRefundID: refund.GatewayRefundID,
		FailureReason:   refund.FailureReason,
		CreatedAt:       refund.CreatedAt,
	}
}

// GetOrder serves one order with its refund history.
func GetOrder(svc orderGetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requester, err := requesterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role, err := enums.ParseMemberRole(middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role"))
			return
		}

		detail, err := svc.GetOrder(r.Context(), orderID, requester, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(detail))
	}
}
