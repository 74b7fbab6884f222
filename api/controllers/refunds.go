package controllers

import (
	"context"
	"net/http"

	"github.com/mentorahq/mentora-backend/api/responses"
	"github.com/mentorahq/mentora-backend/api/validators"
	refundssvc "github.com/mentorahq/mentora-backend/internal/refunds"
	"github.com/mentorahq/mentora-backend/pkg/db/models"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
)

type refundInitiator interface {
	Initiate(ctx context.Context, params refundssvc.InitiateParams) (*models.Refund, error)
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,min=3,max=500"`
}

// AdminRefundOrder initiates a refund against a paid order.
func AdminRefundOrder(svc refundInitiator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		initiatedBy, err := requesterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.Initiate(r.Context(), refundssvc.InitiateParams{
			OrderID:     orderID,
			AmountCents: payload.AmountCents,
			Reason:      payload.Reason,
			InitiatedBy: initiatedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newRefundItemResponse(*refund))
	}
}
