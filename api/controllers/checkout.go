package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/api/middleware"
	"github.com/mentorahq/mentora-backend/api/responses"
	"github.com/mentorahq/mentora-backend/api/validators"
	checkoutsvc "github.com/mentorahq/mentora-backend/internal/checkout"
	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/logger"
	"github.com/mentorahq/mentora-backend/pkg/money"
)

type checkoutExecutor interface {
	Checkout(ctx context.Context, params checkoutsvc.Params) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	DurationID   uuid.UUID `json:"duration_id" validate:"required"`
	LocationCode string    `json:"location_code" validate:"required,min=2,max=2"`
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Gateway     string    `json:"gateway"`
	RedirectURL string    `json:"redirect_url"`
}

// Checkout creates a pending order and returns the hosted payment redirect.
func Checkout(svc checkoutExecutor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := requesterID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Params{
			BuyerID:      buyerID,
			DurationID:   payload.DurationID,
			LocationCode: payload.LocationCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:     result.Order.ID,
			Status:      result.Order.Status.String(),
			AmountCents: result.Order.AmountCents,
			Amount:      money.FromMinorUnits(result.Order.AmountCents),
			Currency:    result.Order.Currency.String(),
			Gateway:     result.Order.Gateway.String(),
			RedirectURL: result.RedirectURL,
		})
	}
}

func requesterID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return id, nil
}
