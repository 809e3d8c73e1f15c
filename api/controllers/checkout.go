package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kapehan/kapehan-backend/api/middleware"
	"github.com/kapehan/kapehan-backend/api/responses"
	"github.com/kapehan/kapehan-backend/api/validators"
	checkoutsvc "github.com/kapehan/kapehan-backend/internal/checkout"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
)

type createOrderRequest struct {
	FullName string             `json:"full_name" validate:"required"`
	Email    string             `json:"email" validate:"required,email"`
	Phone    string             `json:"phone" validate:"required"`
	BranchID uuid.UUID          `json:"branch_id" validate:"required"`
	Notes    *string            `json:"notes"`
	Items    []orderItemPayload `json:"items" validate:"required,dive"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Tax      decimal.Decimal    `json:"tax"`
	Discount decimal.Decimal    `json:"discount"`
	Total    decimal.Decimal    `json:"total"`
}

type orderItemPayload struct {
	VariantID  uuid.UUID       `json:"variant_id" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,min=1"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// sessionUserID reads the optional authenticated user. Guests check out with
// contact details only.
func sessionUserID(r *http.Request) (*uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil, nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return &userID, nil
}

func (p createOrderRequest) toInput(userID *uuid.UUID) checkoutsvc.CreateOrderInput {
	items := make([]checkoutsvc.OrderItemInput, len(p.Items))
	for i, item := range p.Items {
		items[i] = checkoutsvc.OrderItemInput{
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		}
	}
	return checkoutsvc.CreateOrderInput{
		UserID:   userID,
		FullName: p.FullName,
		Email:    p.Email,
		Phone:    p.Phone,
		BranchID: p.BranchID,
		Notes:    p.Notes,
		Items:    items,
		Subtotal: p.Subtotal,
		Tax:      p.Tax,
		Discount: p.Discount,
		Total:    p.Total,
	}
}

// OrderCreate creates an unpaid pending order. Payment is settled by a
// separate call against the returned order id.
func OrderCreate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := sessionUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
