package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kapehan/kapehan-backend/api/responses"
	"github.com/kapehan/kapehan-backend/api/validators"
	paymentssvc "github.com/kapehan/kapehan-backend/internal/payments"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
)

type processPaymentRequest struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	PaymentMethod string              `json:"payment_method" validate:"required"`
	Amount        decimal.Decimal     `json:"amount"`
	CardDetails   *cardDetailsPayload `json:"card_details"`
}

type cardDetailsPayload struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

type paypalOrderRequest struct {
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

type paypalCaptureRequest struct {
	PayPalOrderID string `json:"paypal_order_id" validate:"required"`
}

func (p processPaymentRequest) toInput() (paymentssvc.ProcessPaymentInput, error) {
	method, err := enums.ParsePaymentMethod(p.PaymentMethod)
	if err != nil {
		return paymentssvc.ProcessPaymentInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	input := paymentssvc.ProcessPaymentInput{
		OrderID: p.OrderID,
		Method:  method,
		Amount:  p.Amount,
	}
	if p.CardDetails != nil {
		input.Card = &paymentssvc.CardDetails{
			Number: p.CardDetails.Number,
			Expiry: p.CardDetails.Expiry,
			CVV:    p.CardDetails.CVV,
		}
	}
	return input, nil
}

func (p paypalOrderRequest) toInput(userID *uuid.UUID) paymentssvc.PayPalOrderInput {
	items := make([]paymentssvc.PendingOrderItem, len(p.Items))
	for i, item := range p.Items {
		items[i] = paymentssvc.PendingOrderItem{
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		}
	}
	return paymentssvc.PayPalOrderInput{
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

// PaymentProcess settles an existing order with cash, card, or gcash.
func PaymentProcess(svc paymentssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload processPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// PayPalOrderCreate opens a PayPal checkout session. Nothing is written to
// the database until the capture completes.
func PayPalOrderCreate(svc paymentssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := sessionUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paypalOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePayPalOrder(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PayPalOrderCapture captures an approved PayPal order and materializes the
// stashed pending order in one transaction.
func PayPalOrderCapture(svc paymentssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload paypalCaptureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CapturePayPalOrder(r.Context(), payload.PayPalOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
