package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/internal/cart"
	"github.com/kapehan/kapehan-backend/internal/catalog"
	"github.com/kapehan/kapehan-backend/pkg/config"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
)

var amountTolerance = decimal.NewFromFloat(0.01)

// Service settles payments for existing orders and runs the PayPal redirect
// flow. Every settlement is one transaction: the payment row, the order
// update, the stock decrements and the cart clear all commit or roll back
// together.
type Service interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*ProcessPaymentResult, error)
	CreatePayPalOrder(ctx context.Context, input PayPalOrderInput) (*PayPalOrderResult, error)
	CapturePayPalOrder(ctx context.Context, paypalOrderID string) (*PayPalCaptureResult, error)
}

// ProcessPaymentInput is the validated settlement payload.
type ProcessPaymentInput struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
	Amount  decimal.Decimal
	Card    *CardDetails
}

// ProcessPaymentResult is returned to the storefront after settlement.
type ProcessPaymentResult struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	PaymentMethod string    `json:"payment_method"`
	PaymentURL    *string   `json:"payment_url,omitempty"`
}

type service struct {
	dbClient *db.Client
	checkout config.CheckoutConfig
	taxRate  decimal.Decimal
	pending  *PendingStore
	paypal   paypalAPI
	logg     *logger.Logger
	now      func() time.Time
}

// NewService constructs the payments service.
func NewService(dbClient *db.Client, checkoutCfg config.CheckoutConfig, pending *PendingStore, paypalClient paypalAPI, logg *logger.Logger) (Service, error) {
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending order store required")
	}
	if paypalClient == nil {
		return nil, fmt.Errorf("paypal client required")
	}
	taxRate, err := checkoutCfg.TaxRateDecimal()
	if err != nil {
		return nil, err
	}
	return &service{
		dbClient: dbClient,
		checkout: checkoutCfg,
		taxRate:  taxRate,
		pending:  pending,
		paypal:   paypalClient,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*ProcessPaymentResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}

	var order models.Order
	err := s.dbClient.DB().WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", input.OrderID).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if order.OrderStatus.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.OrderStatus))
	}

	// A failed settlement rolls back its payment row, so any surviving
	// non-failed row means the order was already settled once. Rejecting here
	// keeps stock decremented exactly once per paid line item.
	var settled int64
	err = s.dbClient.DB().WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status <> ?", order.ID, enums.PaymentStatusFailed).
		Count(&settled).
		Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
	}
	if settled > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a recorded settlement")
	}

	if input.Amount.Sub(order.Total).Abs().GreaterThan(amountTolerance) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount %s does not match order total %s", input.Amount.StringFixed(2), order.Total.StringFixed(2)))
	}

	method, err := settlerFor(input.Method, s.checkout.GCashRedirectURL)
	if err != nil {
		return nil, err
	}
	outcome, err := method.settle(ctx, &order, input.Card)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Method:        input.Method,
		Status:        outcome.PaymentStatus,
		TransactionID: outcome.TransactionID,
		AmountPaid:    input.Amount,
		PaidAt:        s.now(),
	}

	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"payment_method": input.Method,
			"payment_status": outcome.PaymentStatus,
			"order_status":   outcome.OrderStatus,
		}
		if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := catalog.TryDecrement(ctx, tx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		// Cart clear is last so a failed decrement leaves the cart intact.
		if order.UserID != nil {
			if err := cart.DeleteItemsByUserID(ctx, tx, *order.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "settle payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_method": input.Method.String(),
			"payment_status": outcome.PaymentStatus.String(),
		})
		s.logg.Info(logCtx, "payments.settled")
	}

	return &ProcessPaymentResult{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		PaymentMethod: input.Method.String(),
		PaymentURL:    outcome.PaymentURL,
	}, nil
}
