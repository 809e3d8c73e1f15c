package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/internal/cart"
	"github.com/kapehan/kapehan-backend/internal/catalog"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/paypal"
)

// paypalAPI is the wire surface the service needs from the PayPal wrapper.
type paypalAPI interface {
	CreateOrder(ctx context.Context, input paypal.CreateOrderInput) (*paypal.CreateOrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
}

// PayPalOrderInput carries the checkout payload for the redirect flow.
type PayPalOrderInput struct {
	UserID   *uuid.UUID
	FullName string
	Email    string
	Phone    string
	BranchID uuid.UUID
	Notes    *string
	Items    []PendingOrderItem
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// PayPalOrderResult returns PayPal's order id for the client-side approval
// redirect.
type PayPalOrderResult struct {
	OrderID string `json:"order_id"`
}

// PayPalCaptureResult is returned once the capture transaction commits.
type PayPalCaptureResult struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
}

// CreatePayPalOrder validates the payload, creates the PayPal order, and
// stashes the pending order in Redis. No database row exists yet.
func (s *service) CreatePayPalOrder(ctx context.Context, input PayPalOrderInput) (*PayPalOrderResult, error) {
	if err := s.validatePayPalInput(input); err != nil {
		return nil, err
	}

	created, err := s.paypal.CreateOrder(ctx, paypal.CreateOrderInput{
		ReferenceID: uuid.NewString(),
		Subtotal:    input.Subtotal.StringFixed(2),
		Tax:         input.Tax.StringFixed(2),
		Total:       input.Total.StringFixed(2),
	})
	if err != nil {
		return nil, err
	}

	pending := &PendingOrder{
		UserID:   input.UserID,
		FullName: strings.TrimSpace(input.FullName),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:    strings.TrimSpace(input.Phone),
		BranchID: input.BranchID,
		Notes:    input.Notes,
		Items:    input.Items,
		Subtotal: input.Subtotal,
		Tax:      input.Tax,
		Discount: input.Discount,
		Total:    input.Total,
	}
	if err := s.pending.Stash(ctx, created.OrderID, pending); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"paypal_order_id": created.OrderID})
		s.logg.Info(logCtx, "payments.paypal.order_created")
	}
	return &PayPalOrderResult{OrderID: created.OrderID}, nil
}

// CapturePayPalOrder captures the approved PayPal order and, only on a
// COMPLETED capture, writes the order, items, payment and stock decrements
// in one transaction. The pending payload is deleted after commit, which
// makes a replayed capture fail with NO_PENDING_ORDER.
func (s *service) CapturePayPalOrder(ctx context.Context, paypalOrderID string) (*PayPalCaptureResult, error) {
	paypalOrderID = strings.TrimSpace(paypalOrderID)
	if paypalOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}

	capture, err := s.paypal.CaptureOrder(ctx, paypalOrderID)
	if err != nil {
		return nil, err
	}
	if capture.Status != paypal.StatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodePaymentIncomplete,
			fmt.Sprintf("paypal capture returned status %s", capture.Status))
	}

	pending, err := s.pending.Load(ctx, paypalOrderID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        pending.UserID,
		CustomerName:  pending.FullName,
		CustomerEmail: pending.Email,
		CustomerPhone: pending.Phone,
		Notes:         pending.Notes,
		BranchID:      pending.BranchID,
		PaymentMethod: paymentMethodPtr(enums.PaymentMethodPayPal),
		PaymentStatus: enums.PaymentStatusCompleted,
		OrderStatus:   enums.OrderStatusConfirmed,
		Subtotal:      pending.Subtotal,
		Tax:           pending.Tax,
		Discount:      pending.Discount,
		Total:         pending.Total,
	}

	payment := &models.Payment{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Method:        enums.PaymentMethodPayPal,
		Status:        enums.PaymentStatusCompleted,
		TransactionID: capture.CaptureID,
		AmountPaid:    pending.Total,
		PaidAt:        s.now(),
	}

	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(order).Error; err != nil {
			return err
		}
		items := make([]models.OrderItem, 0, len(pending.Items))
		for _, line := range pending.Items {
			name, variantName, err := snapshotNames(ctx, tx, line.VariantID)
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				ID:          uuid.New(),
				OrderID:     order.ID,
				VariantID:   line.VariantID,
				ProductName: name,
				VariantName: variantName,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				TotalPrice:  line.TotalPrice,
			})
		}
		if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return err
		}
		for _, line := range pending.Items {
			if err := catalog.TryDecrement(ctx, tx, line.VariantID, line.Quantity); err != nil {
				return err
			}
		}
		if pending.UserID != nil {
			if err := cart.DeleteItemsByUserID(ctx, tx, *pending.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "finalize paypal order")
	}

	if err := s.pending.Delete(ctx, paypalOrderID); err != nil && s.logg != nil {
		// The order is committed; a leftover payload just expires.
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "payments.paypal.pending_cleanup_failed")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "payments.paypal.captured")
	}
	return &PayPalCaptureResult{OrderID: order.ID, TransactionID: capture.CaptureID}, nil
}

func (s *service) validatePayPalInput(input PayPalOrderInput) error {
	if strings.TrimSpace(input.FullName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if input.BranchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "branch id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	itemSum := decimal.Zero
	for _, line := range input.Items {
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1")
		}
		itemSum = itemSum.Add(line.TotalPrice)
	}
	if itemSum.Sub(input.Total).Abs().GreaterThan(amountTolerance) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order total %s does not match item sum %s", input.Total.StringFixed(2), itemSum.StringFixed(2)))
	}
	if s.taxRate.IsPositive() {
		expected := input.Subtotal.Mul(s.taxRate)
		if expected.Sub(input.Tax).Abs().GreaterThan(amountTolerance) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("tax %s does not match rate %s of subtotal %s", input.Tax.StringFixed(2), s.taxRate.String(), input.Subtotal.StringFixed(2)))
		}
	}
	return nil
}

func snapshotNames(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (string, string, error) {
	var variant models.ProductVariant
	err := tx.WithContext(ctx).First(&variant, "id = ?", variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
	}
	if err != nil {
		return "", "", err
	}
	var product models.Product
	if err := tx.WithContext(ctx).First(&product, "id = ?", variant.ProductID).Error; err != nil {
		return "", "", err
	}
	return product.Name, variant.Name, nil
}

func paymentMethodPtr(method enums.PaymentMethod) *enums.PaymentMethod {
	return &method
}
