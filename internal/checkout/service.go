package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/config"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
)

// totalTolerance absorbs client-side float rounding on submitted amounts.
var totalTolerance = decimal.NewFromFloat(0.01)

// Service creates unpaid orders. Settlement happens in a separate
// transaction; a crash between the two leaves a retryable unpaid order.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
}

// CreateOrderInput is the validated checkout payload. Amounts arrive from the
// client and are re-checked against each other before anything is written.
type CreateOrderInput struct {
	UserID   *uuid.UUID
	FullName string
	Email    string
	Phone    string
	BranchID uuid.UUID
	Notes    *string
	Items    []OrderItemInput
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// OrderItemInput is one submitted line.
type OrderItemInput struct {
	VariantID  uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// CreateOrderResult carries the new order id back to the controller.
type CreateOrderResult struct {
	OrderID uuid.UUID `json:"order_id"`
}

type branchReader interface {
	FindBranchByID(ctx context.Context, id uuid.UUID) (*models.Branch, error)
}

type variantReader interface {
	FindVariantByID(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type catalogReader interface {
	branchReader
	variantReader
}

type service struct {
	dbClient *db.Client
	catalog  catalogReader
	taxRate  decimal.Decimal
	logg     *logger.Logger
}

// NewService constructs the checkout service.
func NewService(dbClient *db.Client, catalog catalogReader, checkoutCfg config.CheckoutConfig, logg *logger.Logger) (Service, error) {
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	taxRate, err := checkoutCfg.TaxRateDecimal()
	if err != nil {
		return nil, err
	}
	return &service{dbClient: dbClient, catalog: catalog, taxRate: taxRate, logg: logg}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	if _, err := s.catalog.FindBranchByID(ctx, input.BranchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "branch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load branch")
	}

	items, err := s.snapshotItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        input.UserID,
		CustomerName:  strings.TrimSpace(input.FullName),
		CustomerEmail: strings.ToLower(strings.TrimSpace(input.Email)),
		CustomerPhone: strings.TrimSpace(input.Phone),
		Notes:         input.Notes,
		BranchID:      input.BranchID,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		Subtotal:      input.Subtotal,
		Tax:           input.Tax,
		Discount:      input.Discount,
		Total:         input.Total,
	}

	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		return tx.WithContext(ctx).Create(&items).Error
	})
	if txErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "checkout.order_created")
	}
	return &CreateOrderResult{OrderID: order.ID}, nil
}

func (s *service) validateInput(input CreateOrderInput) error {
	if strings.TrimSpace(input.FullName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if strings.TrimSpace(input.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer phone is required")
	}
	if input.BranchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "branch id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	itemSum := decimal.Zero
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1")
		}
		expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if !withinTolerance(expected, item.TotalPrice) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item total %s does not match unit price %s x %d", item.TotalPrice.StringFixed(2), item.UnitPrice.StringFixed(2), item.Quantity))
		}
		itemSum = itemSum.Add(item.TotalPrice)
	}

	if !withinTolerance(itemSum, input.Subtotal) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("subtotal %s does not match item sum %s", input.Subtotal.StringFixed(2), itemSum.StringFixed(2)))
	}
	if !withinTolerance(itemSum, input.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order total %s does not match item sum %s", input.Total.StringFixed(2), itemSum.StringFixed(2)))
	}
	if s.taxRate.IsPositive() {
		expected := input.Subtotal.Mul(s.taxRate)
		if !withinTolerance(expected, input.Tax) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("tax %s does not match rate %s of subtotal %s", input.Tax.StringFixed(2), s.taxRate.String(), input.Subtotal.StringFixed(2)))
		}
	}
	return nil
}

func (s *service) snapshotItems(ctx context.Context, inputs []OrderItemInput) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(inputs))
	for _, line := range inputs {
		variant, err := s.catalog.FindVariantByID(ctx, line.VariantID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		product, err := s.catalog.FindProductByID(ctx, variant.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			VariantID:   variant.ID,
			ProductName: product.Name,
			VariantName: variant.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.TotalPrice,
		})
	}
	return items, nil
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(totalTolerance)
}
