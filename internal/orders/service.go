package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/logger"
	"github.com/kapehan/kapehan-backend/pkg/pagination"
)

// Service exposes order read paths and the admin status workflow.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	GetOrderPayment(ctx context.Context, orderID uuid.UUID) (*PaymentDTO, error)
	ListOrders(ctx context.Context, input ListOrdersInput) (*OrderListResult, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*OrderDTO, error)
}

// ListOrdersInput carries admin listing filters and the page cursor.
type ListOrdersInput struct {
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	BranchID      *uuid.UUID
	Limit         int
	Cursor        string
}

// OrderDTO is the order detail shape.
type OrderDTO struct {
	ID            uuid.UUID      `json:"id"`
	CustomerName  string         `json:"customer_name"`
	CustomerEmail string         `json:"customer_email"`
	CustomerPhone string         `json:"customer_phone"`
	Notes         *string        `json:"notes,omitempty"`
	Branch        *BranchDTO     `json:"branch,omitempty"`
	PaymentMethod *string        `json:"payment_method,omitempty"`
	PaymentStatus string         `json:"payment_status"`
	OrderStatus   string         `json:"order_status"`
	Subtotal      string         `json:"subtotal"`
	Tax           string         `json:"tax"`
	Discount      string         `json:"discount"`
	Total         string         `json:"total"`
	Items         []OrderItemDTO `json:"items"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BranchDTO is the pickup location on an order.
type BranchDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	City string    `json:"city"`
}

// OrderItemDTO is one immutable line snapshot.
type OrderItemDTO struct {
	ID          uuid.UUID `json:"id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	VariantName string    `json:"variant_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	TotalPrice  string    `json:"total_price"`
}

// PaymentDTO is the latest settlement attempt.
type PaymentDTO struct {
	ID            uuid.UUID `json:"id"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	AmountPaid    string    `json:"amount_paid"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderListResult is one admin listing page.
type OrderListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	logg     *logger.Logger
}

// NewService constructs the orders service.
func NewService(repo *Repository, dbClient *db.Client, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient, logg: logg}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (s *service) GetOrderPayment(ctx context.Context, orderID uuid.UUID) (*PaymentDTO, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	payment, err := s.repo.LatestPayment(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no payment yet")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &PaymentDTO{
		ID:            payment.ID,
		Method:        payment.Method.String(),
		Status:        payment.Status.String(),
		TransactionID: payment.TransactionID,
		AmountPaid:    payment.AmountPaid.StringFixed(2),
		PaidAt:        payment.PaidAt,
	}, nil
}

func (s *service) ListOrders(ctx context.Context, input ListOrdersInput) (*OrderListResult, error) {
	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.List(ctx, ListFilter{
		OrderStatus:   input.OrderStatus,
		PaymentStatus: input.PaymentStatus,
		BranchID:      input.BranchID,
	}, pagination.Params{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		encoded := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		nextCursor = &encoded
	}

	dtos := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, toOrderDTO(&rows[i]))
	}
	return &OrderListResult{Orders: dtos, NextCursor: nextCursor}, nil
}

// UpdateStatus applies an admin transition. Terminal orders reject every
// transition, and completing a cash order also completes its payment since
// the money changes hands at pickup. Cancellation does not restore stock.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*OrderDTO, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", next))
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.OrderStatus.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and cannot change status", order.OrderStatus))
	}
	if order.OrderStatus == next {
		dto := toOrderDTO(order)
		return &dto, nil
	}

	updates := map[string]any{"order_status": next}
	if next == enums.OrderStatusCompleted &&
		order.PaymentMethod != nil && *order.PaymentMethod == enums.PaymentMethodCash {
		updates["payment_status"] = enums.PaymentStatusCompleted
	}

	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).UpdateStatus(ctx, orderID, updates)
	})
	if txErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "update order status")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"from": order.OrderStatus.String(),
			"to":   next.String(),
		})
		s.logg.Info(logCtx, "orders.status_updated")
	}

	updated, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	dto := toOrderDTO(updated)
	return &dto, nil
}

func toOrderDTO(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ID:          item.ID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			TotalPrice:  item.TotalPrice.StringFixed(2),
		})
	}

	var branch *BranchDTO
	if order.Branch != nil {
		branch = &BranchDTO{ID: order.Branch.ID, Name: order.Branch.Name, City: order.Branch.City}
	}
	var method *string
	if order.PaymentMethod != nil {
		value := order.PaymentMethod.String()
		method = &value
	}

	return OrderDTO{
		ID:            order.ID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Notes:         order.Notes,
		Branch:        branch,
		PaymentMethod: method,
		PaymentStatus: order.PaymentStatus.String(),
		OrderStatus:   order.OrderStatus.String(),
		Subtotal:      order.Subtotal.StringFixed(2),
		Tax:           order.Tax.StringFixed(2),
		Discount:      order.Discount.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		Items:         items,
		CreatedAt:     order.CreatedAt,
	}
}
