package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
	"github.com/kapehan/kapehan-backend/pkg/paypal"
)

func TestCreatePayPalOrderStashesPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := f.svc.CreatePayPalOrder(ctx, payPalInput(f, &userID))
	if err != nil {
		t.Fatalf("create paypal order: %v", err)
	}
	if result.OrderID == "" {
		t.Fatal("expected paypal order id")
	}

	// The payload is stashed in Redis; the database has no order yet.
	pending, err := f.pending.Load(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("load pending: %v", err)
	}
	if pending.Email != "juan@example.ph" || len(pending.Items) != 1 {
		t.Fatalf("unexpected pending payload %+v", pending)
	}

	var count int64
	if err := f.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("create must not write order rows, got %d", count)
	}
}

func TestCreatePayPalOrderDuplicateSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.paypal.fixedOrderID = "PAYPAL-DUP"
	userID := uuid.New()

	if _, err := f.svc.CreatePayPalOrder(context.Background(), payPalInput(f, &userID)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.svc.CreatePayPalOrder(context.Background(), payPalInput(f, &userID))
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on duplicate stash, got %v", err)
	}
}

func TestCreatePayPalOrderTaxMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := payPalInput(f, nil)
	input.Tax = decimal.NewFromInt(60) // 0.02 of 300 is 6

	_, err := f.svc.CreatePayPalOrder(context.Background(), input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCapturePayPalOrderHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedCart(t, userID)

	created, err := f.svc.CreatePayPalOrder(ctx, payPalInput(f, &userID))
	if err != nil {
		t.Fatalf("create paypal order: %v", err)
	}

	result, err := f.svc.CapturePayPalOrder(ctx, created.OrderID)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if result.TransactionID == "" {
		t.Fatal("expected capture transaction id")
	}

	var order models.Order
	if err := f.conn.Preload("Items").Preload("Payments").First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.PaymentStatus != enums.PaymentStatusCompleted || order.OrderStatus != enums.OrderStatusConfirmed {
		t.Fatalf("expected completed/confirmed, got %s/%s", order.PaymentStatus, order.OrderStatus)
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != enums.PaymentMethodPayPal {
		t.Fatalf("expected paypal method, got %v", order.PaymentMethod)
	}
	if len(order.Items) != 1 || order.Items[0].ProductName == "" {
		t.Fatalf("expected snapshotted items, got %+v", order.Items)
	}
	if len(order.Payments) != 1 || order.Payments[0].TransactionID != result.TransactionID {
		t.Fatalf("expected payment row with capture id, got %+v", order.Payments)
	}

	f.assertStock(t, f.variantA.ID, 3)
	f.assertCartEmpty(t, userID)

	// Replay: the pending payload is gone, so a second capture fails.
	_, err = f.svc.CapturePayPalOrder(ctx, created.OrderID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNoPendingOrder) {
		t.Fatalf("expected NO_PENDING_ORDER on replay, got %v", err)
	}

	var count int64
	if err := f.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("replay must not create a second order, got %d", count)
	}
}

func TestCapturePayPalOrderNotCompleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	created, err := f.svc.CreatePayPalOrder(ctx, payPalInput(f, &userID))
	if err != nil {
		t.Fatalf("create paypal order: %v", err)
	}
	f.paypal.captureStatus = "PENDING"

	_, err = f.svc.CapturePayPalOrder(ctx, created.OrderID)
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentIncomplete) {
		t.Fatalf("expected PAYMENT_INCOMPLETE, got %v", err)
	}

	// No DB writes and the payload survives for a retry.
	var count int64
	if err := f.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("incomplete capture must not write orders, got %d", count)
	}
	if _, err := f.pending.Load(ctx, created.OrderID); err != nil {
		t.Fatalf("pending payload must survive: %v", err)
	}
}

func TestCapturePayPalOrderStaleSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.CapturePayPalOrder(context.Background(), "PAYPAL-EXPIRED")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNoPendingOrder) {
		t.Fatalf("expected NO_PENDING_ORDER, got %v", err)
	}
}

func TestCapturePayPalOrderInsufficientStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	input := payPalInput(f, &userID)
	input.Items = []PendingOrderItem{{
		VariantID:  f.variantB.ID,
		Quantity:   5, // only 1 in stock
		UnitPrice:  decimal.NewFromInt(120),
		TotalPrice: decimal.NewFromInt(600),
	}}
	input.Subtotal = decimal.NewFromInt(600)
	input.Tax = decimal.NewFromInt(12)
	input.Total = decimal.NewFromInt(600)

	created, err := f.svc.CreatePayPalOrder(ctx, input)
	if err != nil {
		t.Fatalf("create paypal order: %v", err)
	}

	_, err = f.svc.CapturePayPalOrder(ctx, created.OrderID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The transaction rolled back: no order, stock intact, payload kept.
	var count int64
	if err := f.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed capture must not leave order rows, got %d", count)
	}
	f.assertStock(t, f.variantB.ID, 1)
	if _, err := f.pending.Load(ctx, created.OrderID); err != nil {
		t.Fatalf("pending payload must survive a rollback: %v", err)
	}
}

func TestPendingStoreExpiredPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	created, err := f.svc.CreatePayPalOrder(ctx, payPalInput(f, &userID))
	if err != nil {
		t.Fatalf("create paypal order: %v", err)
	}

	// Simulate TTL expiry. The abandoned checkout needs no compensation:
	// nothing was ever written to the database.
	f.redis.expire(f.redis.PendingOrderKey(created.OrderID))

	_, err = f.svc.CapturePayPalOrder(ctx, created.OrderID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNoPendingOrder) {
		t.Fatalf("expected NO_PENDING_ORDER after expiry, got %v", err)
	}
}

func payPalInput(f *fixture, userID *uuid.UUID) PayPalOrderInput {
	unit := decimal.NewFromInt(150)
	return PayPalOrderInput{
		UserID:   userID,
		FullName: "Juan Dela Cruz",
		Email:    "Juan@Example.ph",
		Phone:    "+639998887766",
		BranchID: f.branch.ID,
		Items: []PendingOrderItem{{
			VariantID:  f.variantA.ID,
			Quantity:   2,
			UnitPrice:  unit,
			TotalPrice: unit.Mul(decimal.NewFromInt(2)),
		}},
		Subtotal: decimal.NewFromInt(300),
		Tax:      decimal.NewFromInt(6),
		Discount: decimal.Zero,
		Total:    decimal.NewFromInt(300),
	}
}

func (f *fixture) seedCart(t *testing.T, userID uuid.UUID) {
	t.Helper()
	cartRow := models.Cart{ID: uuid.New(), UserID: userID}
	if err := f.conn.Create(&cartRow).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	line := models.CartItem{
		ID: uuid.New(), CartID: cartRow.ID,
		ProductID: f.product.ID, VariantID: f.variantA.ID, Quantity: 2,
	}
	if err := f.conn.Create(&line).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

// --- fakes ---

type fakePayPal struct {
	mu            sync.Mutex
	createCalls   int
	fixedOrderID  string
	captureStatus string
}

func (f *fakePayPal) CreateOrder(ctx context.Context, input paypal.CreateOrderInput) (*paypal.CreateOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	id := f.fixedOrderID
	if id == "" {
		id = fmt.Sprintf("PAYPAL-%d-%s", f.createCalls, uuid.NewString()[:8])
	}
	return &paypal.CreateOrderResult{OrderID: id, Status: "CREATED"}, nil
}

func (f *fakePayPal) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.captureStatus
	if status == "" {
		status = paypal.StatusCompleted
	}
	return &paypal.CaptureResult{
		OrderID:   orderID,
		Status:    status,
		CaptureID: "CAP-" + orderID,
	}, nil
}

type fakePendingRedis struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakePendingRedis() *fakePendingRedis {
	return &fakePendingRedis{values: map[string]string{}}
}

func (f *fakePendingRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakePendingRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakePendingRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakePendingRedis) PendingOrderKey(sessionID string) string {
	return "kph:pending_order:" + sessionID
}

func (f *fakePendingRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
}
