package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentssvc "github.com/kapehan/kapehan-backend/internal/payments"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

type stubPaymentsService struct {
	processed *paymentssvc.ProcessPaymentResult
	created   *paymentssvc.PayPalOrderResult
	captured  *paymentssvc.PayPalCaptureResult
	err       error

	lastProcessInput paymentssvc.ProcessPaymentInput
}

func (s *stubPaymentsService) ProcessPayment(ctx context.Context, input paymentssvc.ProcessPaymentInput) (*paymentssvc.ProcessPaymentResult, error) {
	s.lastProcessInput = input
	return s.processed, s.err
}

func (s *stubPaymentsService) CreatePayPalOrder(ctx context.Context, input paymentssvc.PayPalOrderInput) (*paymentssvc.PayPalOrderResult, error) {
	return s.created, s.err
}

func (s *stubPaymentsService) CapturePayPalOrder(ctx context.Context, paypalOrderID string) (*paymentssvc.PayPalCaptureResult, error) {
	return s.captured, s.err
}

func TestPaymentProcessSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{processed: &paymentssvc.ProcessPaymentResult{
		PaymentID:     uuid.New(),
		TransactionID: "CASH-123",
		PaymentMethod: "cash",
	}}
	handler := PaymentProcess(svc, nil)

	body := `{"order_id": "` + uuid.NewString() + `", "payment_method": "cash", "amount": "153.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cash", string(svc.lastProcessInput.Method))
	assert.Contains(t, rec.Body.String(), "CASH-123")
}

func TestPaymentProcessForwardsCardDetails(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{processed: &paymentssvc.ProcessPaymentResult{TransactionID: "CARD-1"}}
	handler := PaymentProcess(svc, nil)

	body := `{
		"order_id": "` + uuid.NewString() + `",
		"payment_method": "card",
		"amount": "153.00",
		"card_details": {"number": "4111111111111111", "expiry": "12/27", "cvv": "123"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.lastProcessInput.Card)
	assert.Equal(t, "12/27", svc.lastProcessInput.Card.Expiry)
}

func TestPaymentProcessRejectsUnknownMethod(t *testing.T) {
	t.Parallel()

	handler := PaymentProcess(&stubPaymentsService{}, nil)

	body := `{"order_id": "` + uuid.NewString() + `", "payment_method": "crypto", "amount": "10.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayPalCaptureSurfacesNoPendingOrder(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeNoPendingOrder, "no pending order for session")}
	handler := PayPalOrderCapture(svc, nil)

	body := `{"paypal_order_id": "PAYPAL-ORDER-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/paypal/capture", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeNoPendingOrder))
}

func TestPayPalCreateReturnsCreated(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{created: &paymentssvc.PayPalOrderResult{OrderID: "PAYPAL-ORDER-9"}}
	handler := PayPalOrderCreate(svc, nil)

	body := `{
		"full_name": "Juan dela Cruz",
		"email": "juan@example.ph",
		"phone": "+639171234567",
		"branch_id": "` + uuid.NewString() + `",
		"items": [{"variant_id": "` + uuid.NewString() + `", "quantity": 1, "unit_price": "150.00", "total_price": "150.00"}],
		"subtotal": "150.00",
		"tax": "3.00",
		"discount": "0.00",
		"total": "153.00"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/paypal/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "PAYPAL-ORDER-9")
}
