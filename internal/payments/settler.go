package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
	"github.com/kapehan/kapehan-backend/pkg/enums"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

// CardDetails is the card payload for card settlements. Values are passed
// through to the processor and never persisted.
type CardDetails struct {
	Number string
	Expiry string
	CVV    string
}

// Outcome is what a settler decides for the order.
type Outcome struct {
	PaymentStatus enums.PaymentStatus
	OrderStatus   enums.OrderStatus
	TransactionID string
	PaymentURL    *string
}

// settler settles a single payment method. Each method owns its transaction
// id format and the statuses it leaves the order in.
type settler interface {
	settle(ctx context.Context, order *models.Order, card *CardDetails) (*Outcome, error)
}

// cashSettler records the intent to pay at pickup. The order stays pending
// until staff mark it completed.
type cashSettler struct{}

func (cashSettler) settle(ctx context.Context, order *models.Order, _ *CardDetails) (*Outcome, error) {
	return &Outcome{
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		TransactionID: fmt.Sprintf("CASH-%s", uuid.NewString()),
	}, nil
}

// cardSettler simulates an immediate card charge.
type cardSettler struct{}

func (cardSettler) settle(ctx context.Context, order *models.Order, card *CardDetails) (*Outcome, error) {
	if card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details are required")
	}
	if strings.TrimSpace(card.Number) == "" || strings.TrimSpace(card.Expiry) == "" || strings.TrimSpace(card.CVV) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card number, expiry and cvv are required")
	}
	return &Outcome{
		PaymentStatus: enums.PaymentStatusCompleted,
		OrderStatus:   enums.OrderStatusConfirmed,
		TransactionID: fmt.Sprintf("CARD-%s", uuid.NewString()),
	}, nil
}

// gcashSettler hands the customer a redirect URL and leaves the order
// pending until the wallet callback lands.
type gcashSettler struct {
	redirectURL string
}

func (s gcashSettler) settle(ctx context.Context, order *models.Order, _ *CardDetails) (*Outcome, error) {
	url := s.redirectURL
	return &Outcome{
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		TransactionID: fmt.Sprintf("GCASH-%s", uuid.NewString()),
		PaymentURL:    &url,
	}, nil
}

// simulatedPayPalSettler is the legacy in-process path kept for clients that
// have not moved to the redirect flow yet.
type simulatedPayPalSettler struct{}

func (simulatedPayPalSettler) settle(ctx context.Context, order *models.Order, _ *CardDetails) (*Outcome, error) {
	return &Outcome{
		PaymentStatus: enums.PaymentStatusCompleted,
		OrderStatus:   enums.OrderStatusConfirmed,
		TransactionID: fmt.Sprintf("PAYPAL-SIM-%s", uuid.NewString()),
	}, nil
}

func settlerFor(method enums.PaymentMethod, gcashRedirectURL string) (settler, error) {
	switch method {
	case enums.PaymentMethodCash:
		return cashSettler{}, nil
	case enums.PaymentMethodCard:
		return cardSettler{}, nil
	case enums.PaymentMethodGCash:
		return gcashSettler{redirectURL: gcashRedirectURL}, nil
	case enums.PaymentMethodPayPal:
		return simulatedPayPalSettler{}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
}
