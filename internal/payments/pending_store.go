package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

// pendingOrderStore is the Redis surface the pending store needs.
type pendingOrderStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	PendingOrderKey(sessionID string) string
}

// PendingOrder is the checkout payload stashed between PayPal create and
// capture. Nothing touches the database until capture succeeds.
type PendingOrder struct {
	UserID   *uuid.UUID         `json:"user_id,omitempty"`
	FullName string             `json:"full_name"`
	Email    string             `json:"email"`
	Phone    string             `json:"phone"`
	BranchID uuid.UUID          `json:"branch_id"`
	Notes    *string            `json:"notes,omitempty"`
	Items    []PendingOrderItem `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Tax      decimal.Decimal    `json:"tax"`
	Discount decimal.Decimal    `json:"discount"`
	Total    decimal.Decimal    `json:"total"`
}

// PendingOrderItem is one stashed line.
type PendingOrderItem struct {
	VariantID  uuid.UUID       `json:"variant_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// PendingStore stashes pending orders in Redis with a TTL. Writes are
// write-once per session id; an abandoned checkout simply expires.
type PendingStore struct {
	store pendingOrderStore
	ttl   time.Duration
}

// NewPendingStore builds the store. A zero ttl is rejected so abandoned
// payloads cannot accumulate forever.
func NewPendingStore(store pendingOrderStore, ttl time.Duration) (*PendingStore, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("pending order ttl must be positive")
	}
	return &PendingStore{store: store, ttl: ttl}, nil
}

// Stash writes the payload once. A second stash for the same session id is a
// conflict, not an overwrite.
func (s *PendingStore) Stash(ctx context.Context, sessionID string, order *PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pending order")
	}
	key := s.store.PendingOrderKey(sessionID)
	stored, err := s.store.SetNX(ctx, key, string(payload), s.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stash pending order")
	}
	if !stored {
		return pkgerrors.New(pkgerrors.CodeConflict, "pending order already exists for this checkout")
	}
	return nil
}

// Load returns the stashed payload, or NO_PENDING_ORDER when it is missing
// or already expired.
func (s *PendingStore) Load(ctx context.Context, sessionID string) (*PendingOrder, error) {
	key := s.store.PendingOrderKey(sessionID)
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, pkgerrors.New(pkgerrors.CodeNoPendingOrder, "no pending order for this checkout")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending order")
	}
	var order PendingOrder
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode pending order")
	}
	return &order, nil
}

// Delete removes the payload. Called only after the capture transaction
// commits.
func (s *PendingStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.store.Del(ctx, s.store.PendingOrderKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete pending order")
	}
	return nil
}
