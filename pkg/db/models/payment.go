package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kapehan/kapehan-backend/pkg/enums"
)

// Payment is an append-only settlement attempt for an order. Retries add rows;
// the current payment is the one with the latest PaidAt.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method        enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	TransactionID string              `gorm:"column:transaction_id;not null"`
	AmountPaid    decimal.Decimal     `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	PaidAt        time.Time           `gorm:"column:paid_at;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}
