package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kapehan/kapehan-backend/pkg/enums"
)

// Order is the customer order header. Contact fields are snapshots taken at
// checkout; UserID is nil for guest checkouts. Total must equal the sum of
// the item totals at creation time.
type Order struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID        *uuid.UUID           `gorm:"column:user_id;type:uuid;index"`
	CustomerName  string               `gorm:"column:customer_name;not null"`
	CustomerEmail string               `gorm:"column:customer_email;not null"`
	CustomerPhone string               `gorm:"column:customer_phone;not null"`
	Notes         *string              `gorm:"column:notes"`
	BranchID      uuid.UUID            `gorm:"column:branch_id;type:uuid;not null"`
	Branch        *Branch              `gorm:"foreignKey:BranchID"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	PaymentStatus enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	OrderStatus   enums.OrderStatus    `gorm:"column:order_status;type:text;not null;default:'pending'"`
	Subtotal      decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax           decimal.Decimal      `gorm:"column:tax;type:numeric(12,2);not null"`
	Discount      decimal.Decimal      `gorm:"column:discount;type:numeric(12,2);not null"`
	Total         decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments      []Payment            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
