package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
)

// Repository wires together cart persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindCartByUserID loads the user's cart without items.
func (r *Repository) FindCartByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).First(&cart, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart inserts a new cart row.
func (r *Repository) CreateCart(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

// FindItem loads a cart item by cart and line identity.
func (r *Repository) FindItem(ctx context.Context, cartID, productID, variantID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		First(&item, "cart_id = ? AND product_id = ? AND variant_id = ?", cartID, productID, variantID).
		Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByID loads a cart item scoped to the given cart.
func (r *Repository) FindItemByID(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		First(&item, "id = ? AND cart_id = ?", itemID, cartID).
		Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts a new cart line.
func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// IncrementItemQuantity adds delta to an existing line.
func (r *Repository) IncrementItemQuantity(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", delta)).
		Error
}

// SetItemQuantity overwrites the line quantity.
func (r *Repository) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		UpdateColumn("quantity", quantity).
		Error
}

// DeleteItem removes a line scoped to the cart.
func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}

// DeleteItemsByCartID removes every line in the cart.
func (r *Repository) DeleteItemsByCartID(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).
		Error
}

// DeleteItemsByUserID clears the cart owned by the user, if any. Used by
// payment settlement inside its own transaction.
func DeleteItemsByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	return tx.WithContext(ctx).
		Where("cart_id IN (?)", tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)).
		Delete(&models.CartItem{}).
		Error
}

// joinedItem is the row shape for ListJoinedItems.
type joinedItem struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	VariantID     uuid.UUID
	Quantity      int
	ProductName   string
	VariantName   string
	UnitPrice     decimal.Decimal
	StockQuantity int
}

// ListJoinedItems returns cart lines joined with live product/variant data.
func (r *Repository) ListJoinedItems(ctx context.Context, cartID uuid.UUID) ([]joinedItem, error) {
	var rows []joinedItem
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select(`cart_items.id,
			cart_items.product_id,
			cart_items.variant_id,
			cart_items.quantity,
			products.name AS product_name,
			product_variants.name AS variant_name,
			product_variants.price AS unit_price,
			product_variants.stock_quantity`).
		Joins("JOIN products ON products.id = cart_items.product_id").
		Joins("JOIN product_variants ON product_variants.id = cart_items.variant_id").
		Where("cart_items.cart_id = ?", cartID).
		Order("cart_items.created_at ASC").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
