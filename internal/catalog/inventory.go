package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

// StockShortfall describes a decrement that could not be satisfied.
type StockShortfall struct {
	VariantID uuid.UUID `json:"variant_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// TryDecrement atomically subtracts qty from the variant's stock. The guard
// in the WHERE clause is the only stock-invariant enforcement: zero rows
// affected means the variant is missing or short, and the caller's
// transaction must roll back.
func TryDecrement(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("decrement quantity must be positive, got %d", qty))
	}

	result := tx.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock_quantity >= ?", variantID, qty).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var variant models.ProductVariant
	err := tx.WithContext(ctx).
		Select("id", "stock_quantity").
		First(&variant, "id = ?", variantID).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
	}
	if err != nil {
		return err
	}

	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for variant").
		WithDetails(StockShortfall{
			VariantID: variantID,
			Requested: qty,
			Available: variant.StockQuantity,
		})
}
