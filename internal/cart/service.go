package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/internal/catalog"
	"github.com/kapehan/kapehan-backend/pkg/db"
	"github.com/kapehan/kapehan-backend/pkg/db/models"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

// AddResult distinguishes a fresh line from an incremented one.
type AddResult string

const (
	AddResultCreated AddResult = "created"
	AddResultUpdated AddResult = "updated"
)

// Service exposes per-user cart operations. Stock is never checked here;
// shortfalls surface at payment settlement.
type Service interface {
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*ItemDTO, AddResult, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*ItemDTO, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	ListItems(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// AddItemInput is the validated add-to-cart payload.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	Quantity  int
}

// ItemDTO is one cart line.
type ItemDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// LineDTO is a cart line joined with live catalog data.
type LineDTO struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	VariantID     uuid.UUID `json:"variant_id"`
	ProductName   string    `json:"product_name"`
	VariantName   string    `json:"variant_name"`
	Quantity      int       `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	LineTotal     string    `json:"line_total"`
	StockQuantity int       `json:"stock_quantity"`
}

// CartDTO is the full cart view.
type CartDTO struct {
	CartID   uuid.UUID `json:"cart_id"`
	Items    []LineDTO `json:"items"`
	Subtotal string    `json:"subtotal"`
}

type variantReader interface {
	FindVariantByID(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
}

type service struct {
	repo        *Repository
	dbClient    *db.Client
	catalogRepo variantReader
}

// NewService constructs the cart service.
func NewService(repo *Repository, dbClient *db.Client, catalogRepo variantReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, dbClient: dbClient, catalogRepo: catalogRepo}, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*ItemDTO, AddResult, error) {
	if input.Quantity < 1 {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	variant, err := s.catalogRepo.FindVariantByID(ctx, input.VariantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant.ProductID != input.ProductID {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
	}
	if !variant.IsActive {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "variant is no longer available")
	}

	var (
		dto    *ItemDTO
		result AddResult
	)
	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindCartByUserID(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cart = &models.Cart{ID: uuid.New(), UserID: userID}
			if createErr := repo.CreateCart(ctx, cart); createErr != nil {
				return createErr
			}
		} else if err != nil {
			return err
		}

		existing, err := repo.FindItem(ctx, cart.ID, input.ProductID, input.VariantID)
		if err == nil {
			if incErr := repo.IncrementItemQuantity(ctx, existing.ID, input.Quantity); incErr != nil {
				return incErr
			}
			dto = &ItemDTO{
				ID:        existing.ID,
				ProductID: existing.ProductID,
				VariantID: existing.VariantID,
				Quantity:  existing.Quantity + input.Quantity,
			}
			result = AddResultUpdated
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item := &models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: input.ProductID,
			VariantID: input.VariantID,
			Quantity:  input.Quantity,
		}
		if createErr := repo.CreateItem(ctx, item); createErr != nil {
			return createErr
		}
		dto = &ItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
		result = AddResultCreated
		return nil
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, "", typed
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "add cart item")
	}
	return dto, result, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*ItemDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	item, err := s.repo.FindItemByID(ctx, cart.ID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	if err := s.repo.SetItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return &ItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Quantity:  quantity,
	}, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	affected, err := s.repo.DeleteItem(ctx, cart.ID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) ListItems(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CartDTO{Items: []LineDTO{}, Subtotal: "0.00"}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	rows, err := s.repo.ListJoinedItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}

	lines := make([]LineDTO, 0, len(rows))
	subtotal := decimal.Zero
	for _, row := range rows {
		lineTotal := row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, LineDTO{
			ID:            row.ID,
			ProductID:     row.ProductID,
			VariantID:     row.VariantID,
			ProductName:   row.ProductName,
			VariantName:   row.VariantName,
			Quantity:      row.Quantity,
			UnitPrice:     row.UnitPrice.StringFixed(2),
			LineTotal:     lineTotal.StringFixed(2),
			StockQuantity: row.StockQuantity,
		})
	}
	return &CartDTO{
		CartID:   cart.ID,
		Items:    lines,
		Subtotal: subtotal.StringFixed(2),
	}, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.repo.FindCartByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := s.repo.DeleteItemsByCartID(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

var _ variantReader = (*catalog.Repository)(nil)
