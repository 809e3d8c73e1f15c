package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

// Service exposes the storefront catalog read paths.
type Service interface {
	ListProducts(ctx context.Context) ([]ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListBranches(ctx context.Context) ([]BranchDTO, error)
}

// ProductDTO is the storefront product shape.
type ProductDTO struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Price       string       `json:"price"`
	Tags        []string     `json:"tags"`
	ImageURL    *string      `json:"image_url,omitempty"`
	Variants    []VariantDTO `json:"variants"`
}

// VariantDTO is a purchasable variant with live stock.
type VariantDTO struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Price         string    `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
}

// BranchDTO is a pickup location.
type BranchDTO struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Street  string    `json:"street"`
	City    string    `json:"city"`
	Zipcode string    `json:"zipcode"`
}

type service struct {
	repo *Repository
}

// NewService constructs the catalog service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListProducts(ctx context.Context) ([]ProductDTO, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	dtos := make([]ProductDTO, 0, len(products))
	for i := range products {
		dtos = append(dtos, toProductDTO(&products[i]))
	}
	return dtos, nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindProductByID(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	dto := toProductDTO(product)
	return &dto, nil
}

func (s *service) ListBranches(ctx context.Context) ([]BranchDTO, error) {
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list branches")
	}
	dtos := make([]BranchDTO, 0, len(branches))
	for _, branch := range branches {
		dtos = append(dtos, BranchDTO{
			ID:      branch.ID,
			Name:    branch.Name,
			Street:  branch.Street,
			City:    branch.City,
			Zipcode: branch.Zipcode,
		})
	}
	return dtos, nil
}

func toProductDTO(product *models.Product) ProductDTO {
	variants := make([]VariantDTO, 0, len(product.Variants))
	for _, variant := range product.Variants {
		variants = append(variants, VariantDTO{
			ID:            variant.ID,
			Name:          variant.Name,
			Price:         formatAmount(variant.Price),
			StockQuantity: variant.StockQuantity,
		})
	}
	tags := []string(product.Tags)
	if tags == nil {
		tags = []string{}
	}
	return ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       formatAmount(product.Price),
		Tags:        tags,
		ImageURL:    product.ImageURL,
		Variants:    variants,
	}
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
