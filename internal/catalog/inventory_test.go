package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kapehan/kapehan-backend/pkg/db/models"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

func TestTryDecrementHappyPath(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 5)

	if err := TryDecrement(ctx, db, variant.ID, 3); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 2 {
		t.Fatalf("expected stock 2, got %d", reloaded.StockQuantity)
	}
}

func TestTryDecrementShortfall(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 2)

	err := TryDecrement(ctx, db, variant.ID, 3)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	shortfall, ok := typed.Details().(StockShortfall)
	if !ok {
		t.Fatalf("expected shortfall details, got %T", typed.Details())
	}
	if shortfall.VariantID != variant.ID || shortfall.Requested != 3 || shortfall.Available != 2 {
		t.Fatalf("unexpected shortfall: %+v", shortfall)
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 2 {
		t.Fatalf("failed decrement must not change stock, got %d", reloaded.StockQuantity)
	}
}

func TestTryDecrementLastUnit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 1)

	if err := TryDecrement(ctx, db, variant.ID, 1); err != nil {
		t.Fatalf("first decrement: %v", err)
	}

	err := TryDecrement(ctx, db, variant.ID, 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock on second decrement, got %v", err)
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 0 {
		t.Fatalf("expected stock 0, got %d", reloaded.StockQuantity)
	}
}

func TestTryDecrementConcurrent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := seedVariant(t, db, 5)

	const attempts = 10
	var succeeded, short atomic.Int64
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// sqlite serializes writers, so a contended decrement can surface
			// a busy error instead of a verdict. Retry until the guard
			// answers one way or the other.
			var lastErr error
			for try := 0; try < 100; try++ {
				lastErr = TryDecrement(ctx, db, variant.ID, 1)
				switch {
				case lastErr == nil:
					succeeded.Add(1)
					return
				case pkgerrors.IsCode(lastErr, pkgerrors.CodeInsufficientStock):
					short.Add(1)
					return
				}
				time.Sleep(time.Millisecond)
			}
			errs <- lastErr
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("decrement never settled: %v", err)
	}

	if succeeded.Load() != 5 || short.Load() != attempts-5 {
		t.Fatalf("expected 5 wins and %d shortfalls, got %d/%d", attempts-5, succeeded.Load(), short.Load())
	}

	var reloaded models.ProductVariant
	if err := db.First(&reloaded, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if reloaded.StockQuantity != 0 {
		t.Fatalf("expected stock 0 after contention, got %d", reloaded.StockQuantity)
	}
}

func TestTryDecrementUnknownVariant(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	err := TryDecrement(context.Background(), db, uuid.New(), 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTryDecrementInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	variant := seedVariant(t, db, 5)
	err := TryDecrement(context.Background(), db, variant.ID, 0)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func seedVariant(t *testing.T, db *gorm.DB, stock int) *models.ProductVariant {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		Name:     "Kapeng Barako",
		Price:    decimal.NewFromInt(150),
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.ProductVariant{
		ID:            uuid.New(),
		ProductID:     product.ID,
		Name:          "12oz",
		Price:         decimal.NewFromInt(150),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return &variant
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.Branch{}); err != nil {
		t.Fatalf("migrate catalog: %v", err)
	}
	return db
}
