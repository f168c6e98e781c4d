package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
)

func TestReserveMovesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedInventory(t, db, product, 5, 0)

	led := NewLedger()
	if err := led.Reserve(ctx, db, product, 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	item := loadInventory(t, db, product)
	if item.AvailableQty != 2 || item.ReservedQty != 3 {
		t.Fatalf("unexpected inventory state: %+v", item)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedInventory(t, db, product, 2, 0)

	led := NewLedger()
	err := led.Reserve(ctx, db, product, 3)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	if details["available"] != 2 {
		t.Fatalf("expected available detail, got %v", details["available"])
	}

	item := loadInventory(t, db, product)
	if item.AvailableQty != 2 || item.ReservedQty != 0 {
		t.Fatalf("failed reserve must not change counters: %+v", item)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	led := NewLedger()

	err := led.Reserve(context.Background(), db, uuid.New(), 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserveRejectsNonPositiveQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	led := NewLedger()

	for _, qty := range []int{0, -1} {
		err := led.Reserve(context.Background(), db, uuid.New(), qty)
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("qty %d: expected validation error, got %v", qty, err)
		}
	}
}

func TestReleaseReturnsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedInventory(t, db, product, 2, 3)

	led := NewLedger()
	if err := led.Release(ctx, db, product, 3); err != nil {
		t.Fatalf("release: %v", err)
	}

	item := loadInventory(t, db, product)
	if item.AvailableQty != 5 || item.ReservedQty != 0 {
		t.Fatalf("unexpected inventory state: %+v", item)
	}
}

func TestReleaseBelowReserved(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := uuid.New()
	seedInventory(t, db, product, 2, 1)

	led := NewLedger()
	err := led.Release(context.Background(), db, product, 2)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestConfirmSaleBurnsReserved(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedInventory(t, db, product, 1, 4)

	led := NewLedger()
	if err := led.ConfirmSale(ctx, db, product, 4); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}

	item := loadInventory(t, db, product)
	if item.AvailableQty != 1 || item.ReservedQty != 0 {
		t.Fatalf("unexpected inventory state: %+v", item)
	}
}

func TestConfirmSaleBelowReserved(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := uuid.New()
	seedInventory(t, db, product, 0, 1)

	led := NewLedger()
	err := led.ConfirmSale(context.Background(), db, product, 2)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryItem{}); err != nil {
		t.Fatalf("migrate inventory: %v", err)
	}
	return db
}

func seedInventory(t *testing.T, db *gorm.DB, productID uuid.UUID, available, reserved int) {
	t.Helper()
	item := models.InventoryItem{ProductID: productID, AvailableQty: available, ReservedQty: reserved}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func loadInventory(t *testing.T, db *gorm.DB, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return item
}
