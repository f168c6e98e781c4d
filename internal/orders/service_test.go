package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
	"github.com/mateoreyes/ordercore-backend/pkg/outbox"
)

func TestGetOrderOwnership(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, db, owner, enums.OrderStatusPendingPayment, nil)

	if _, err := svc.GetOrder(ctx, Actor{UserID: owner, Role: enums.RoleUser}, order.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	_, err := svc.GetOrder(ctx, Actor{UserID: uuid.New(), Role: enums.RoleUser}, order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}

	if _, err := svc.GetOrder(ctx, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, order.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	_, err = svc.GetOrder(ctx, Actor{UserID: owner, Role: enums.RoleUser}, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusRejectsDirectPaid(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	product := uuid.New()
	seedInventory(t, db, product, 8, 2)
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: product, Qty: 2, UnitPriceCents: 500},
	})

	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	_, err := svc.UpdateStatus(ctx, admin, order.ID, enums.OrderStatusPaid)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for direct PAID update, got %v", err)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("status must be untouched, got %s", reloaded.Status)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 8 || item.ReservedQty != 2 {
		t.Fatalf("inventory must be untouched: %+v", item)
	}

	var payments int64
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&payments).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if payments != 0 {
		t.Fatalf("expected no payment rows, got %d", payments)
	}
}

func TestUpdateStatusCancelReleasesHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	product := uuid.New()
	seedInventory(t, db, product, 2, 3)
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: product, Qty: 3, UnitPriceCents: 100},
	})

	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	updated, err := svc.UpdateStatus(ctx, admin, order.ID, enums.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	if updated.CanceledAt == nil {
		t.Fatal("canceled_at not set")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 5 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: %+v", item)
	}

	assertOutboxEvent(t, db, order.ID, enums.EventOrderCanceled)
}

func TestUpdateStatusPaidCancelKeepsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	product := uuid.New()
	seedInventory(t, db, product, 2, 0)
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPaid, []models.OrderLineItem{
		{ProductID: product, Qty: 1, UnitPriceCents: 100},
	})

	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	if _, err := svc.UpdateStatus(ctx, admin, order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel paid order: %v", err)
	}

	// Sold stock stays sold; no counters move.
	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 2 || item.ReservedQty != 0 {
		t.Fatalf("counters changed unexpectedly: %+v", item)
	}
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, nil)
	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	_, err := svc.UpdateStatus(ctx, admin, order.ID, enums.OrderStatusShipped)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	_, err = svc.UpdateStatus(ctx, admin, order.ID, "BOGUS")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpireDueOrders(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	now := time.Now()

	product := uuid.New()
	seedInventory(t, db, product, 0, 4)

	past := now.Add(-time.Minute)
	future := now.Add(10 * time.Minute)

	expiredOrder := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: product, Qty: 4, UnitPriceCents: 100},
	})
	setExpiry(t, db, expiredOrder.ID, past)

	liveOrder := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, nil)
	setExpiry(t, db, liveOrder.ID, future)

	count, err := svc.ExpireDueOrders(ctx, now, 50)
	if err != nil {
		t.Fatalf("expire due orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired order, got %d", count)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", expiredOrder.ID).Error; err != nil {
		t.Fatalf("load expired order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reloaded.Status)
	}

	var live models.Order
	if err := db.First(&live, "id = ?", liveOrder.ID).Error; err != nil {
		t.Fatalf("load live order: %v", err)
	}
	if live.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("live order must stay pending, got %s", live.Status)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 4 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: %+v", item)
	}

	assertOutboxEvent(t, db, expiredOrder.ID, enums.EventOrderExpired)
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	publisher := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, publisher, inventory.NewLedger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderLineItem{},
		&models.Payment{},
		&models.InventoryItem{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, items []models.OrderLineItem) *models.Order {
	t.Helper()
	total := 0
	for _, item := range items {
		total += item.Qty * item.UnitPriceCents
	}
	order := &models.Order{
		UserID:     userID,
		Status:     status,
		TotalCents: total,
		Items:      items,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func setExpiry(t *testing.T, db *gorm.DB, orderID uuid.UUID, at time.Time) {
	t.Helper()
	err := db.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_expires_at", at).Error
	if err != nil {
		t.Fatalf("set expiry: %v", err)
	}
}

func seedInventory(t *testing.T, db *gorm.DB, productID uuid.UUID, available, reserved int) {
	t.Helper()
	item := models.InventoryItem{ProductID: productID, AvailableQty: available, ReservedQty: reserved}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func assertOutboxEvent(t *testing.T, db *gorm.DB, aggregateID uuid.UUID, eventType enums.OutboxEventType) {
	t.Helper()
	var count int64
	err := db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one %s event, got %d", eventType, count)
	}
}
