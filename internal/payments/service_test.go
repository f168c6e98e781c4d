package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
	"github.com/mateoreyes/ordercore-backend/pkg/outbox"
)

func TestPayOrderSettlesPendingOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	user := uuid.New()
	product := uuid.New()
	seedInventory(t, db, product, 1, 2)
	order := seedPendingOrder(t, db, user, time.Now().Add(10*time.Minute), []models.OrderLineItem{
		{ProductID: product, Qty: 2, UnitPriceCents: 499},
	})

	settled, err := svc.PayOrder(ctx, orders.Actor{UserID: user, Role: enums.RoleUser}, order.ID)
	if err != nil {
		t.Fatalf("pay order: %v", err)
	}
	if settled.Status != enums.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", settled.Status)
	}
	if settled.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
	if settled.Payment == nil {
		t.Fatal("payment not loaded")
	}
	if settled.Payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("unexpected payment status %s", settled.Payment.Status)
	}
	if settled.Payment.AmountCents != 998 {
		t.Fatalf("unexpected amount %d", settled.Payment.AmountCents)
	}
	if !strings.HasPrefix(settled.Payment.TransactionID, "TXN_") {
		t.Fatalf("unexpected transaction id %q", settled.Payment.TransactionID)
	}

	// Reserved stock is sold, not returned.
	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 1 || item.ReservedQty != 0 {
		t.Fatalf("unexpected counters: %+v", item)
	}

	assertOutboxEvent(t, db, order.ID, enums.EventOrderPaid)
}

func TestPayOrderRejectsStranger(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	order := seedPendingOrder(t, db, uuid.New(), time.Now().Add(10*time.Minute), nil)

	_, err := svc.PayOrder(ctx, orders.Actor{UserID: uuid.New(), Role: enums.RoleUser}, order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = svc.PayOrder(ctx, orders.Actor{UserID: uuid.New(), Role: enums.RoleUser}, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPayOrderRejectsNonPendingOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	user := uuid.New()
	order := seedPendingOrder(t, db, user, time.Now().Add(10*time.Minute), nil)
	err := db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusPaid).Error
	if err != nil {
		t.Fatalf("flip status: %v", err)
	}

	_, err = svc.PayOrder(ctx, orders.Actor{UserID: user, Role: enums.RoleUser}, order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestPayOrderExpiredWindowCancelsOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	user := uuid.New()
	product := uuid.New()
	seedInventory(t, db, product, 0, 3)
	order := seedPendingOrder(t, db, user, time.Now().Add(-time.Minute), []models.OrderLineItem{
		{ProductID: product, Qty: 3, UnitPriceCents: 100},
	})

	_, err := svc.PayOrder(ctx, orders.Actor{UserID: user, Role: enums.RoleUser}, order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// The rejection still commits the cancellation.
	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reloaded.Status)
	}
	if reloaded.CanceledAt == nil {
		t.Fatal("canceled_at not set")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 3 || item.ReservedQty != 0 {
		t.Fatalf("holds not released: %+v", item)
	}

	var payments int64
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&payments).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if payments != 0 {
		t.Fatalf("expected no payment rows, got %d", payments)
	}

	assertOutboxEvent(t, db, order.ID, enums.EventOrderExpired)
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	publisher := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(orders.NewRepository(db), gormTxRunner{db: db}, publisher, inventory.NewLedger())
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
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func seedPendingOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, expiresAt time.Time, items []models.OrderLineItem) *models.Order {
	t.Helper()
	total := 0
	for _, item := range items {
		total += item.Qty * item.UnitPriceCents
	}
	order := &models.Order{
		UserID:           userID,
		Status:           enums.OrderStatusPendingPayment,
		TotalCents:       total,
		PaymentExpiresAt: &expiresAt,
		Items:            items,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
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
