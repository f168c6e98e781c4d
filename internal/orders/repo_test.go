package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
)

func TestTransitionStatusGuardsCurrentState(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 1, UnitPriceCents: 500},
	})

	now := time.Now().UTC()
	moved, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid, map[string]any{"paid_at": now})
	require.NoError(t, err)
	assert.True(t, moved)

	// A second attempt from the same source state must lose the guard.
	moved, err = repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)
}

func TestFindPendingExpiredBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 2, UnitPriceCents: 300},
	})
	setExpiry(t, db, overdue.ID, now.Add(-time.Minute))

	live := seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 1, UnitPriceCents: 900},
	})
	setExpiry(t, db, live.ID, now.Add(10*time.Minute))

	settled := seedOrder(t, db, uuid.New(), enums.OrderStatusPaid, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 1, UnitPriceCents: 100},
	})
	setExpiry(t, db, settled.ID, now.Add(-time.Hour))

	due, err := repo.FindPendingExpiredBefore(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, overdue.ID, due[0].ID)
	assert.Len(t, due[0].Items, 1)
}

func TestFindByIDPreloadsItemsAndPayment(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPaid, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 3, UnitPriceCents: 250},
	})
	_, err := repo.CreatePayment(ctx, &models.Payment{
		OrderID:       order.ID,
		TransactionID: "TXN_TEST",
		AmountCents:   750,
		Status:        enums.PaymentStatusSuccess,
	})
	require.NoError(t, err)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	require.NotNil(t, reloaded.Payment)
	assert.Equal(t, "TXN_TEST", reloaded.Payment.TransactionID)
	assert.Equal(t, 750, reloaded.Payment.AmountCents)
}

func TestListFiltersByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedOrder(t, db, uuid.New(), enums.OrderStatusPendingPayment, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 1, UnitPriceCents: 100},
	})
	seedOrder(t, db, uuid.New(), enums.OrderStatusPaid, []models.OrderLineItem{
		{ProductID: uuid.New(), Qty: 1, UnitPriceCents: 200},
	})

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid := enums.OrderStatusPaid
	filtered, err := repo.List(ctx, &paid)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, enums.OrderStatusPaid, filtered[0].Status)
}
