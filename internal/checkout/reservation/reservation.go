package reservation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
)

// ItemRequest is one cart line to reserve at checkout.
type ItemRequest struct {
	ProductID      uuid.UUID
	Qty            int
	UnitPriceCents int
}

// Result carries the reserved line items and the order total.
type Result struct {
	LineItems  []models.OrderLineItem
	TotalCents int
}

// ReserveItems places an inventory hold for every request, all or nothing.
// The first failure aborts with the ledger's error so the surrounding
// transaction rolls back any holds already taken.
func ReserveItems(ctx context.Context, tx *gorm.DB, led inventory.Ledger, items []ItemRequest) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reservation")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to reserve")
	}

	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in reservation").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		seen[item.ProductID] = struct{}{}
	}

	result := &Result{LineItems: make([]models.OrderLineItem, 0, len(items))}
	for _, item := range items {
		if err := led.Reserve(ctx, tx, item.ProductID, item.Qty); err != nil {
			return nil, err
		}
		result.LineItems = append(result.LineItems, models.OrderLineItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
		result.TotalCents += item.Qty * item.UnitPriceCents
	}
	return result, nil
}
