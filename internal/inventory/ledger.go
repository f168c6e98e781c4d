package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
)

// Ledger moves stock between the available and reserved counters. All
// operations run inside the caller's transaction and use guarded updates so
// concurrent writers cannot drive a counter negative.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	ConfirmSale(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger exposes the default inventory ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

// Reserve moves qty units from available to reserved. It fails with
// CodeStateConflict when the product lacks sufficient available stock and
// CodeNotFound when the product has no inventory row.
func (ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := validateArgs(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// The guard rejected the update: missing row or not enough stock.
	var item models.InventoryItem
	err := tx.WithContext(ctx).First(&item, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  qty,
			"available":  item.AvailableQty,
		})
}

// Release returns qty units from reserved back to available.
func (ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := validateArgs(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below release quantity").
			WithDetails(map[string]any{"product_id": productID.String(), "qty": qty})
	}
	return nil
}

// ConfirmSale burns qty reserved units after a successful payment.
func (ledger) ConfirmSale(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := validateArgs(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "confirm sale")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "reserved stock below sale quantity").
			WithDetails(map[string]any{"product_id": productID.String(), "qty": qty})
	}
	return nil
}

func validateArgs(tx *gorm.DB, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory update")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
