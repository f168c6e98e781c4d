package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mateoreyes/ordercore-backend/pkg/enums"
)

// Payment records a settlement attempt against an order. An order has at most
// one SUCCESS payment.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	TransactionID string              `gorm:"column:transaction_id;not null;uniqueIndex:ux_payments_transaction_id"`
	AmountCents   int                 `gorm:"column:amount_cents;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
