package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mateoreyes/ordercore-backend/pkg/enums"
)

// Order is the immutable record produced from a checkout. Orders are never
// deleted; all lifecycle changes go through status transitions.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PENDING_PAYMENT'"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	PaymentExpiresAt *time.Time        `gorm:"column:payment_expires_at"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CanceledAt       *time.Time        `gorm:"column:canceled_at"`
	Items            []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment          *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the payment window has closed.
func (o *Order) IsExpired(now time.Time) bool {
	if o == nil || o.PaymentExpiresAt == nil {
		return false
	}
	return now.After(*o.PaymentExpiresAt)
}
