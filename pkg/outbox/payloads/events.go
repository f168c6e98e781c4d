package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mateoreyes/ordercore-backend/pkg/enums"
)

// OrderCreatedEvent signals a successful checkout.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	TotalCents       int64     `json:"total_cents"`
	LineItemCount    int       `json:"line_item_count"`
	PaymentExpiresAt time.Time `json:"payment_expires_at"`
}

// OrderPaidEvent is emitted when a payment settles and the order flips to PAID.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderCanceledEvent is emitted whenever an order is canceled and its
// reservations released.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	CanceledAt time.Time         `json:"canceled_at"`
	Reason     string            `json:"reason,omitempty"`
}

// OrderExpiredEvent reports an order canceled because its payment window lapsed.
type OrderExpiredEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	PaymentExpiresAt time.Time `json:"payment_expires_at"`
	ExpiredAt        time.Time `json:"expired_at"`
}
