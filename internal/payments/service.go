package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	dbpkg "github.com/mateoreyes/ordercore-backend/pkg/db"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
	"github.com/mateoreyes/ordercore-backend/pkg/outbox"
	"github.com/mateoreyes/ordercore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service settles payments against orders awaiting payment.
type Service interface {
	PayOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo      orders.Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventory.Ledger
	now       func() time.Time
}

func NewService(repo orders.Repository, tx txRunner, publisher outboxPublisher, led inventory.Ledger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if led == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    publisher,
		inventory: led,
		now:       time.Now,
	}, nil
}

// PayOrder settles a pending order. The paid transition, the payment row, the
// reserved stock confirmation and the outbox event all commit together. When
// the payment window has already closed the order is canceled instead, its
// holds go back to available stock, and the caller gets a state conflict.
func (s *service) PayOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*models.Order, error) {
	var (
		settled *models.Order
		expired bool
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}

		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": string(order.Status)})
		}

		now := s.now()
		if order.IsExpired(now) {
			// The window closed. Cancel and release inside this same
			// transaction, then report the conflict after it commits.
			if err := s.cancelExpired(ctx, tx, repo, order, now); err != nil {
				return err
			}
			expired = true
			return nil
		}

		payment := &models.Payment{
			OrderID:       order.ID,
			TransactionID: newTransactionID(now),
			AmountCents:   order.TotalCents,
			Status:        enums.PaymentStatusSuccess,
		}
		if _, err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		moved, err := repo.TransitionStatus(ctx, order.ID,
			enums.OrderStatusPendingPayment, enums.OrderStatusPaid,
			map[string]any{"paid_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeTxConflict, "order status changed concurrently")
		}

		for _, item := range order.Items {
			if err := s.inventory.ConfirmSale(ctx, tx, item.ProductID, item.Qty); err != nil {
				return err
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				TransactionID: payment.TransactionID,
				AmountCents:   int64(payment.AmountCents),
				PaidAt:        now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
		}

		settled, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		if dbpkg.IsSerializationFailure(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, "payment conflicted")
		}
		return nil, err
	}

	if expired {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window expired").
			WithDetails(map[string]any{"order_id": orderID.String()})
	}
	return settled, nil
}

// cancelExpired runs inside the caller's transaction. The cancellation must
// commit even though the payment itself is rejected, so it returns nil on
// success and the caller raises the conflict afterwards.
func (s *service) cancelExpired(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, now time.Time) error {
	moved, err := repo.TransitionStatus(ctx, order.ID,
		enums.OrderStatusPendingPayment, enums.OrderStatusCancelled,
		map[string]any{"canceled_at": now})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel expired order")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeTxConflict, "order status changed concurrently")
	}

	for _, item := range order.Items {
		if err := s.inventory.Release(ctx, tx, item.ProductID, item.Qty); err != nil {
			return err
		}
	}

	var expiresAt time.Time
	if order.PaymentExpiresAt != nil {
		expiresAt = *order.PaymentExpiresAt
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderExpiredEvent{
			OrderID:          order.ID,
			UserID:           order.UserID,
			PaymentExpiresAt: expiresAt,
			ExpiredAt:        now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order expired")
	}
	return nil
}

func newTransactionID(now time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not recoverable here, fall back to time.
		return fmt.Sprintf("TXN_%d_%d", now.Unix(), now.UnixNano()%1_000_000)
	}
	return fmt.Sprintf("TXN_%d_%s", now.Unix(), hex.EncodeToString(buf))
}
