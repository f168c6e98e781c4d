package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/inventory"
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

// Service exposes order reads and admin lifecycle transitions.
type Service interface {
	GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListMyOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListOrders(ctx context.Context, statusFilter *enums.OrderStatus) ([]models.Order, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	ExpireDueOrders(ctx context.Context, now time.Time, limit int) (int, error)
}

// Actor carries the authenticated caller's identity into service checks.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a Actor) isAdmin() bool {
	return a.Role == enums.RoleAdmin
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventory.Ledger
}

// NewService builds the order service backed by the provided stack.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, led inventory.Ledger) (Service, error) {
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
	return &service{repo: repo, tx: tx, outbox: publisher, inventory: led}, nil
}

// GetOrder loads a single order. Non-admin callers can only read their own.
func (s *service) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.isAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListMyOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) ListOrders(ctx context.Context, statusFilter *enums.OrderStatus) ([]models.Order, error) {
	if statusFilter != nil && !statusFilter.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.repo.List(ctx, statusFilter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// UpdateStatus applies an admin-driven lifecycle transition. Canceling an
// order that is still awaiting payment also releases its inventory holds.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(target)})
	}
	// PAID is reachable only through payment settlement, which records the
	// payment row and burns the reserved stock. An admin flipping the status
	// directly would leave both sides of that accounting dangling.
	if target == enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are settled through payment, not status updates").
			WithDetails(map[string]any{"status": string(target)})
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if !order.Status.CanTransitionTo(target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal status transition").
				WithDetails(map[string]any{
					"from": string(order.Status),
					"to":   string(target),
				})
		}

		extra := map[string]any{}
		now := time.Now()
		if target == enums.OrderStatusCancelled {
			extra["canceled_at"] = now
		}

		moved, err := repo.TransitionStatus(ctx, orderID, order.Status, target, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order status")
		}
		if !moved {
			// Another writer changed the status since we loaded it.
			return pkgerrors.New(pkgerrors.CodeTxConflict, "order status changed concurrently")
		}

		if target == enums.OrderStatusCancelled && order.Status == enums.OrderStatusPendingPayment {
			for _, item := range order.Items {
				if err := s.inventory.Release(ctx, tx, item.ProductID, item.Qty); err != nil {
					return err
				}
			}
		}

		if target == enums.OrderStatusCancelled {
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCanceled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
				Data: payloads.OrderCanceledEvent{
					OrderID:    order.ID,
					UserID:     order.UserID,
					FromStatus: order.Status,
					CanceledAt: now,
					Reason:     "admin_cancel",
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order canceled")
			}
		}

		updated, err = repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		if dbpkg.IsSerializationFailure(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, "order update conflicted")
		}
		return nil, err
	}
	return updated, nil
}

// ExpireDueOrders cancels PENDING_PAYMENT orders whose payment window closed
// before now, releasing their holds. Each order gets its own transaction so a
// single failure cannot wedge the whole sweep.
func (s *service) ExpireDueOrders(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.FindPendingExpiredBefore(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired orders")
	}

	expired := 0
	var errs []error
	for i := range due {
		order := due[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.expireOrder(ctx, tx, &order, now)
		})
		if err != nil {
			// Losing the guarded update to a concurrent payment is fine.
			if pkgerrors.HasCode(err, pkgerrors.CodeTxConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}
	return expired, multierr.Combine(errs...)
}

func (s *service) expireOrder(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	repo := s.repo.WithTx(tx)

	moved, err := repo.TransitionStatus(ctx, order.ID,
		enums.OrderStatusPendingPayment, enums.OrderStatusCancelled,
		map[string]any{"canceled_at": now})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel expired order")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeTxConflict, "order no longer pending")
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
