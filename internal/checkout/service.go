package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/internal/cart"
	"github.com/mateoreyes/ordercore-backend/internal/checkout/reservation"
	"github.com/mateoreyes/ordercore-backend/internal/inventory"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	product "github.com/mateoreyes/ordercore-backend/internal/products"
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

// Service turns a cart into a PENDING_PAYMENT order.
type Service interface {
	Execute(ctx context.Context, actor orders.Actor) (*models.Order, error)
}

type service struct {
	carts         cart.Repository
	products      *product.Repository
	ordersRepo    orders.Repository
	tx            txRunner
	outbox        outboxPublisher
	inventory     inventory.Ledger
	paymentWindow time.Duration
	now           func() time.Time
}

func NewService(
	carts cart.Repository,
	products *product.Repository,
	ordersRepo orders.Repository,
	tx txRunner,
	publisher outboxPublisher,
	led inventory.Ledger,
	paymentWindow time.Duration,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ordersRepo == nil {
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
	if paymentWindow <= 0 {
		return nil, fmt.Errorf("payment window must be positive")
	}
	return &service{
		carts:         carts,
		products:      products,
		ordersRepo:    ordersRepo,
		tx:            tx,
		outbox:        publisher,
		inventory:     led,
		paymentWindow: paymentWindow,
		now:           time.Now,
	}, nil
}

// Execute reserves stock for every cart line, creates the order and empties
// the cart in one transaction. Any reservation failure rolls everything back,
// so a checkout never holds partial stock.
func (s *service) Execute(ctx context.Context, actor orders.Actor) (*models.Order, error) {
	var created *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		record, err := carts.FindByUser(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		requests, err := buildRequests(ctx, s.products.WithTx(tx), record.Items)
		if err != nil {
			return err
		}

		reserved, err := reservation.ReserveItems(ctx, tx, s.inventory, requests)
		if err != nil {
			return err
		}

		now := s.now()
		expiresAt := now.Add(s.paymentWindow)
		order := &models.Order{
			UserID:           actor.UserID,
			Status:           enums.OrderStatusPendingPayment,
			TotalCents:       reserved.TotalCents,
			PaymentExpiresAt: &expiresAt,
			Items:            reserved.LineItems,
		}
		repo := s.ordersRepo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if err := carts.ClearItems(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				TotalCents:       int64(order.TotalCents),
				LineItemCount:    len(order.Items),
				PaymentExpiresAt: expiresAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		created, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		if dbpkg.IsSerializationFailure(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, "checkout conflicted")
		}
		return nil, err
	}
	return created, nil
}

// buildRequests snapshots current catalog prices into reservation requests.
// Line items keep the price charged even if the catalog changes later. The
// repository must be bound to the checkout transaction so the snapshot reads
// from the same isolation level as the reservation writes.
func buildRequests(ctx context.Context, products *product.Repository, items []models.CartItem) ([]reservation.ItemRequest, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	rows, err := products.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	prices := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		prices[row.ID] = row.PriceCents
	}

	requests := make([]reservation.ItemRequest, 0, len(items))
	for _, item := range items {
		price, ok := prices[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		requests = append(requests, reservation.ItemRequest{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: price,
		})
	}
	return requests, nil
}
