package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mateoreyes/ordercore-backend/api/middleware"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
	"github.com/mateoreyes/ordercore-backend/pkg/logger"
)

type stubPaymentsService struct {
	order *models.Order
	err   error

	gotOrderID uuid.UUID
	gotActor   orders.Actor
}

func (s *stubPaymentsService) PayOrder(_ context.Context, actor orders.Actor, orderID uuid.UUID) (*models.Order, error) {
	s.gotActor = actor
	s.gotOrderID = orderID
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedContext(userID uuid.UUID, role enums.Role) context.Context {
	ctx := middleware.WithUserID(context.Background(), userID.String())
	return middleware.WithRole(ctx, string(role))
}

func withOrderParam(ctx context.Context, orderID string) context.Context {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID)
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}

func TestPayOrderController(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()
	orderID := uuid.New()

	now := time.Now()
	paid := &models.Order{
		ID:         orderID,
		UserID:     userID,
		Status:     enums.OrderStatusPaid,
		TotalCents: 998,
		PaidAt:     &now,
		Payment: &models.Payment{
			TransactionID: "TXN_1_abc",
			AmountCents:   998,
			Status:        enums.PaymentStatusSuccess,
		},
	}

	t.Run("success", func(t *testing.T) {
		stub := &stubPaymentsService{order: paid}
		ctx := withOrderParam(authedContext(userID, enums.RoleUser), orderID.String())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/pay", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		PayOrder(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.gotOrderID != orderID {
			t.Fatalf("order id not forwarded")
		}
		if stub.gotActor.UserID != userID {
			t.Fatalf("actor not forwarded")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		stub := &stubPaymentsService{order: paid}
		ctx := withOrderParam(context.Background(), orderID.String())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/pay", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		PayOrder(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("invalid order id", func(t *testing.T) {
		stub := &stubPaymentsService{order: paid}
		ctx := withOrderParam(authedContext(userID, enums.RoleUser), "not-a-uuid")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/not-a-uuid/pay", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		PayOrder(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("expired window maps to unprocessable", func(t *testing.T) {
		stub := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment window expired")}
		ctx := withOrderParam(authedContext(userID, enums.RoleUser), orderID.String())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/pay", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		PayOrder(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})
}
