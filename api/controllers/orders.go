package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mateoreyes/ordercore-backend/api/middleware"
	"github.com/mateoreyes/ordercore-backend/api/responses"
	checkoutsvc "github.com/mateoreyes/ordercore-backend/internal/checkout"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	"github.com/mateoreyes/ordercore-backend/internal/payments"
	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
	"github.com/mateoreyes/ordercore-backend/pkg/logger"
)

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	Status           enums.OrderStatus   `json:"status"`
	TotalCents       int                 `json:"total_cents"`
	PaymentExpiresAt *time.Time          `json:"payment_expires_at,omitempty"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	CanceledAt       *time.Time          `json:"canceled_at,omitempty"`
	Items            []orderItemResponse `json:"items"`
	Payment          *paymentResponse    `json:"payment,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
}

type paymentResponse struct {
	TransactionID string              `json:"transaction_id"`
	AmountCents   int                 `json:"amount_cents"`
	Status        enums.PaymentStatus `json:"status"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	resp := orderResponse{
		ID:               order.ID,
		Status:           order.Status,
		TotalCents:       order.TotalCents,
		PaymentExpiresAt: order.PaymentExpiresAt,
		PaidAt:           order.PaidAt,
		CanceledAt:       order.CanceledAt,
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
	if order.Payment != nil {
		resp.Payment = &paymentResponse{
			TransactionID: order.Payment.TransactionID,
			AmountCents:   order.Payment.AmountCents,
			Status:        order.Payment.Status,
		}
	}
	return resp
}

func newOrderListResponse(rows []models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newOrderResponse(&rows[i]))
	}
	return out
}

// Checkout converts the caller's cart into an order awaiting payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := callerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Execute(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// PayOrder settles an order inside its payment window.
func PayOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := callerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.PayOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func ListMyOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := callerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListMyOrders(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(rows))
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := callerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func callerActor(r *http.Request) (orders.Actor, error) {
	userID, err := callerID(r)
	if err != nil {
		return orders.Actor{}, err
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor role")
	}
	return orders.Actor{UserID: userID, Role: role}, nil
}
