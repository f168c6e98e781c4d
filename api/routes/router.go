package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mateoreyes/ordercore-backend/api/controllers"
	"github.com/mateoreyes/ordercore-backend/api/middleware"
	cartsvc "github.com/mateoreyes/ordercore-backend/internal/cart"
	checkoutsvc "github.com/mateoreyes/ordercore-backend/internal/checkout"
	"github.com/mateoreyes/ordercore-backend/internal/orders"
	"github.com/mateoreyes/ordercore-backend/internal/payments"
	product "github.com/mateoreyes/ordercore-backend/internal/products"
	"github.com/mateoreyes/ordercore-backend/pkg/config"
	"github.com/mateoreyes/ordercore-backend/pkg/enums"
	"github.com/mateoreyes/ordercore-backend/pkg/logger"
)

// RouterParams bundle everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Readies  map[string]controllers.Pinger
	Products product.Service
	Cart     cartsvc.Service
	Checkout checkoutsvc.Service
	Payments payments.Service
	Orders   orders.Service
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readies))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(params.Products, logg))
		r.Get("/products/{productId}", controllers.GetProduct(params.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			// Cart and settlement are buyer operations. Order reads stay
			// open to any authenticated caller; the service enforces
			// owner-or-admin access per order.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(string(enums.RoleUser), logg))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", controllers.GetCart(params.Cart, logg))
					r.Post("/items", controllers.AddCartItem(params.Cart, logg))
					r.Delete("/items/{productId}", controllers.RemoveCartItem(params.Cart, logg))
				})

				r.Post("/orders/checkout", controllers.Checkout(params.Checkout, logg))
				r.Post("/orders/{orderId}/pay", controllers.PayOrder(params.Payments, logg))
			})

			r.Get("/orders", controllers.ListMyOrders(params.Orders, logg))
			r.Get("/orders/{orderId}", controllers.GetOrder(params.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.RoleAdmin), logg))

		r.Post("/products", controllers.CreateProduct(params.Products, logg))
		r.Patch("/products/{productId}", controllers.UpdateProduct(params.Products, logg))
		r.Delete("/products/{productId}", controllers.DeleteProduct(params.Products, logg))

		r.Get("/orders", controllers.AdminListOrders(params.Orders, logg))
		r.Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(params.Orders, logg))
	})

	return r
}
