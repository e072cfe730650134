// Package handler exposes the storefront HTTP API: product catalog reads,
// promotion validation, and order placement.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront-dev/promo-engine/internal/domain/order"
	"github.com/shopfront-dev/promo-engine/internal/domain/product"
	"github.com/shopfront-dev/promo-engine/internal/domain/promotion"
)

// Handler serves the storefront API, delegating business logic to the
// injected domain services.
type Handler struct {
	products product.Repository
	promos   *promotion.Engine
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	promos *promotion.Engine,
	orders *order.Service,
) *Handler {
	return &Handler{
		products: products,
		promos:   promos,
		orders:   orders,
	}
}

// Routes mounts all API endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)
		r.Post("/promotions/validate", h.validatePromotion)
		r.Post("/orders", h.placeOrder)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
