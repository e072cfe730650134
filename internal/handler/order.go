package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/shopfront-dev/promo-engine/internal/domain/order"
	"github.com/shopfront-dev/promo-engine/internal/domain/product"
)

type placeOrderRequest struct {
	UserID        string            `json:"user_id"`
	Items         []order.OrderItem `json:"items"`
	PromotionCode string            `json:"promotion_code"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:        req.UserID,
		Items:         req.Items,
		PromotionCode: req.PromotionCode,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, result.Order, result.Products)
	})
}

func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *order.ProductNotFoundError
		badQty   *order.InvalidQuantityError
		rejected *order.PromotionRejectedError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "items are required")
	case errors.As(err, &badQty):
		writeError(w, http.StatusBadRequest, badQty.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, rejected.Reason)
	default:
		zctx.From(r.Context()).Error("placing order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order, products []product.Product) {
	byID := lo.KeyBy(products, func(p product.Product) string { return p.ID })

	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					p := byID[it.ProductID]
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { encodeDecimal(e, p.Price) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { encodeDecimal(e, o.Discount) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, o.Total) })
		if o.PromotionCode != "" {
			e.Field("promotion_code", func(e *jx.Encoder) { e.Str(o.PromotionCode) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(timeFormat)) })
	})
}
