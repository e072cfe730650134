package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/shopfront-dev/promo-engine/internal/domain/promotion"
)

type validateItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	BrandID   string          `json:"brand_id"`
}

type validateRequest struct {
	Code   string         `json:"code"`
	UserID string         `json:"user_id"`
	Items  []validateItem `json:"items"`
}

func (h *Handler) validatePromotion(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	lines := make([]promotion.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
			return
		}
		lines = append(lines, promotion.CartLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			BrandID:   it.BrandID,
		})
	}

	result := h.promos.Validate(r.Context(), req.Code, req.UserID, lines)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeValidationResult(e, result)
	})
}

func encodeValidationResult(e *jx.Encoder, result promotion.ValidationResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("valid", func(e *jx.Encoder) { e.Bool(result.Valid) })
		if !result.Valid {
			e.Field("reason", func(e *jx.Encoder) { e.Str(result.Reason) })
			return
		}
		e.Field("code", func(e *jx.Encoder) { e.Str(result.Promotion.Code) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(result.Promotion.DiscountType)) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeDecimal(e, result.DiscountAmount) })
	})
}
