package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopfront-dev/promo-engine/internal/domain/product"
	"github.com/shopfront-dev/promo-engine/internal/domain/promotion"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = fmt.Errorf("items required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PromotionRejectedError carries the shopper-facing reason the promotion
// engine rejected the supplied code.
type PromotionRejectedError struct {
	Reason string
}

func (e *PromotionRejectedError) Error() string {
	return e.Reason
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID        string
	Items         []OrderItem
	PromotionCode string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic.
type Service struct {
	products product.Repository
	promos   *promotion.Engine
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	promos *promotion.Engine,
	orders Repository,
) *Service {
	return &Service{
		products: products,
		promos:   promos,
		orders:   orders,
	}
}

// PlaceOrder validates items, fetches products in a single batch, applies
// the promotion code through the engine, persists the order, and records
// the redemption once the order is durable.
//
// Usage recording runs strictly after order creation and never before; a
// recording failure is logged but does not fail the checkout, since the
// discount is already applied to the stored total at that point.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Verify every requested product was found and build the cart snapshot
	// the promotion engine sees.
	products := make([]product.Product, 0, len(req.Items))
	lines := make([]promotion.CartLine, len(req.Items))
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		lines[i] = promotion.CartLine{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			BrandID:   p.BrandID,
		}
	}

	subtotal := promotion.Subtotal(lines)

	// Apply the promotion when a code is provided.
	discount := decimal.Zero
	var applied *promotion.Promotion
	if req.PromotionCode != "" {
		result := s.promos.Validate(ctx, req.PromotionCode, req.UserID, lines)
		if !result.Valid {
			return nil, &PromotionRejectedError{Reason: result.Reason}
		}
		discount = result.DiscountAmount
		applied = result.Promotion
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Items:         req.Items,
		Subtotal:      subtotal.Round(2),
		Discount:      discount.Round(2),
		Total:         total.Round(2),
		PromotionCode: req.PromotionCode,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// The order is durable from here on. Losing the usage record leaves the
	// promotion under-counted, not the order wrong, so log and move on.
	if applied != nil {
		if err := s.promos.RecordUsage(ctx, applied.ID, req.UserID, o.ID, discount); err != nil {
			zctx.From(ctx).Error("recording promotion usage failed",
				zap.String("promotion_id", applied.ID),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}
