// Package promotion implements discount-code validation and cart discount
// computation for the storefront checkout flow.
package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Scope describes which subset of a cart a promotion can discount.
type Scope string

const (
	// ScopeAll applies the promotion to every line in the cart.
	ScopeAll Scope = "all"
	// ScopeBrand applies the promotion to lines whose product belongs to the
	// promotion's brand.
	ScopeBrand Scope = "brand"
	// ScopeProduct applies the promotion to the single matching product line.
	ScopeProduct Scope = "product"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the applicable subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount discounts a fixed monetary amount, capped at the
	// applicable subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Promotion is a coded discount rule with eligibility constraints.
//
// A zero ExpiresAt pointer means the promotion never expires, UsageLimit 0
// means unlimited total redemptions, and a zero MaxDiscountAmount means no
// cap on percentage discounts. UsedCount is maintained exclusively through
// Repository.RecordUsage.
type Promotion struct {
	ID                string
	Code              string
	Active            bool
	StartsAt          time.Time
	ExpiresAt         *time.Time
	UsageLimit        int
	UsedCount         int
	MaxUsesPerUser    int
	MinOrderAmount    decimal.Decimal
	Scope             Scope
	BrandID           string
	ProductID         string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount decimal.Decimal
}

// Usage is durable evidence that a user redeemed a promotion on an order.
type Usage struct {
	ID             string
	PromotionID    string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// CartLine is one cart item under consideration for discounting. The engine
// only reads cart lines; it never mutates the caller's cart.
type CartLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	BrandID   string
}

// ValidationResult is the engine's answer to "can this code be applied to
// this cart". Domain-invalid outcomes set Valid=false with a human-readable
// Reason; they are results, not errors.
type ValidationResult struct {
	Valid          bool
	Promotion      *Promotion
	Reason         string
	DiscountAmount decimal.Decimal
}

// Repository provides promotion lookup and redemption accounting.
type Repository interface {
	// FindActiveByCode resolves an active promotion whose code matches
	// case-insensitively. Returns ErrNotFound when no such promotion exists.
	FindActiveByCode(ctx context.Context, code string) (*Promotion, error)

	// CountUsages returns the number of usage records for the given
	// (promotion, user) pair.
	CountUsages(ctx context.Context, promotionID, userID string) (int, error)

	// RecordUsage inserts the usage record and increments the promotion's
	// used_count in a single transaction.
	RecordUsage(ctx context.Context, u *Usage) error
}

// ProductCatalog resolves brand membership for scope filtering.
type ProductCatalog interface {
	// ProductIDsByBrand returns the set of product IDs belonging to a brand.
	ProductIDsByBrand(ctx context.Context, brandID string) (map[string]struct{}, error)
}
