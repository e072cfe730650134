package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Repository.FindActiveByCode when no active
// promotion matches the given code.
var ErrNotFound = errors.New("promotion not found")

// Reasons reported to shoppers on domain-invalid outcomes. The generic
// reason is used for collaborator failures, which never surface store
// details to the client.
const (
	reasonInvalidCode   = "Invalid promotion code"
	reasonNotStarted    = "This promotion has not started yet"
	reasonExpired       = "This promotion has expired"
	reasonExhausted     = "This promotion has reached its usage limit"
	reasonUserLimit     = "You have used this promotion the maximum number of times"
	reasonNotApplicable = "This promotion does not apply to any items in your cart"
	reasonGeneric       = "Error validating promotion"
)

// Engine validates discount codes against promotion rules and a cart
// snapshot, and records redemptions after checkout.
//
// The engine is stateless; every call is independent and safe for
// concurrent use. The per-user usage cap is check-then-act against the
// store: validation counts existing usage records and RecordUsage inserts
// later with no shared transaction, so two concurrent checkouts by the same
// user can both pass the cap.
type Engine struct {
	repo    Repository
	catalog ProductCatalog
	now     func() time.Time
}

// NewEngine creates an Engine backed by the given repository and catalog.
func NewEngine(repo Repository, catalog ProductCatalog) *Engine {
	return &Engine{repo: repo, catalog: catalog, now: time.Now}
}

// Validate checks the given code against the user and cart snapshot and
// computes the resulting discount. The subtotal is computed from the cart
// lines; callers do not pass their own figure.
//
// Domain-invalid outcomes (unknown code, outside the time window, over a
// cap, below the minimum, not applicable) come back as a result with
// Valid=false and a shopper-facing Reason. Store failures are logged and
// reported with a generic reason; the engine never retries.
func (e *Engine) Validate(ctx context.Context, code, userID string, lines []CartLine) ValidationResult {
	promo, err := e.repo.FindActiveByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid(reasonInvalidCode)
		}
		zctx.From(ctx).Error("promotion lookup failed",
			zap.String("code", normalizeCode(code)), zap.Error(err))
		return invalid(reasonGeneric)
	}

	switch promo.StateAt(e.now()) {
	case StatePending:
		return invalid(reasonNotStarted)
	case StateExpired:
		return invalid(reasonExpired)
	case StateExhausted:
		return invalid(reasonExhausted)
	}

	// Per-user cap. A count failure here is itself a validation failure:
	// the cap cannot be verified, so fail closed.
	used, err := e.repo.CountUsages(ctx, promo.ID, userID)
	if err != nil {
		zctx.From(ctx).Error("usage count failed",
			zap.String("promotion_id", promo.ID), zap.String("user_id", userID), zap.Error(err))
		return invalid(reasonGeneric)
	}
	if promo.MaxUsesPerUser > 0 && used >= promo.MaxUsesPerUser {
		return invalid(reasonUserLimit)
	}

	subtotal := Subtotal(lines)
	if subtotal.LessThan(promo.MinOrderAmount) {
		return invalid(fmt.Sprintf(
			"A minimum order amount of %s is required to use this promotion",
			promo.MinOrderAmount.StringFixed(2)))
	}

	applicable, err := e.applicableLines(ctx, promo, lines)
	if err != nil {
		zctx.From(ctx).Error("brand membership lookup failed",
			zap.String("promotion_id", promo.ID), zap.String("brand_id", promo.BrandID), zap.Error(err))
		return invalid(reasonGeneric)
	}
	if len(applicable) == 0 {
		return invalid(reasonNotApplicable)
	}

	return ValidationResult{
		Valid:          true,
		Promotion:      promo,
		DiscountAmount: Discount(promo, applicable, subtotal),
	}
}

// RecordUsage records one redemption: the usage record insert and the
// used_count increment run as a single store transaction. It is invoked
// once, after the order is durably created; the caller treats failure as
// non-fatal to the checkout itself.
func (e *Engine) RecordUsage(ctx context.Context, promotionID, userID, orderID string, discountAmount decimal.Decimal) error {
	u := &Usage{
		PromotionID:    promotionID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discountAmount,
		UsedAt:         e.now(),
	}
	if err := e.repo.RecordUsage(ctx, u); err != nil {
		return errors.Wrap(err, "record usage")
	}
	return nil
}

// applicableLines filters the cart down to the lines the promotion's scope
// covers. Brand scope resolves the brand's product set through the catalog.
func (e *Engine) applicableLines(ctx context.Context, promo *Promotion, lines []CartLine) ([]CartLine, error) {
	switch promo.Scope {
	case ScopeBrand:
		members, err := e.catalog.ProductIDsByBrand(ctx, promo.BrandID)
		if err != nil {
			return nil, err
		}
		var applicable []CartLine
		for _, line := range lines {
			if _, ok := members[line.ProductID]; ok {
				applicable = append(applicable, line)
			}
		}
		return applicable, nil
	case ScopeProduct:
		for _, line := range lines {
			if line.ProductID == promo.ProductID {
				return []CartLine{line}, nil
			}
		}
		return nil, nil
	default:
		return lines, nil
	}
}

// normalizeCode upper-cases and trims a raw code so matching is
// case-insensitive on both sides.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}
