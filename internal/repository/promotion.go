package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfront-dev/promo-engine/internal/domain/promotion"
)

const (
	findPromotionByCodeSQL = `SELECT id, code, active, starts_at, expires_at,
		usage_limit, used_count, max_uses_per_user, min_order_amount,
		scope, brand_id, product_id,
		discount_type, discount_value, max_discount_amount
		FROM promotions WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	countUsagesSQL = `SELECT COUNT(*) FROM promotion_usages
		WHERE promotion_id = $1 AND user_id = $2`

	insertUsageSQL = `INSERT INTO promotion_usages
		(promotion_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5)`

	incrementUsedCountSQL = `UPDATE promotions SET used_count = used_count + 1
		WHERE id = $1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindActiveByCode looks up an active promotion by its code
// (case-insensitive). Returns promotion.ErrNotFound when no matching active
// promotion exists.
func (r *PromotionRepository) FindActiveByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, findPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	promo, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return &promo, nil
}

// CountUsages returns the number of usage records for the given
// (promotion, user) pair.
func (r *PromotionRepository) CountUsages(ctx context.Context, promotionID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countUsagesSQL, promotionID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usages for promotion %q: %w", promotionID, err)
	}
	return count, nil
}

// RecordUsage inserts the usage record and increments the promotion's
// used_count in a single transaction, so the counter never drifts from the
// recorded redemptions. The increment runs server-side, avoiding a
// read-modify-write on used_count.
func (r *PromotionRepository) RecordUsage(ctx context.Context, u *promotion.Usage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recording usage for promotion %q: %w", u.PromotionID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	usedAt := u.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now()
	}

	if _, err := tx.Exec(ctx, insertUsageSQL,
		u.PromotionID, u.UserID, u.OrderID, u.DiscountAmount, usedAt,
	); err != nil {
		return fmt.Errorf("inserting usage for promotion %q: %w", u.PromotionID, err)
	}

	if _, err := tx.Exec(ctx, incrementUsedCountSQL, u.PromotionID); err != nil {
		return fmt.Errorf("incrementing used_count for promotion %q: %w", u.PromotionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("recording usage for promotion %q: %w", u.PromotionID, err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		promo        promotion.Promotion
		expiresAt    *time.Time
		usageLimit   int32
		usedCount    int32
		maxPerUser   int32
		scope        string
		brandID      *string
		productID    *string
		discountType string
		minOrder     decimal.Decimal
		value        decimal.Decimal
		maxDiscount  decimal.Decimal
	)
	err := row.Scan(
		&promo.ID, &promo.Code, &promo.Active, &promo.StartsAt, &expiresAt,
		&usageLimit, &usedCount, &maxPerUser, &minOrder,
		&scope, &brandID, &productID,
		&discountType, &value, &maxDiscount,
	)
	promo.ExpiresAt = expiresAt
	promo.UsageLimit = int(usageLimit)
	promo.UsedCount = int(usedCount)
	promo.MaxUsesPerUser = int(maxPerUser)
	promo.MinOrderAmount = minOrder
	promo.Scope = promotion.Scope(scope)
	if brandID != nil {
		promo.BrandID = *brandID
	}
	if productID != nil {
		promo.ProductID = *productID
	}
	promo.DiscountType = promotion.DiscountType(discountType)
	promo.DiscountValue = value
	promo.MaxDiscountAmount = maxDiscount
	return promo, err
}
