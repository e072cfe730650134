// Command seed-db populates the database with brands, products, and
// promotions from a JSON seed file. Safe to re-run: all writes are upserts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfront-dev/promo-engine/internal/repository"
)

type brandJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	BrandID string          `json:"brand_id"`
}

type promotionJSON struct {
	Code              string          `json:"code"`
	Active            bool            `json:"active"`
	StartsAt          time.Time       `json:"starts_at"`
	ExpiresAt         *time.Time      `json:"expires_at"`
	UsageLimit        int             `json:"usage_limit"`
	MaxUsesPerUser    int             `json:"max_uses_per_user"`
	MinOrderAmount    decimal.Decimal `json:"min_order_amount"`
	Scope             string          `json:"scope"`
	BrandID           string          `json:"brand_id"`
	ProductID         string          `json:"product_id"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MaxDiscountAmount decimal.Decimal `json:"max_discount_amount"`
}

type seedFile struct {
	Brands     []brandJSON     `json:"brands"`
	Products   []productJSON   `json:"products"`
	Promotions []promotionJSON `json:"promotions"`
}

const (
	upsertBrandSQL = `
INSERT INTO brands (id, name)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertProductSQL = `
INSERT INTO products (id, name, price, brand_id)
VALUES ($1, $2, $3, NULLIF($4, ''))
ON CONFLICT (id) DO UPDATE SET
    name     = EXCLUDED.name,
    price    = EXCLUDED.price,
    brand_id = EXCLUDED.brand_id`

	upsertPromotionSQL = `
INSERT INTO promotions (
    code, active, starts_at, expires_at, usage_limit, max_uses_per_user,
    min_order_amount, scope, brand_id, product_id,
    discount_type, discount_value, max_discount_amount
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
ON CONFLICT (UPPER(code)) DO UPDATE SET
    active              = EXCLUDED.active,
    starts_at           = EXCLUDED.starts_at,
    expires_at          = EXCLUDED.expires_at,
    usage_limit         = EXCLUDED.usage_limit,
    max_uses_per_user   = EXCLUDED.max_uses_per_user,
    min_order_amount    = EXCLUDED.min_order_amount,
    scope               = EXCLUDED.scope,
    brand_id            = EXCLUDED.brand_id,
    product_id          = EXCLUDED.product_id,
    discount_type       = EXCLUDED.discount_type,
    discount_value      = EXCLUDED.discount_value,
    max_discount_amount = EXCLUDED.max_discount_amount`
)

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedBrands(ctx, pool, seed.Brands); err != nil {
		return errors.Wrap(err, "seed brands")
	}
	if err := seedProducts(ctx, pool, seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPromotions(ctx, pool, seed.Promotions); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	return nil
}

func seedBrands(ctx context.Context, pool *pgxpool.Pool, brands []brandJSON) error {
	slog.Info("upserting brands", slog.Int("count", len(brands)))

	for _, b := range brands {
		if _, err := pool.Exec(ctx, upsertBrandSQL, b.ID, b.Name); err != nil {
			return errors.Wrapf(err, "upsert brand %s", b.ID)
		}
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.BrandID); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool, promos []promotionJSON) error {
	slog.Info("upserting promotions", slog.Int("count", len(promos)))

	for _, p := range promos {
		scope := p.Scope
		if scope == "" {
			scope = "all"
		}
		if _, err := pool.Exec(ctx, upsertPromotionSQL,
			p.Code, p.Active, p.StartsAt, p.ExpiresAt, p.UsageLimit, p.MaxUsesPerUser,
			p.MinOrderAmount, scope, p.BrandID, p.ProductID,
			p.DiscountType, p.DiscountValue, p.MaxDiscountAmount,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.Code)
		}
	}
	return nil
}
