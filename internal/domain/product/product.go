// Package product defines the storefront catalog read model.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. BrandID is empty
// for unbranded items.
type Product struct {
	ID      string
	Name    string
	Price   decimal.Decimal
	BrandID string
}

// Brand groups products for brand-scoped promotions.
type Brand struct {
	ID   string
	Name string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// ProductIDsByBrand returns the set of product IDs belonging to a brand.
	// An unknown brand yields an empty set, not an error.
	ProductIDsByBrand(ctx context.Context, brandID string) (map[string]struct{}, error)
}
