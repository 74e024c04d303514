// Package catalog serves product lookups for the chat flow and keeps the
// local catalog in step with the storefront.
package catalog

import (
	"context"

	"github.com/avvvet/naina-chat/internal/models"
)

// Store is the read path over the product inventory
type Store interface {
	// FindByKeywordAndPriceRange returns in-stock products ordered by ascending price.
	// An empty term disables the keyword filter.
	FindByKeywordAndPriceRange(ctx context.Context, term string, minPrice, maxPrice, offset, limit int) ([]models.Product, error)

	// SummarizeByCategory returns per-category counts, price bounds and a few samples
	SummarizeByCategory(ctx context.Context) ([]CategorySummary, error)
}

// Writer is the write path used by the sync pipeline
type Writer interface {
	// UpsertProduct inserts or updates by product id and reports whether it was new
	UpsertProduct(ctx context.Context, product models.Product) (bool, error)
}

// CategorySummary describes one category for the prompt digest
type CategorySummary struct {
	Category string
	Count    int
	MinPrice float64
	MaxPrice float64
	Samples  []Sample
}

// Sample is a representative item of a category
type Sample struct {
	Name  string
	Price float64
}
