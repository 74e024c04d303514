package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/metrics"
	"github.com/avvvet/naina-chat/internal/models"
)

const (
	// PageSize is the maximum number of products returned per query
	PageSize = 6

	// DefaultMaxPrice is the upper bound used when a directive omits one
	DefaultMaxPrice = 10000
)

// genericTerms match the whole catalog and only filter on price
var genericTerms = map[string]struct{}{
	"all":        {},
	"anything":   {},
	"catalog":    {},
	"collection": {},
	"everything": {},
	"item":       {},
	"items":      {},
	"jewellery":  {},
	"jewelry":    {},
	"product":    {},
	"products":   {},
	"stuff":      {},
}

// IsGenericTerm reports whether term means "the whole catalog"
func IsGenericTerm(term string) bool {
	_, ok := genericTerms[strings.ToLower(strings.TrimSpace(term))]
	return ok
}

// Engine turns directives into bounded, price-ordered product pages
type Engine struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a query engine over store
func NewEngine(store Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{store: store, logger: logger, metrics: m}
}

// Search returns up to PageSize products matching d starting at offset.
// No matches is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, d models.Directive, offset int) ([]models.Product, error) {
	term := strings.ToLower(strings.TrimSpace(d.Search))
	if IsGenericTerm(term) {
		term = ""
	}
	if offset < 0 {
		offset = 0
	}

	if d.MinPrice > d.MaxPrice {
		e.logger.Info("⚠️ price bounds out of order, nothing can match",
			zap.Int("min_price", d.MinPrice),
			zap.Int("max_price", d.MaxPrice),
		)
		e.metrics.IncCatalogQuery("empty")
		return []models.Product{}, nil
	}

	e.logger.Debug("🔍 searching catalog",
		zap.String("term", term),
		zap.Int("min_price", d.MinPrice),
		zap.Int("max_price", d.MaxPrice),
		zap.Int("offset", offset),
	)

	products, err := e.store.FindByKeywordAndPriceRange(ctx, term, d.MinPrice, d.MaxPrice, offset, PageSize)
	if err != nil {
		e.metrics.IncCatalogQuery("error")
		return nil, fmt.Errorf("catalog search %q: %w", d.String(), err)
	}
	if products == nil {
		products = []models.Product{}
	}

	if len(products) == 0 {
		e.metrics.IncCatalogQuery("empty")
		e.logger.Info("📦 no products found",
			zap.String("term", term),
			zap.Int("min_price", d.MinPrice),
			zap.Int("max_price", d.MaxPrice),
		)
	} else {
		e.metrics.IncCatalogQuery("hit")
		e.logger.Info("📦 products found", zap.Int("count", len(products)), zap.Int("offset", offset))
	}
	return products, nil
}
