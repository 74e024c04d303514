package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/naina-chat/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStore, products ...models.Product) {
	t.Helper()
	for _, p := range products {
		_, err := store.UpsertProduct(context.Background(), p)
		require.NoError(t, err)
	}
}

func ring(id string, price float64) models.Product {
	return models.Product{ID: id, Name: "Ring " + id, Price: price, Category: "Ring", InStock: true}
}

func names(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func TestSQLiteStore_FiltersByKeywordAndPrice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store,
		ring("r600", 600),
		ring("r200", 200),
		ring("r400", 400),
		models.Product{ID: "n1", Name: "Pearl Necklace", Price: 300, Category: "Necklace", InStock: true},
	)

	products, err := store.FindByKeywordAndPriceRange(ctx, "ring", 0, 500, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ring r200", "Ring r400"}, names(products))
}

func TestSQLiteStore_MatchesTagsDescriptionAndPlural(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store,
		models.Product{ID: "a", Name: "Aurora", Price: 100, Category: "Necklace", Tags: []string{"Gold", "Layered"}, InStock: true},
		models.Product{ID: "b", Name: "Bloom", Price: 200, Category: "Bracelet", Description: "A delicate CHAIN bracelet", InStock: true},
		models.Product{ID: "c", Name: "Crest", Price: 300, Category: "Ring", InStock: true},
	)

	byTag, err := store.FindByKeywordAndPriceRange(ctx, "layered", 0, 10000, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aurora"}, names(byTag))

	byDescription, err := store.FindByKeywordAndPriceRange(ctx, "chain", 0, 10000, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bloom"}, names(byDescription))

	plural, err := store.FindByKeywordAndPriceRange(ctx, "bracelets", 0, 10000, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bloom"}, names(plural))
}

func TestSQLiteStore_EmptyTermMatchesEverythingInRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store,
		ring("r1", 100),
		models.Product{ID: "n1", Name: "Necklace", Price: 450, Category: "Necklace", InStock: true},
		models.Product{ID: "e1", Name: "Earring", Price: 900, Category: "Earring", InStock: true},
	)

	products, err := store.FindByKeywordAndPriceRange(ctx, "", 0, 500, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ring r1", "Necklace"}, names(products))
}

func TestSQLiteStore_ExcludesOutOfStock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sold := ring("sold", 100)
	sold.InStock = false
	seed(t, store, sold, ring("ok", 150))

	products, err := store.FindByKeywordAndPriceRange(ctx, "ring", 0, 10000, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ring ok"}, names(products))
}

func TestSQLiteStore_LikeWildcardsAreLiteral(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store, ring("r1", 100))

	products, err := store.FindByKeywordAndPriceRange(ctx, "%", 0, 10000, 0, 6)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSQLiteStore_PaginationIsStable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i := 0; i < 14; i++ {
		seed(t, store, ring(fmt.Sprintf("r%02d", i), float64(100+i*10)))
	}
	// equal prices fall back to id order
	seed(t, store, ring("tie-a", 100), ring("tie-b", 100))

	seen := map[string]bool{}
	var prev float64
	for offset := 0; offset < 18; offset += 6 {
		page, err := store.FindByKeywordAndPriceRange(ctx, "ring", 0, 10000, offset, 6)
		require.NoError(t, err)
		for _, p := range page {
			assert.False(t, seen[p.ID], "product %s repeated", p.ID)
			seen[p.ID] = true
			assert.GreaterOrEqual(t, p.Price, prev)
			prev = p.Price
		}
	}
	assert.Len(t, seen, 16)
}

func TestSQLiteStore_UpsertReportsNewAndUpdated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.UpsertProduct(ctx, ring("r1", 100))
	require.NoError(t, err)
	assert.True(t, created)

	updated := ring("r1", 250)
	updated.Tags = []string{"silver", "minimal"}
	created, err = store.UpsertProduct(ctx, updated)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	products, err := store.FindByKeywordAndPriceRange(ctx, "ring", 0, 10000, 0, 6)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 250.0, products[0].Price)
	assert.Equal(t, []string{"silver", "minimal"}, products[0].Tags)
}

func TestSQLiteStore_SummarizeByCategory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store,
		ring("r1", 200), ring("r2", 400), ring("r3", 600), ring("r4", 800),
		models.Product{ID: "n1", Name: "Necklace A", Price: 900, Category: "Necklace", InStock: true},
		models.Product{ID: "n2", Name: "Necklace B", Price: 1500, Category: "Necklace", InStock: false},
	)

	summaries, err := store.SummarizeByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "Ring", summaries[0].Category)
	assert.Equal(t, 4, summaries[0].Count)
	assert.Equal(t, 200.0, summaries[0].MinPrice)
	assert.Equal(t, 800.0, summaries[0].MaxPrice)
	assert.Len(t, summaries[0].Samples, 3)
	assert.Equal(t, "Ring r1", summaries[0].Samples[0].Name)

	assert.Equal(t, "Necklace", summaries[1].Category)
	assert.Equal(t, 1, summaries[1].Count)
	assert.Equal(t, 900.0, summaries[1].MaxPrice)
}
