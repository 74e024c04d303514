package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

func TestShopifyClient_FollowsLinkPagination(t *testing.T) {
	var calls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/admin/api/2024-01/products.json", r.URL.Path)
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		assert.Equal(t, "secret", r.Header.Get("X-Shopify-Access-Token"))

		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?limit=250&page_info=abc123>; rel="next"`, srv.URL))
			fmt.Fprint(w, `{"products":[{"id":1,"title":"Gold Ring","variants":[{"price":"199.00","inventory_quantity":3}]}]}`)
		case "abc123":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?page_info=zzz>; rel="previous"`, srv.URL))
			fmt.Fprint(w, `{"products":[{"id":2,"title":"Pearl Necklace","variants":[{"price":"450.50","inventory_quantity":1}]}]}`)
		default:
			t.Errorf("unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer srv.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: "https://shop.example.com/", AccessToken: "secret"},
		zap.NewNop(), WithBaseURL(srv.URL), WithPageDelay(0))

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Gold Ring", products[0].Title)
	assert.Equal(t, "Pearl Necklace", products[1].Title)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "shop.example.com", client.ShopDomain())
}

func TestShopifyClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: "shop"}, zap.NewNop(), WithBaseURL(srv.URL))
	_, err := client.FetchProducts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestTransformProduct(t *testing.T) {
	sp := ShopifyProduct{
		ID:       42,
		Title:    "Golden Minimal Band",
		BodyHTML: "<p>Simple <strong>everyday</strong> band</p>",
		Handle:   "golden-minimal-band",
		Tags:     "ring, gold , ,minimal",
		Variants: []ShopifyVariant{
			{Price: "349.00", InventoryQuantity: 0},
			{Price: "399.00", InventoryQuantity: 2},
		},
		Images: []ShopifyImage{{Src: "https://cdn.example.com/a.jpg"}},
	}

	p := TransformProduct(sp, "shop.example.com")

	assert.Equal(t, "42", p.ID)
	assert.Equal(t, 349.0, p.Price)
	assert.Equal(t, "Ring", p.Category)
	assert.Equal(t, []string{"ring", "gold", "minimal"}, p.Tags)
	assert.Equal(t, []string{"gold"}, p.Colors)
	assert.Equal(t, "minimal", p.Style)
	assert.Equal(t, "Simple everyday band", p.Description)
	assert.True(t, p.InStock)
	assert.Equal(t, 2, p.Quantity)
	assert.Equal(t, "https://cdn.example.com/a.jpg", p.ImageURL)
	assert.Equal(t, "https://shop.example.com/products/golden-minimal-band", p.URL)
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		title string
		tags  []string
		want  string
	}{
		{"Anything", []string{"ring"}, "Ring"},
		{"Anything", []string{"ring", "necklace"}, "Necklace"},
		{"Kundan Jhumka", nil, "Earring"},
		{"Heart Locket", nil, "Necklace"},
		{"Silver Kada", nil, "Bracelet"},
		{"Stackable Rings", nil, "Ring"},
		{"Gift Card", nil, "Uncategorized"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCategory(tt.title, tt.tags))
		})
	}
}

type staticSource struct {
	products []ShopifyProduct
	err      error
}

func (s *staticSource) FetchProducts(context.Context) ([]ShopifyProduct, error) {
	return s.products, s.err
}

func TestSyncer_UpsertsAndInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache := NewDigestCache(store, time.Hour)
	source := &staticSource{products: []ShopifyProduct{
		{ID: 1, Title: "Gold Ring", Variants: []ShopifyVariant{{Price: "200", InventoryQuantity: 1}}},
		{ID: 2, Title: "Pearl Necklace", Variants: []ShopifyVariant{{Price: "500", InventoryQuantity: 1}}},
	}}
	syncer := NewSyncer(source, store, cache, "shop.example.com", zap.NewNop(), nil)

	before, err := cache.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, before)

	result, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{New: 2, Updated: 0, Total: 2}, result)

	after, err := cache.Summaries(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 2)

	source.products[0].Variants[0].Price = "250"
	result, err = syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{New: 0, Updated: 2, Total: 2}, result)
}

// limitedWriter fails every upsert after the first n
type limitedWriter struct {
	Writer
	n int
}

func (w *limitedWriter) UpsertProduct(ctx context.Context, p models.Product) (bool, error) {
	if w.n == 0 {
		return false, errors.New("disk full")
	}
	w.n--
	return w.Writer.UpsertProduct(ctx, p)
}

func TestSyncer_PartialFailureInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache := NewDigestCache(store, time.Hour)
	source := &staticSource{products: []ShopifyProduct{
		{ID: 1, Title: "Gold Ring", Variants: []ShopifyVariant{{Price: "200", InventoryQuantity: 1}}},
		{ID: 2, Title: "Pearl Necklace", Variants: []ShopifyVariant{{Price: "500", InventoryQuantity: 1}}},
	}}
	syncer := NewSyncer(source, &limitedWriter{Writer: store, n: 1}, cache, "shop.example.com", zap.NewNop(), nil)

	before, err := cache.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, before)

	result, err := syncer.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, result.New)

	after, err := cache.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "Ring", after[0].Category)
}

func TestSyncer_FailureBeforeAnyWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	counting := &failingStore{}
	cache := NewDigestCache(counting, time.Hour)
	source := &staticSource{products: []ShopifyProduct{
		{ID: 1, Title: "Gold Ring", Variants: []ShopifyVariant{{Price: "200", InventoryQuantity: 1}}},
	}}
	syncer := NewSyncer(source, &limitedWriter{n: 0}, cache, "shop", zap.NewNop(), nil)

	_, err := cache.Summaries(ctx)
	require.NoError(t, err)

	_, err = syncer.Run(ctx)
	require.Error(t, err)

	_, err = cache.Summaries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counting.summaries.Load())
}

func TestSyncer_FetchError(t *testing.T) {
	store := newTestStore(t)
	syncer := NewSyncer(&staticSource{err: errors.New("timeout")}, store, nil, "shop", zap.NewNop(), nil)

	_, err := syncer.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	syncer := NewSyncer(&staticSource{}, newTestStore(t), nil, "shop", zap.NewNop(), nil)

	_, err := NewScheduler(syncer, "not a schedule", zap.NewNop())
	assert.Error(t, err)

	s, err := NewScheduler(syncer, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
