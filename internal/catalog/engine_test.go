package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

type failingStore struct {
	err       error
	summaries atomic.Int32
}

func (f *failingStore) FindByKeywordAndPriceRange(context.Context, string, int, int, int, int) ([]models.Product, error) {
	return nil, f.err
}

func (f *failingStore) SummarizeByCategory(context.Context) ([]CategorySummary, error) {
	f.summaries.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []CategorySummary{{Category: "Ring", Count: 1}}, nil
}

func TestEngine_RingsUnderFiveHundred(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, ring("r200", 200), ring("r400", 400), ring("r600", 600))
	engine := NewEngine(store, zap.NewNop(), nil)

	products, err := engine.Search(context.Background(), models.Directive{Search: "ring", MinPrice: 0, MaxPrice: 500}, 0)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 200.0, products[0].Price)
	assert.Equal(t, 400.0, products[1].Price)
}

func TestEngine_GenericTermBypassesKeyword(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		ring("r1", 300),
		models.Product{ID: "n1", Name: "Necklace", Price: 250, Category: "Necklace", InStock: true},
		models.Product{ID: "n2", Name: "Long Necklace", Price: 700, Category: "Necklace", InStock: true},
	)
	engine := NewEngine(store, zap.NewNop(), nil)

	for _, term := range []string{"all", "Items", " products ", "everything"} {
		products, err := engine.Search(context.Background(), models.Directive{Search: term, MaxPrice: 500}, 0)
		require.NoError(t, err, term)
		assert.Equal(t, []string{"Necklace", "Ring r1"}, names(products), term)
	}
}

func TestEngine_OutOfOrderBoundsReturnEmpty(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, ring("r1", 300))
	engine := NewEngine(store, zap.NewNop(), nil)

	products, err := engine.Search(context.Background(), models.Directive{Search: "ring", MinPrice: 900, MaxPrice: 100}, 0)
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestEngine_NoMatchIsEmptyNotError(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, ring("r1", 300))
	engine := NewEngine(store, zap.NewNop(), nil)

	products, err := engine.Search(context.Background(), models.Directive{Search: "ring", MinPrice: 100000, MaxPrice: 100001}, 0)
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestEngine_PagesAreBoundedAndDisjoint(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 13; i++ {
		seed(t, store, ring(fmt.Sprintf("r%02d", i), float64(100+i)))
	}
	engine := NewEngine(store, zap.NewNop(), nil)
	d := models.Directive{Search: "ring", MaxPrice: DefaultMaxPrice}

	first, err := engine.Search(context.Background(), d, 0)
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), d, PageSize)
	require.NoError(t, err)
	third, err := engine.Search(context.Background(), d, 2*PageSize)
	require.NoError(t, err)

	assert.Len(t, first, PageSize)
	assert.Len(t, second, PageSize)
	assert.Len(t, third, 1)
	for _, p := range second {
		assert.NotContains(t, names(first), p.Name)
	}
}

func TestEngine_NegativeOffsetStartsAtZero(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, ring("r1", 100))
	engine := NewEngine(store, zap.NewNop(), nil)

	products, err := engine.Search(context.Background(), models.Directive{Search: "ring", MaxPrice: 500}, -4)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	engine := NewEngine(&failingStore{err: boom}, zap.NewNop(), nil)

	_, err := engine.Search(context.Background(), models.Directive{Search: "ring", MaxPrice: 500}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestIsGenericTerm(t *testing.T) {
	assert.True(t, IsGenericTerm("ALL"))
	assert.True(t, IsGenericTerm("jewellery"))
	assert.False(t, IsGenericTerm("ring"))
	assert.False(t, IsGenericTerm(""))
}

func TestDigestCache_CachesUntilInvalidated(t *testing.T) {
	store := &failingStore{}
	cache := NewDigestCache(store, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	_, err := cache.Summaries(context.Background())
	require.NoError(t, err)
	_, err = cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.summaries.Load())

	cache.Invalidate()
	_, err = cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.summaries.Load())

	now = now.Add(2 * time.Minute)
	_, err = cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, store.summaries.Load())
}

func TestDigestCache_ZeroTTLAlwaysReloads(t *testing.T) {
	store := &failingStore{}
	cache := NewDigestCache(store, 0)

	for i := 0; i < 3; i++ {
		_, err := cache.Summaries(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, store.summaries.Load())
}

func TestDigestCache_ErrorIsNotCached(t *testing.T) {
	store := &failingStore{err: errors.New("down")}
	cache := NewDigestCache(store, time.Minute)

	_, err := cache.Summaries(context.Background())
	require.Error(t, err)

	store.err = nil
	summaries, err := cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

// blockingStore holds the first summary load until release is closed
type blockingStore struct {
	failingStore
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) SummarizeByCategory(ctx context.Context) ([]CategorySummary, error) {
	if b.summaries.Load() == 0 {
		close(b.started)
		<-b.release
	}
	return b.failingStore.SummarizeByCategory(ctx)
}

func TestDigestCache_InvalidateDuringLoadDropsResult(t *testing.T) {
	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	cache := NewDigestCache(store, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := cache.Summaries(context.Background())
		done <- err
	}()

	<-store.started
	cache.Invalidate()
	close(store.release)
	require.NoError(t, <-done)

	_, err := cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.summaries.Load())

	_, err = cache.Summaries(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.summaries.Load())
}
