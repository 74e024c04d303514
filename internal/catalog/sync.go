package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/metrics"
)

// ProductSource yields storefront products
type ProductSource interface {
	FetchProducts(ctx context.Context) ([]ShopifyProduct, error)
}

// SyncResult summarizes one sync run
type SyncResult struct {
	New     int `json:"newCount"`
	Updated int `json:"updatedCount"`
	Total   int `json:"total"`
}

// Syncer copies the storefront catalog into the local store
type Syncer struct {
	source     ProductSource
	writer     Writer
	cache      *DigestCache
	shopDomain string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu sync.Mutex
}

// NewSyncer creates a syncer. cache may be nil.
func NewSyncer(source ProductSource, writer Writer, cache *DigestCache, shopDomain string, logger *zap.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{
		source:     source,
		writer:     writer,
		cache:      cache,
		shopDomain: shopDomain,
		logger:     logger,
		metrics:    m,
	}
}

// Run performs one full sync. Concurrent calls are serialized.
func (s *Syncer) Run(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("🕷️ starting catalog sync")

	products, err := s.source.FetchProducts(ctx)
	if err != nil {
		s.metrics.IncSync("error")
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	result := &SyncResult{Total: len(products)}
	// a partial run still changed the catalog
	defer func() {
		if s.cache != nil && result.New+result.Updated > 0 {
			s.cache.Invalidate()
		}
	}()

	for i, sp := range products {
		created, err := s.writer.UpsertProduct(ctx, TransformProduct(sp, s.shopDomain))
		if err != nil {
			s.metrics.IncSync("error")
			return result, err
		}
		if created {
			result.New++
		} else {
			result.Updated++
		}
		if (i+1)%50 == 0 {
			s.logger.Debug("sync progress", zap.Int("done", i+1), zap.Int("total", len(products)))
		}
	}

	s.metrics.IncSync("ok")
	s.logger.Info("✅ catalog sync done",
		zap.Int("new", result.New),
		zap.Int("updated", result.Updated),
		zap.Int("total", result.Total),
	)
	return result, nil
}

// Scheduler runs the syncer on a cron spec
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler registers syncer.Run under spec, e.g. "@every 60m"
func NewScheduler(syncer *Syncer, spec string, logger *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		logger.Info("🔄 scheduled catalog sync")
		if _, err := syncer.Run(context.Background()); err != nil {
			logger.Error("scheduled catalog sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins running scheduled syncs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("⏰ catalog auto-sync scheduled", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for a running sync to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
