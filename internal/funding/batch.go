package funding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SnapshotCache stores computed snapshots keyed by asset, window and as-of time.
// Implementations must treat backend failures as misses; Batch never fails on them.
type SnapshotCache interface {
	Get(ctx context.Context, asset string, windowDays int, asOf time.Time) (*WindowSnapshot, bool)
	Put(ctx context.Context, snap WindowSnapshot)
}

// BatchConfig controls the per-asset fan-out
type BatchConfig struct {
	Windows []int `yaml:"windows" default:"[7,30,90]" validate:"min=1,dive,gt=0"`
	Workers int   `yaml:"workers" default:"8" validate:"gte=1"`
}

// Batch computes window snapshots for many assets concurrently. Assets are
// independent, so this is the one place the engine fans out.
type Batch struct {
	config BatchConfig
	cache  SnapshotCache
}

// NewBatch creates a batch computer; cache may be nil
func NewBatch(config BatchConfig, cache SnapshotCache) *Batch {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Batch{config: config, cache: cache}
}

// Run computes snapshots for every asset in series, sorted by asset then window
func (b *Batch) Run(ctx context.Context, series map[string][]Print) ([]WindowSnapshot, error) {
	assets := make([]string, 0, len(series))
	for asset := range series {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var (
		mu      sync.Mutex
		results = make(map[string][]WindowSnapshot, len(assets))
		hits    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Workers)

	for _, asset := range assets {
		asset := asset
		prints := series[asset]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snaps, cached := b.computeAsset(gctx, asset, prints)
			mu.Lock()
			results[asset] = snaps
			hits += cached
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute funding metrics: %w", err)
	}

	out := make([]WindowSnapshot, 0, len(assets)*len(b.config.Windows))
	for _, asset := range assets {
		out = append(out, results[asset]...)
	}

	log.Debug().
		Int("assets", len(assets)).
		Int("snapshots", len(out)).
		Int("cache_hits", hits).
		Msg("Funding metric batch complete")

	return out, nil
}

func (b *Batch) computeAsset(ctx context.Context, asset string, prints []Print) ([]WindowSnapshot, int) {
	var asOf time.Time
	for _, p := range prints {
		if p.Timestamp.After(asOf) {
			asOf = p.Timestamp
		}
	}

	snaps := make([]WindowSnapshot, 0, len(b.config.Windows))
	missing := make([]int, 0, len(b.config.Windows))
	hits := 0

	if b.cache != nil && len(prints) > 0 {
		for _, w := range b.config.Windows {
			if snap, ok := b.cache.Get(ctx, asset, w, asOf); ok {
				snaps = append(snaps, *snap)
				hits++
				continue
			}
			missing = append(missing, w)
		}
	} else {
		missing = append(missing, b.config.Windows...)
	}

	if len(missing) > 0 {
		computed := ComputeMetricsForWindows(prints, missing)
		for i := range computed {
			computed[i].AssetID = asset
			if b.cache != nil && len(prints) > 0 {
				b.cache.Put(ctx, computed[i])
			}
		}
		snaps = append(snaps, computed...)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].WindowDays < snaps[j].WindowDays })
	return snaps, hits
}
