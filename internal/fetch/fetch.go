// Package fetch bulk-resolves a table's addresses to coordinates against the
// geocoding provider, under a request rate budget and a bounded number of
// in-flight requests.
package fetch

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geomatch-cli/internal/store"
	"github.com/sells-group/geomatch-cli/internal/table"
	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

// DefaultMaxConcurrency caps simultaneously in-flight geocode requests.
const DefaultMaxConcurrency = 30

// rowResult is the resolution of a single row. Unresolved rows carry NaN
// coordinates and an empty address.
type rowResult struct {
	lat  float64
	lng  float64
	addr string
}

func unresolved() rowResult {
	return rowResult{lat: math.NaN(), lng: math.NaN()}
}

// Fetcher resolves every row of a table to coordinates.
type Fetcher struct {
	client         geocode.Client
	cache          *store.Store // optional; nil disables caching
	maxConcurrency int

	completed atomic.Int64
	quotaOnce sync.Once
	quotaHit  atomic.Bool
}

// New creates a Fetcher. cache may be nil to disable the geocode cache.
func New(client geocode.Client, cache *store.Store, maxConcurrency int) *Fetcher {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Fetcher{
		client:         client,
		cache:          cache,
		maxConcurrency: maxConcurrency,
	}
}

// Completed returns the number of rows resolved so far. It increases
// monotonically during Fetch and may be read concurrently for progress
// display; completion order is unrelated to row order.
func (f *Fetcher) Completed() int64 {
	return f.completed.Load()
}

// QuotaExhausted reports whether the provider signalled quota exhaustion at
// any point during the last fetch.
func (f *Fetcher) QuotaExhausted() bool {
	return f.quotaHit.Load()
}

// Fetch resolves every row of t, populating the coordinate pair and
// appending a norm_address column with the provider's canonical address.
// Row count is unchanged; rows that fail to resolve (blank address, network
// error, no result, quota) become NaN/empty rather than aborting the batch.
// The augmented table is also written to "<base>_coords.csv" in the source's
// field delimiter.
func (f *Fetcher) Fetch(ctx context.Context, t *table.Table) error {
	if !t.ReadyToFetch() {
		return eris.New("fetch: addr1, city, and state must be bound")
	}

	rows := t.Rows()
	started := time.Now()
	f.completed.Store(0)
	f.quotaHit.Store(false)
	f.quotaOnce = sync.Once{}

	zap.L().Info("fetching coordinates",
		zap.String("source", t.Path),
		zap.Int("rows", rows),
		zap.Int("max_concurrency", f.maxConcurrency),
	)

	results := make([]rowResult, rows)
	var cacheHits atomic.Int64

	// One task per row. SetLimit is the counting admission gate bounding
	// in-flight requests; the geocode client's own rate limiter throttles
	// request submission. Tasks never return an error: a row failure
	// degrades to the unresolved sentinel so siblings keep going.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrency)

	for row := 0; row < rows; row++ {
		addr := t.Address(row)
		g.Go(func() error {
			defer f.completed.Add(1)
			results[row] = f.resolve(gCtx, addr, &cacheHits)
			return nil
		})
	}
	_ = g.Wait()

	lat := make([]float64, rows)
	lng := make([]float64, rows)
	normAddrs := make([]string, rows)
	resolvedCount := 0
	for row, r := range results {
		lat[row] = r.lat
		lng[row] = r.lng
		normAddrs[row] = r.addr
		if !math.IsNaN(r.lat) {
			resolvedCount++
		}
	}
	t.SetCoords(lat, lng)
	t.AddColumn("norm_address", normAddrs)

	outPath := coordsPath(t.Path)
	zap.L().Info("writing fetch output",
		zap.String("path", outPath),
		zap.Int("resolved", resolvedCount),
		zap.Int64("cache_hits", cacheHits.Load()),
	)
	if err := t.WriteCSV(outPath); err != nil {
		return err
	}

	if f.cache != nil {
		_, err := f.cache.RecordRun(ctx, store.RunSummary{
			SourcePath:     t.Path,
			Rows:           rows,
			Resolved:       resolvedCount,
			CacheHits:      int(cacheHits.Load()),
			QuotaExhausted: f.quotaHit.Load(),
			StartedAt:      started,
			FinishedAt:     time.Now(),
		})
		if err != nil {
			zap.L().Warn("fetch: record run", zap.Error(err))
		}
	}

	return nil
}

// resolve geocodes one address, consulting the cache first. Every failure
// path degrades to the unresolved sentinel.
func (f *Fetcher) resolve(ctx context.Context, addr string, cacheHits *atomic.Int64) rowResult {
	if addr == "" {
		return unresolved()
	}

	if f.cache != nil {
		cached, ok, err := f.cache.LookupAddress(ctx, addr)
		if err != nil {
			zap.L().Warn("fetch: cache lookup", zap.Error(err))
		} else if ok {
			cacheHits.Add(1)
			if !cached.Matched {
				return unresolved()
			}
			return rowResult{lat: cached.Lat, lng: cached.Lng, addr: cached.FormattedAddress}
		}
	}

	result, err := f.client.Geocode(ctx, addr)
	if err != nil {
		if eris.Is(err, geocode.ErrQuotaExceeded) {
			f.quotaHit.Store(true)
			f.quotaOnce.Do(func() {
				zap.L().Warn("fetch: provider quota exhausted, remaining rows resolve as unknown")
			})
		} else {
			zap.L().Debug("fetch: row unresolved", zap.String("address", addr), zap.Error(err))
		}
		return unresolved()
	}

	if f.cache != nil {
		storeErr := f.cache.StoreAddress(ctx, addr, store.CachedResult{
			Lat:              result.Lat,
			Lng:              result.Lng,
			FormattedAddress: result.FormattedAddress,
			Matched:          result.Matched,
		})
		if storeErr != nil {
			zap.L().Warn("fetch: cache store", zap.Error(storeErr))
		}
	}

	if !result.Matched {
		return unresolved()
	}
	return rowResult{lat: result.Lat, lng: result.Lng, addr: result.FormattedAddress}
}

// coordsPath derives the fetch output artifact from the source file name.
func coordsPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_coords.csv"
}
