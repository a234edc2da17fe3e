// Package worker runs the analytics scheduler: a short fixed-interval loop
// that recomputes statistical snapshots for every (symbol, timeframe) pair,
// caches them with a TTL, publishes updates on the bus, and drives alert
// evaluation.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"quantlab/pulse/internal/alert"
	"quantlab/pulse/internal/analytics"
	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
)

// AnalyticsUpdate is the full snapshot event published per recompute.
type AnalyticsUpdate struct {
	Type      string             `json:"type"`
	Symbol    string             `json:"symbol"`
	Timeframe market.Timeframe   `json:"timeframe"`
	Analytics analytics.Snapshot `json:"analytics"`
}

// LiveZScore is the abbreviated companion event for latency-sensitive
// listeners.
type LiveZScore struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	ZScore    float64          `json:"z_score"`
	Timestamp string           `json:"timestamp"`
}

// Worker owns the analytics loop state.
type Worker struct {
	candles  map[market.Timeframe]*store.Set[market.Candle]
	cache    *gocache.Cache
	bus      *bus.Bus
	alerts   *alert.Engine
	symbols  []string
	window   int
	interval time.Duration
	logger   *slog.Logger
}

// New creates the analytics worker. window is the candle count every
// snapshot is computed over; snapshots live in the cache for ttl.
func New(
	candles map[market.Timeframe]*store.Set[market.Candle],
	b *bus.Bus,
	alerts *alert.Engine,
	symbols []string,
	window int,
	interval, ttl time.Duration,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		candles:  candles,
		cache:    gocache.New(ttl, 2*ttl),
		bus:      b,
		alerts:   alerts,
		symbols:  symbols,
		window:   window,
		interval: interval,
		logger:   logger.With("component", "analytics"),
	}
}

// Run executes recompute cycles until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

// runCycle recomputes every pair once. A pair with too little data is
// skipped silently; it will be ready on a later cycle.
func (w *Worker) runCycle() {
	for _, symbol := range w.symbols {
		for _, tf := range market.Timeframes {
			snap, ok := w.compute(symbol, tf)
			if !ok {
				continue
			}

			w.cache.Set(cacheKey(symbol, tf), snap, gocache.DefaultExpiration)

			w.bus.Publish(AnalyticsUpdate{
				Type: "analytics_update", Symbol: symbol, Timeframe: tf, Analytics: snap,
			})
			w.bus.Publish(LiveZScore{
				Type: "live_zscore", Symbol: symbol, Timeframe: tf,
				ZScore: snap.ZScore, Timestamp: snap.Timestamp,
			})

			w.alerts.Evaluate(symbol, snap)
		}
	}
}

// compute builds a snapshot for one pair; ok is false when fewer than
// `window` candles exist (no partial computation).
func (w *Worker) compute(symbol string, tf market.Timeframe) (analytics.Snapshot, bool) {
	candles := w.candles[tf].Get(symbol).Latest(w.window)
	if len(candles) < w.window {
		return analytics.Snapshot{}, false
	}
	return analytics.Compute(symbol, tf, candles, w.window, time.Now().UTC()), true
}

// LatestAnalytics serves the query layer: the cached snapshot when fresh,
// otherwise computed on the spot. ok is false only when there is not yet
// enough data.
func (w *Worker) LatestAnalytics(symbol string, tf market.Timeframe) (analytics.Snapshot, bool) {
	if v, hit := w.cache.Get(cacheKey(symbol, tf)); hit {
		return v.(analytics.Snapshot), true
	}
	snap, ok := w.compute(symbol, tf)
	if !ok {
		return analytics.Snapshot{}, false
	}
	w.cache.Set(cacheKey(symbol, tf), snap, gocache.DefaultExpiration)
	return snap, true
}

func cacheKey(symbol string, tf market.Timeframe) string {
	return fmt.Sprintf("analytics:%s:%s", symbol, tf)
}
