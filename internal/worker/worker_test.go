package worker

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"quantlab/pulse/internal/alert"
	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/resample"
)

func newTestWorker(t *testing.T, window int) (*Worker, *resample.Stores, *bus.Bus, *alert.Engine) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	stores := resample.NewStores(100, 100)
	b := bus.New(logger)
	engine, err := alert.Open(filepath.Join(t.TempDir(), "alerts.db"), time.Hour, logger)
	if err != nil {
		t.Fatalf("open alert engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	w := New(stores.Candles, b, engine, []string{"btcusdt"}, window, 500*time.Millisecond, 5*time.Minute, logger)
	return w, stores, b, engine
}

func fillCandles(stores *resample.Stores, tf market.Timeframe, symbol string, n int) {
	log := stores.Candles[tf].Get(symbol)
	for i := 0; i < n; i++ {
		log.Append(market.Candle{
			Bucket: int64(i) * tf.Seconds(),
			Open:   100, High: 101, Low: 99,
			Close:  100 + float64(i%5),
			Volume: 2,
		})
	}
}

func TestCycleSkipsPairsBelowWindow(t *testing.T) {
	w, stores, b, _ := newTestWorker(t, 20)
	ch, cancel := b.Subscribe()
	defer cancel()

	fillCandles(stores, market.TF1s, "btcusdt", 19)
	w.runCycle()

	select {
	case msg := <-ch:
		t.Fatalf("published with insufficient window: %s", msg)
	default:
	}

	if _, ok := w.compute("btcusdt", market.TF1s); ok {
		t.Error("compute succeeded below window")
	}
}

func TestCyclePublishesBothEvents(t *testing.T) {
	w, stores, b, _ := newTestWorker(t, 20)
	ch, cancel := b.Subscribe()
	defer cancel()

	fillCandles(stores, market.TF1s, "btcusdt", 20)
	w.runCycle()

	types := map[string]int{}
	for {
		select {
		case msg := <-ch:
			var evt struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &evt); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			types[evt.Type]++
		default:
			if types["analytics_update"] != 1 || types["live_zscore"] != 1 {
				t.Errorf("event counts = %v, want one analytics_update and one live_zscore", types)
			}
			return
		}
	}
}

func TestLatestAnalyticsComputesOnMiss(t *testing.T) {
	w, stores, _, _ := newTestWorker(t, 20)
	fillCandles(stores, market.TF1m, "btcusdt", 25)

	// Nothing cached yet: must compute.
	snap, ok := w.LatestAnalytics("btcusdt", market.TF1m)
	if !ok {
		t.Fatal("expected snapshot with 25 candles available")
	}
	if snap.Symbol != "btcusdt" || snap.Timeframe != market.TF1m {
		t.Errorf("snapshot identity = %s/%s", snap.Symbol, snap.Timeframe)
	}
	if snap.CandlesCount != 20 {
		t.Errorf("snapshot computed over %d candles, want window of 20", snap.CandlesCount)
	}

	// Second call is served from cache and identical.
	cached, ok := w.LatestAnalytics("btcusdt", market.TF1m)
	if !ok || cached.Timestamp != snap.Timestamp {
		t.Error("cache miss on immediate re-read")
	}
}

func TestLatestAnalyticsNoData(t *testing.T) {
	w, _, _, _ := newTestWorker(t, 20)
	if _, ok := w.LatestAnalytics("btcusdt", market.TF5m); ok {
		t.Error("expected no snapshot for empty store")
	}
}

func TestCycleDrivesAlertEvaluation(t *testing.T) {
	w, stores, _, engine := newTestWorker(t, 20)

	if _, err := engine.CreateRule("btcusdt", alert.MetricPrice, alert.CompareAbove, 50); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	fillCandles(stores, market.TF1s, "btcusdt", 20)
	w.runCycle()

	triggers, err := engine.TriggersFor("btcusdt", 10)
	if err != nil {
		t.Fatalf("TriggersFor: %v", err)
	}
	// One qualifying timeframe (1s has data) -> one evaluation -> one trigger.
	if len(triggers) != 1 {
		t.Errorf("got %d triggers, want 1", len(triggers))
	}
}
