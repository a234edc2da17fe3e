package resample

import (
	"log/slog"
	"strings"
	"testing"

	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func tickStage(t *testing.T, ticks *store.Set[market.Tick], out *store.Set[market.Candle], b *bus.Bus) *Stage[market.Tick] {
	t.Helper()
	read := func(symbol string, cur store.Cursor, max int) ([]market.Tick, store.Cursor, error) {
		return ticks.Get(symbol).ReadSince(cur, max)
	}
	return newStage("tick-1s", market.TF1s, 1, 1000, []string{"btcusdt"},
		read, foldTicks, out, b, testLogger())
}

func candleStage(t *testing.T, src *store.Set[market.Candle], out *store.Set[market.Candle], b *bus.Bus, tf market.Timeframe, minCount int) *Stage[market.Candle] {
	t.Helper()
	read := func(symbol string, cur store.Cursor, max int) ([]market.Candle, store.Cursor, error) {
		return src.Get(symbol).ReadSince(cur, max)
	}
	return newStage(string(tf), tf, minCount, 1000, []string{"btcusdt"},
		read, foldCandles, out, b, testLogger())
}

func TestTickFoldOHLCV(t *testing.T) {
	ticks := store.NewSet[market.Tick](100)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	stage := tickStage(t, ticks, out, b)

	base := 1700000000.0
	for _, tk := range []market.Tick{
		{Symbol: "btcusdt", Price: 100, Quantity: 1, EventTime: base},
		{Symbol: "btcusdt", Price: 102, Quantity: 1, EventTime: base + 0.5},
		{Symbol: "btcusdt", Price: 101, Quantity: 1, EventTime: base + 0.9},
	} {
		ticks.Get("btcusdt").Append(tk)
	}

	stage.RunOnce()

	candles := out.Get("btcusdt").Latest(10)
	if len(candles) != 1 {
		t.Fatalf("emitted %d candles, want 1", len(candles))
	}
	c := candles[0]
	if c.Open != 100 || c.High != 102 || c.Low != 100 || c.Close != 101 || c.Volume != 3 {
		t.Errorf("candle = %+v, want open=100 high=102 low=100 close=101 volume=3", c)
	}
	if c.Bucket != int64(base) {
		t.Errorf("bucket = %d, want %d", c.Bucket, int64(base))
	}
}

func TestRunWithNoNewDataIsIdempotent(t *testing.T) {
	ticks := store.NewSet[market.Tick](100)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	stage := tickStage(t, ticks, out, b)

	ticks.Get("btcusdt").Append(market.Tick{Symbol: "btcusdt", Price: 50, Quantity: 2, EventTime: 1000})
	stage.RunOnce()

	curBefore := stage.cursors["btcusdt"]
	stage.RunOnce()
	stage.RunOnce()

	if got := out.Get("btcusdt").Len(); got != 1 {
		t.Errorf("re-running without new data emitted candles: len=%d, want 1", got)
	}
	if stage.cursors["btcusdt"] != curBefore {
		t.Errorf("cursor moved without new data: %d -> %d", curBefore, stage.cursors["btcusdt"])
	}
}

func TestMinimumSourceCountGate(t *testing.T) {
	src := store.NewSet[market.Candle](200)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	stage := candleStage(t, src, out, b, market.TF1m, 60)

	for i := 0; i < 59; i++ {
		src.Get("btcusdt").Append(market.Candle{
			Bucket: int64(1700000000 + i), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1,
		})
	}
	stage.RunOnce()

	if got := out.Get("btcusdt").Len(); got != 0 {
		t.Fatalf("59 source candles must emit nothing, got %d", got)
	}
	if stage.cursors["btcusdt"] != store.Start {
		t.Fatalf("cursor advanced on a skipped run: %d", stage.cursors["btcusdt"])
	}

	// The 60th source candle completes the window.
	src.Get("btcusdt").Append(market.Candle{
		Bucket: 1700000059, Open: 1, High: 3, Low: 0.25, Close: 2, Volume: 1,
	})
	stage.RunOnce()

	candles := out.Get("btcusdt").Latest(10)
	if len(candles) != 1 {
		t.Fatalf("60 source candles should emit one candle, got %d", len(candles))
	}
	c := candles[0]
	if c.High != 3 || c.Low != 0.25 || c.Close != 2 || c.Volume != 60 {
		t.Errorf("rolled-up candle = %+v", c)
	}
	if c.Bucket%60 != 0 {
		t.Errorf("bucket %d not aligned to minute boundary", c.Bucket)
	}
}

func TestCursorResetRecoversAfterTruncation(t *testing.T) {
	ticks := store.NewSet[market.Tick](4)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	stage := tickStage(t, ticks, out, b)

	ticks.Get("btcusdt").Append(market.Tick{Symbol: "btcusdt", Price: 10, Quantity: 1, EventTime: 100})
	stage.RunOnce()

	// Truncate well past the stage's cursor.
	for i := 0; i < 10; i++ {
		ticks.Get("btcusdt").Append(market.Tick{Symbol: "btcusdt", Price: 20, Quantity: 1, EventTime: float64(200 + i)})
	}
	stage.RunOnce()

	if got := out.Get("btcusdt").Len(); got != 2 {
		t.Fatalf("stage did not recover after truncation: %d candles, want 2", got)
	}

	// And it keeps making progress on fresh ticks afterwards.
	ticks.Get("btcusdt").Append(market.Tick{Symbol: "btcusdt", Price: 30, Quantity: 1, EventTime: 300})
	stage.RunOnce()
	if got := out.Get("btcusdt").Len(); got != 3 {
		t.Errorf("no progress after recovery: %d candles, want 3", got)
	}
}

func TestBacklogFoldsIntoLastBucket(t *testing.T) {
	ticks := store.NewSet[market.Tick](100)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	stage := tickStage(t, ticks, out, b)

	// Ticks spanning three distinct seconds, processed in one lagging run.
	for i, price := range []float64{100, 105, 95} {
		ticks.Get("btcusdt").Append(market.Tick{
			Symbol: "btcusdt", Price: price, Quantity: 1, EventTime: float64(1000 + i),
		})
	}
	stage.RunOnce()

	candles := out.Get("btcusdt").Latest(10)
	if len(candles) != 1 {
		t.Fatalf("backlog should fold into one candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Bucket != 1002 {
		t.Errorf("bucket = %d, want last tick's bucket 1002", c.Bucket)
	}
	if c.Open != 100 || c.High != 105 || c.Low != 95 || c.Close != 95 || c.Volume != 3 {
		t.Errorf("folded candle = %+v", c)
	}
}

func TestCandleUpdatePublishedOnEmit(t *testing.T) {
	ticks := store.NewSet[market.Tick](100)
	out := store.NewSet[market.Candle](100)
	b := bus.New(testLogger())
	ch, cancel := b.Subscribe()
	defer cancel()

	stage := tickStage(t, ticks, out, b)
	ticks.Get("btcusdt").Append(market.Tick{Symbol: "btcusdt", Price: 10, Quantity: 1, EventTime: 100})
	stage.RunOnce()

	select {
	case msg := <-ch:
		if want := `"type":"candle_update"`; !strings.Contains(string(msg), want) {
			t.Errorf("event %s missing %s", msg, want)
		}
	default:
		t.Error("no event published for emitted candle")
	}
}
