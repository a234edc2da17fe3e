package analytics

import (
	"math"
	"testing"
	"time"

	"quantlab/pulse/internal/market"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestZScore(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		window int
		want   float64
	}{
		{"short input returns neutral", []float64{1, 2}, 5, 0},
		{"constant prices return zero", []float64{3, 3, 3, 3}, 4, 0},
		// mean=2.5, pop std=sqrt(1.25), last=4 -> (4-2.5)/1.1180 = 1.3416
		{"known window", []float64{1, 2, 3, 4}, 4, 1.3416407865},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZScore(tt.prices, tt.window)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("ZScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolatilityNeutralOnShortOrInvalidInput(t *testing.T) {
	if got := Volatility([]float64{100}, 5); got != 0 {
		t.Errorf("short input: got %v, want 0", got)
	}
	if got := Volatility([]float64{100, 0, 101}, 3); got != 0 {
		t.Errorf("non-positive price: got %v, want 0", got)
	}
}

func TestVolatilityPositiveForMovingPrices(t *testing.T) {
	prices := []float64{100, 102, 99, 104, 101, 103}
	if got := Volatility(prices, len(prices)); got <= 0 {
		t.Errorf("expected positive volatility, got %v", got)
	}
	flat := []float64{100, 100, 100, 100}
	if got := Volatility(flat, 4); got != 0 {
		t.Errorf("flat series: got %v, want 0", got)
	}
}

func TestMeanReversionSignals(t *testing.T) {
	tests := []struct {
		z          float64
		entry, exit bool
	}{
		{2.5, true, false},
		{1.0, false, false},
		{-0.5, false, true},
		{0, false, false},
	}
	for _, tt := range tests {
		sig := MeanReversion(tt.z)
		if sig.Entry != tt.entry || sig.Exit != tt.exit {
			t.Errorf("MeanReversion(%v) = %+v, want entry=%v exit=%v", tt.z, sig, tt.entry, tt.exit)
		}
		if sig.ZScore != tt.z {
			t.Errorf("MeanReversion(%v) z = %v", tt.z, sig.ZScore)
		}
	}
}

func TestADFTest(t *testing.T) {
	t.Run("too short is non-stationary", func(t *testing.T) {
		res := ADFTest([]float64{1, 2})
		if res.IsStationary || res.PValue != 1 {
			t.Errorf("got %+v, want neutral non-stationary", res)
		}
	})

	t.Run("oscillating series is stationary", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100 + float64(i%2) // 100, 101, 100, 101, ...
		}
		res := ADFTest(prices)
		if !res.IsStationary {
			t.Errorf("strongly mean-reverting series not detected: %+v", res)
		}
		if res.Statistic >= adfCritical["5%"] {
			t.Errorf("statistic %v not below 5%% critical value", res.Statistic)
		}
	})

	t.Run("trending series is not stationary", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100 + 2*float64(i)
		}
		res := ADFTest(prices)
		if res.IsStationary {
			t.Errorf("linear trend misclassified as stationary: %+v", res)
		}
	})

	t.Run("constant series is neutral", func(t *testing.T) {
		res := ADFTest([]float64{5, 5, 5, 5, 5})
		if res.IsStationary {
			t.Errorf("degenerate series misclassified: %+v", res)
		}
	})
}

func TestLiquidityScore(t *testing.T) {
	if got := LiquidityScore([]float64{1, 2}, 5); got != 0 {
		t.Errorf("short input: got %v, want 0", got)
	}
	steady := LiquidityScore([]float64{10, 10, 10, 10}, 4)
	choppy := LiquidityScore([]float64{1, 19, 2, 18}, 4)
	if steady <= choppy {
		t.Errorf("steady volume (%v) should score above choppy (%v)", steady, choppy)
	}
}

func TestHedgeRatio(t *testing.T) {
	p1 := []float64{1, 2, 3, 4, 5}
	p2 := []float64{2, 4, 6, 8, 10}
	if got := HedgeRatio(p1, p2); !almostEqual(got, 2, 1e-9) {
		t.Errorf("HedgeRatio = %v, want 2", got)
	}
	if got := HedgeRatio([]float64{1}, []float64{2}); got != 0 {
		t.Errorf("short input: got %v, want 0", got)
	}
}

func TestCorrelationMatrix(t *testing.T) {
	series := map[string][]float64{
		"btcusdt": {1, 2, 3, 4},
		"ethusdt": {2, 4, 6, 8},
		"bnbusdt": {4, 3, 2, 1},
	}
	m := CorrelationMatrix(series)
	if len(m) != 3 {
		t.Fatalf("matrix has %d rows, want 3", len(m))
	}
	if !almostEqual(m["btcusdt"]["btcusdt"], 1, 1e-12) {
		t.Errorf("diagonal = %v, want 1", m["btcusdt"]["btcusdt"])
	}
	if !almostEqual(m["btcusdt"]["ethusdt"], 1, 1e-9) {
		t.Errorf("perfectly correlated pair = %v, want 1", m["btcusdt"]["ethusdt"])
	}
	if !almostEqual(m["btcusdt"]["bnbusdt"], -1, 1e-9) {
		t.Errorf("anti-correlated pair = %v, want -1", m["btcusdt"]["bnbusdt"])
	}

	if got := CorrelationMatrix(map[string][]float64{}); len(got) != 0 {
		t.Errorf("empty input should yield empty matrix, got %v", got)
	}
	if got := CorrelationMatrix(map[string][]float64{"a": {1}}); len(got) != 0 {
		t.Errorf("too-short series should yield empty matrix, got %v", got)
	}
}

func TestMACD(t *testing.T) {
	if got := MACD([]float64{1, 2, 3}, 12, 26, 9); got != (MACDResult{}) {
		t.Errorf("short input should yield zero result, got %+v", got)
	}

	// A rising series keeps the fast EMA above the slow EMA.
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	got := MACD(prices, 12, 26, 9)
	if got.MACD <= 0 {
		t.Errorf("uptrend MACD = %v, want > 0", got.MACD)
	}
}

func TestComputeSnapshot(t *testing.T) {
	candles := make([]market.Candle, 20)
	for i := range candles {
		candles[i] = market.Candle{
			Bucket: int64(i),
			Close:  100 + float64(i%3),
			Volume: 5,
		}
	}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	snap := Compute("btcusdt", market.TF1s, candles, 20, now)

	if snap.Symbol != "btcusdt" || snap.Timeframe != market.TF1s {
		t.Errorf("identity fields wrong: %+v", snap)
	}
	if snap.Price != candles[len(candles)-1].Close {
		t.Errorf("Price = %v, want latest close %v", snap.Price, candles[len(candles)-1].Close)
	}
	if snap.CandlesCount != 20 {
		t.Errorf("CandlesCount = %d, want 20", snap.CandlesCount)
	}
	if snap.AvgVolume != 5 {
		t.Errorf("AvgVolume = %v, want 5", snap.AvgVolume)
	}
	if snap.MeanReversion.ZScore != snap.ZScore {
		t.Errorf("signal z (%v) disagrees with snapshot z (%v)", snap.MeanReversion.ZScore, snap.ZScore)
	}
}
