package analytics

import (
	"time"

	"quantlab/pulse/internal/market"
)

// Snapshot is a point-in-time analytics result for one (symbol, timeframe)
// pair. Snapshots are transient: cached with a short TTL, never retained
// historically.
type Snapshot struct {
	Timestamp     string              `json:"timestamp"`
	Symbol        string              `json:"symbol"`
	Timeframe     market.Timeframe    `json:"timeframe"`
	Price         float64             `json:"price"`
	ZScore        float64             `json:"z_score"`
	Volatility    float64             `json:"volatility"`
	MeanPrice     float64             `json:"mean_price"`
	StdDev        float64             `json:"std_dev"`
	ADFPValue     float64             `json:"adf_pvalue"`
	IsStationary  bool                `json:"is_stationary"`
	MeanReversion MeanReversionSignal `json:"mean_reversion"`
	CandlesCount  int                 `json:"candles_count"`
	AvgVolume     float64             `json:"avg_volume"`
}

// Compute assembles a full snapshot from a candle window. The window must
// hold at least `window` candles; callers gate on that before calling.
func Compute(symbol string, tf market.Timeframe, candles []market.Candle, window int, now time.Time) Snapshot {
	prices := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
		volumes[i] = c.Volume
	}

	recent := prices
	recentVol := volumes
	if len(prices) > window {
		recent = prices[len(prices)-window:]
		recentVol = volumes[len(volumes)-window:]
	}

	z := ZScore(prices, window)
	adf := ADFTest(recent)
	mean := meanOf(recent)

	return Snapshot{
		Timestamp:     now.Format(time.RFC3339Nano),
		Symbol:        symbol,
		Timeframe:     tf,
		Price:         prices[len(prices)-1],
		ZScore:        z,
		Volatility:    Volatility(prices, window),
		MeanPrice:     mean,
		StdDev:        popStdDev(recent, mean),
		ADFPValue:     adf.PValue,
		IsStationary:  adf.IsStationary,
		MeanReversion: MeanReversion(z),
		CandlesCount:  len(candles),
		AvgVolume:     meanOf(recentVol),
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
