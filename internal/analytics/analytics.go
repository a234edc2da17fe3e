// Package analytics implements the statistical signal functions the
// scheduler evaluates over candle windows: z-score, volatility, ADF
// stationarity, mean-reversion classification, liquidity, hedge ratio,
// correlation, and MACD.
//
// Every function is pure and total: short or degenerate input yields a
// neutral default, never an error.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear annualizes per-sample return volatility.
const tradingDaysPerYear = 252

// ZScore measures how far the latest price sits from the rolling mean, in
// population standard deviations over the trailing window.
func ZScore(prices []float64, window int) float64 {
	if len(prices) < window || window < 1 {
		return 0
	}
	recent := prices[len(prices)-window:]
	mean := stat.Mean(recent, nil)
	std := popStdDev(recent, mean)
	if std == 0 {
		return 0
	}
	return (prices[len(prices)-1] - mean) / std
}

// Volatility is the annualized standard deviation of log returns over the
// trailing window.
func Volatility(prices []float64, window int) float64 {
	if len(prices) < window || window < 2 {
		return 0
	}
	recent := prices[len(prices)-window:]
	returns := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		if recent[i-1] <= 0 || recent[i] <= 0 {
			return 0
		}
		returns = append(returns, math.Log(recent[i]/recent[i-1]))
	}
	mean := stat.Mean(returns, nil)
	return popStdDev(returns, mean) * math.Sqrt(tradingDaysPerYear)
}

// MeanReversionSignal classifies the current z-score into entry/exit
// signals: entry when over-extended (z > 2), exit when reverted (z < 0).
type MeanReversionSignal struct {
	Entry  bool    `json:"entry"`
	Exit   bool    `json:"exit"`
	ZScore float64 `json:"z_score"`
}

// MeanReversion derives trading signals from a z-score.
func MeanReversion(zScore float64) MeanReversionSignal {
	return MeanReversionSignal{
		Entry:  zScore > 2,
		Exit:   zScore < 0,
		ZScore: zScore,
	}
}

// LiquidityScore is the inverse coefficient of variation of volume over the
// trailing window: steadier volume scores higher.
func LiquidityScore(volumes []float64, window int) float64 {
	if len(volumes) < window || window < 1 {
		return 0
	}
	recent := volumes[len(volumes)-window:]
	avg := stat.Mean(recent, nil)
	if avg == 0 {
		return 0
	}
	volOfVol := popStdDev(recent, avg)
	return avg / (volOfVol + 1e-8)
}

// HedgeRatio is the OLS slope of price2 on price1.
func HedgeRatio(price1, price2 []float64) float64 {
	n := len(price1)
	if len(price2) < n {
		n = len(price2)
	}
	if n < 2 {
		return 0
	}
	_, beta := stat.LinearRegression(price1[:n], price2[:n], nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

// Correlation is the Pearson correlation of two equally trimmed series.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	r := stat.Correlation(a[len(a)-n:], b[len(b)-n:], nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// CorrelationMatrix computes pairwise correlations across named price
// series, trimming every series to the shortest length.
func CorrelationMatrix(series map[string][]float64) map[string]map[string]float64 {
	if len(series) == 0 {
		return map[string]map[string]float64{}
	}
	minLen := -1
	for _, s := range series {
		if minLen < 0 || len(s) < minLen {
			minLen = len(s)
		}
	}
	if minLen < 2 {
		return map[string]map[string]float64{}
	}

	trimmed := make(map[string][]float64, len(series))
	for name, s := range series {
		trimmed[name] = s[len(s)-minLen:]
	}

	out := make(map[string]map[string]float64, len(series))
	for s1, a := range trimmed {
		out[s1] = make(map[string]float64, len(series))
		for s2, b := range trimmed {
			if s1 == s2 {
				out[s1][s2] = 1
				continue
			}
			out[s1][s2] = Correlation(a, b)
		}
	}
	return out
}

// popStdDev is the population (biased) standard deviation, matching the
// rolling-statistics convention used throughout the signal definitions.
func popStdDev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
