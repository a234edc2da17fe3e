package analytics

// MACDResult is the moving average convergence/divergence triple.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes the MACD line (fast EMA − slow EMA), its signal line (EMA
// of the MACD line), and the histogram. Standard periods are 12/26/9.
// Series shorter than the slow period yield the zero result.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if len(prices) < slow || fast < 1 || slow < 1 || signal < 1 {
		return MACDResult{}
	}

	emaFast := emaSeries(prices, fast)
	emaSlow := emaSeries(prices, slow)

	macdLine := make([]float64, len(prices))
	for i := range prices {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}

	signalLine := emaSeries(macdLine, signal)

	last := len(prices) - 1
	return MACDResult{
		MACD:      macdLine[last],
		Signal:    signalLine[last],
		Histogram: macdLine[last] - signalLine[last],
	}
}

// emaSeries returns the exponential moving average of xs with
// alpha = 2/(span+1), seeded from the first sample.
func emaSeries(xs []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}
