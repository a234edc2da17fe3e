package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ADFResult holds the outcome of an augmented Dickey-Fuller stationarity
// test. PValue defaults to 1 (non-stationary) when the series is too short
// or degenerate.
type ADFResult struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	IsStationary   bool               `json:"is_stationary"`
	CriticalValues map[string]float64 `json:"critical_values"`
}

// Dickey-Fuller critical values for the constant-only regression, large-n
// asymptotics (MacKinnon 1996).
var adfCritical = map[string]float64{
	"1%":  -3.43,
	"5%":  -2.86,
	"10%": -2.57,
}

// adfPTable maps test statistics to p-values for piecewise-linear
// interpolation, anchored on the MacKinnon constant-only surface.
var adfPTable = [][2]float64{
	{-4.5, 0.001},
	{-3.43, 0.01},
	{-3.12, 0.025},
	{-2.86, 0.05},
	{-2.57, 0.10},
	{-2.23, 0.20},
	{-1.62, 0.47},
	{-0.62, 0.85},
	{0.0, 0.95},
	{1.0, 0.997},
}

func neutralADF() ADFResult {
	return ADFResult{Statistic: 0, PValue: 1, IsStationary: false, CriticalValues: map[string]float64{}}
}

// ADFTest runs a Dickey-Fuller unit-root test with a constant term:
// Δy_t = α + γ·y_{t-1} + ε_t. The series is stationary when the null of a
// unit root (γ = 0) is rejected at the 5% level.
func ADFTest(prices []float64) ADFResult {
	n := len(prices)
	if n < 3 {
		return neutralADF()
	}

	lagged := prices[: n-1 : n-1]
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = prices[i] - prices[i-1]
	}

	alpha, gamma := stat.LinearRegression(lagged, diffs, nil, false)
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		return neutralADF()
	}

	// Standard error of the slope from the regression residuals.
	m := float64(len(lagged))
	meanX := stat.Mean(lagged, nil)
	var rss, sxx float64
	for i, x := range lagged {
		resid := diffs[i] - alpha - gamma*x
		rss += resid * resid
		d := x - meanX
		sxx += d * d
	}
	if sxx == 0 || m <= 2 {
		return neutralADF()
	}
	se := math.Sqrt(rss / (m - 2) / sxx)
	if se == 0 {
		return neutralADF()
	}

	tStat := gamma / se
	p := adfPValue(tStat)

	crit := make(map[string]float64, len(adfCritical))
	for k, v := range adfCritical {
		crit[k] = v
	}
	return ADFResult{
		Statistic:      tStat,
		PValue:         p,
		IsStationary:   p < 0.05,
		CriticalValues: crit,
	}
}

// adfPValue interpolates a p-value from the statistic table, clamped to
// [0.001, 0.999].
func adfPValue(t float64) float64 {
	if t <= adfPTable[0][0] {
		return adfPTable[0][1]
	}
	last := adfPTable[len(adfPTable)-1]
	if t >= last[0] {
		return 0.999
	}
	for i := 1; i < len(adfPTable); i++ {
		lo, hi := adfPTable[i-1], adfPTable[i]
		if t <= hi[0] {
			frac := (t - lo[0]) / (hi[0] - lo[0])
			return lo[1] + frac*(hi[1]-lo[1])
		}
	}
	return 0.999
}
