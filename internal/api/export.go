package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quantlab/pulse/internal/analytics"
	"quantlab/pulse/internal/market"
)

// Export renders the candle history as CSV, optionally with cumulative
// z-score and volatility columns. The document is returned inline so
// clients can save or stream it as they like.
func (h *Handler) Export(c *gin.Context) {
	symbol := strings.ToLower(c.Param("symbol"))
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	limit := intQuery(c, "limit", 1000, maxLimit)
	withAnalytics := c.DefaultQuery("include_analytics", "false") == "true"

	candles := h.candles[tf].Get(symbol).Latest(limit)

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{"timestamp", "open", "high", "low", "close", "volume"}
	if withAnalytics {
		header = append(header, "z_score", "volatility")
	}
	w.Write(header)

	prices := make([]float64, 0, len(candles))
	for _, cd := range candles {
		prices = append(prices, cd.Close)
		row := []string{
			strconv.FormatInt(cd.Bucket, 10),
			formatPrice(cd.Open),
			formatPrice(cd.High),
			formatPrice(cd.Low),
			formatPrice(cd.Close),
			formatPrice(cd.Volume),
		}
		if withAnalytics {
			row = append(row,
				formatPrice(analytics.ZScore(prices, defaultWindow)),
				formatPrice(analytics.Volatility(prices, defaultWindow)),
			)
		}
		w.Write(row)
	}
	w.Flush()

	c.JSON(http.StatusOK, gin.H{"csv": sb.String(), "rows": len(candles)})
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
