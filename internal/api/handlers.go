// Package api is the HTTP query layer: thin read-only views over the
// candle stores and analytics cache, plus alert rule CRUD. All endpoints
// return neutral empty payloads, not errors, when data simply is not there
// yet.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quantlab/pulse/internal/alert"
	"quantlab/pulse/internal/analytics"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
	"quantlab/pulse/internal/worker"
)

const (
	defaultLimit  = 100
	maxLimit      = 5000
	defaultWindow = 20
)

// Handler serves the query endpoints.
type Handler struct {
	candles map[market.Timeframe]*store.Set[market.Candle]
	worker  *worker.Worker
	alerts  *alert.Engine
	symbols []string
}

// NewHandler wires the query layer over the shared stores.
func NewHandler(
	candles map[market.Timeframe]*store.Set[market.Candle],
	w *worker.Worker,
	alerts *alert.Engine,
	symbols []string,
) *Handler {
	return &Handler{candles: candles, worker: w, alerts: alerts, symbols: symbols}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) Symbols(c *gin.Context) {
	out := make([]string, len(h.symbols))
	for i, s := range h.symbols {
		out[i] = strings.ToUpper(s)
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out})
}

// Price returns the latest candles for a symbol, oldest first.
func (h *Handler) Price(c *gin.Context) {
	symbol := strings.ToLower(c.Param("symbol"))
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	limit := intQuery(c, "limit", defaultLimit, maxLimit)

	candles := h.candles[tf].Get(symbol).Latest(limit)
	if len(candles) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"prices": []float64{}, "timestamps": []int64{}, "candles": []market.Candle{}, "count": 0,
		})
		return
	}

	prices := make([]float64, len(candles))
	timestamps := make([]int64, len(candles))
	for i, cd := range candles {
		prices[i] = cd.Close
		timestamps[i] = cd.Bucket
	}

	c.JSON(http.StatusOK, gin.H{
		"prices":     prices,
		"timestamps": timestamps,
		"candles":    candles,
		"count":      len(candles),
	})
}

// Analytics returns the cached snapshot for a pair, computing on a cache
// miss. A non-default window bypasses the cache and computes ad hoc. With no
// data yet it returns a zero-valued snapshot rather than an error.
func (h *Handler) Analytics(c *gin.Context) {
	symbol := strings.ToLower(c.Param("symbol"))
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	window := intQuery(c, "window", defaultWindow, 200)

	var (
		snap analytics.Snapshot
		ok   bool
	)
	if window == defaultWindow {
		snap, ok = h.worker.LatestAnalytics(symbol, tf)
	} else {
		candles := h.candles[tf].Get(symbol).Latest(window)
		if len(candles) >= window {
			snap = analytics.Compute(symbol, tf, candles, window, time.Now().UTC())
			ok = true
		}
	}
	if !ok {
		snap = analytics.Snapshot{Symbol: symbol, Timeframe: tf, ADFPValue: 1}
	}
	c.JSON(http.StatusOK, snap)
}

// Correlation returns the pairwise close-price correlation matrix for a
// comma-separated symbol list.
func (h *Handler) Correlation(c *gin.Context) {
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	limit := intQuery(c, "limit", defaultLimit, 1000)

	series := make(map[string][]float64)
	for _, raw := range strings.Split(c.DefaultQuery("symbols", "BTCUSDT,ETHUSDT"), ",") {
		symbol := strings.ToLower(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		candles := h.candles[tf].Get(symbol).Latest(limit)
		if len(candles) == 0 {
			continue
		}
		prices := make([]float64, len(candles))
		for i, cd := range candles {
			prices[i] = cd.Close
		}
		series[symbol] = prices
	}

	c.JSON(http.StatusOK, gin.H{"correlation": analytics.CorrelationMatrix(series)})
}

// StatsTimeseries returns rolling analytics snapshots across the candle
// history, one point per candle once the window is filled.
func (h *Handler) StatsTimeseries(c *gin.Context) {
	symbol := strings.ToLower(c.Param("symbol"))
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	limit := intQuery(c, "limit", 50, 500)
	window := intQuery(c, "window", defaultWindow, 200)

	candles := h.candles[tf].Get(symbol).Latest(limit)

	type point struct {
		Timestamp  int64                `json:"timestamp"`
		Price      float64              `json:"price"`
		ZScore     float64              `json:"z_score"`
		Volatility float64              `json:"volatility"`
		Volume     float64              `json:"volume"`
		MACD       analytics.MACDResult `json:"macd"`
	}

	stats := make([]point, 0, len(candles))
	prices := make([]float64, 0, len(candles))
	for _, cd := range candles {
		prices = append(prices, cd.Close)
		if len(prices) < window {
			continue
		}
		stats = append(stats, point{
			Timestamp:  cd.Bucket,
			Price:      cd.Close,
			ZScore:     analytics.ZScore(prices, window),
			Volatility: analytics.Volatility(prices, window),
			Volume:     cd.Volume,
			MACD:       analytics.MACD(prices, 12, 26, 9),
		})
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// BacktestSignals replays the candle history and reports mean-reversion
// entry/exit points against a configurable z-score threshold.
func (h *Handler) BacktestSignals(c *gin.Context) {
	symbol := strings.ToLower(c.Param("symbol"))
	tf := market.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))

	threshold, err := strconv.ParseFloat(c.DefaultQuery("z_threshold", "2.0"), 64)
	if err != nil || threshold < 0.5 || threshold > 5 {
		threshold = 2.0
	}

	candles := h.candles[tf].Get(symbol).Latest(maxLimit)

	type signal struct {
		Timestamp int64   `json:"timestamp"`
		Price     float64 `json:"price"`
		ZScore    float64 `json:"z_score"`
		Type      string  `json:"type"`
	}

	signals := []signal{}
	prices := make([]float64, 0, len(candles))
	for _, cd := range candles {
		prices = append(prices, cd.Close)
		if len(prices) <= defaultWindow {
			continue
		}
		z := analytics.ZScore(prices, defaultWindow)
		switch {
		case z > threshold:
			signals = append(signals, signal{cd.Bucket, cd.Close, z, "entry"})
		case z < 0:
			signals = append(signals, signal{cd.Bucket, cd.Close, z, "exit"})
		}
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// createAlertRequest is the rule-creation body.
type createAlertRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Metric     string  `json:"metric" binding:"required"`
	Comparator string  `json:"comparator" binding:"required"`
	Threshold  float64 `json:"threshold"`
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.alerts.CreateRule(req.Symbol, req.Metric, req.Comparator, req.Threshold)
	if err != nil {
		if errors.Is(err, alert.ErrInvalidRule) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"alert_id": rule.ID, "status": "created", "rule": rule})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	rules, err := h.alerts.RulesFor(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rules == nil {
		rules = []alert.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rules})
}

func (h *Handler) DeleteAlert(c *gin.Context) {
	id := c.Param("id")
	found, purged, err := h.alerts.DeleteRule(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted":         found,
		"alert_id":        id,
		"purged_triggers": purged,
	})
}

func (h *Handler) ListTriggers(c *gin.Context) {
	limit := intQuery(c, "limit", 50, 500)
	triggers, err := h.alerts.TriggersFor(c.Param("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if triggers == nil {
		triggers = []alert.Trigger{}
	}
	c.JSON(http.StatusOK, triggers)
}

// intQuery parses a bounded positive integer query parameter.
func intQuery(c *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
