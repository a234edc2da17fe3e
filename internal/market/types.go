// Package market defines the core domain types shared by the pipeline:
// ticks, candles, timeframes, and the event payloads published on the bus.
package market

// Tick is a single normalized trade event. Immutable once appended to a
// tick log. Ordered by append sequence, not strictly by EventTime (the feed
// may reorder).
type Tick struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`

	// EventTime is the exchange event time in epoch seconds.
	EventTime float64 `json:"timestamp"`
}

// Candle is an OHLCV aggregate over one time bucket. Bucket is the epoch
// second of the bucket start, aligned to the timeframe width.
type Candle struct {
	Bucket int64   `json:"timestamp"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// CandleUpdate is published on the bus whenever a resampler stage emits a
// new candle.
type CandleUpdate struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candle    Candle    `json:"candle"`
}

// NewCandleUpdate builds a candle_update event payload.
func NewCandleUpdate(symbol string, tf Timeframe, c Candle) CandleUpdate {
	return CandleUpdate{Type: "candle_update", Symbol: symbol, Timeframe: tf, Candle: c}
}
