// Package resample implements the cascaded candle aggregation pipeline:
// ticks fold into 1-second candles, 1-second candles into 1-minute candles,
// and 1-minute candles into 5-minute candles. Each stage consumes its
// source log through a per-symbol resumable cursor and publishes every
// candle it emits on the event bus.
package resample

import (
	"errors"
	"fmt"
	"log/slog"

	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
)

// readFunc reads records after cur from one symbol's source log.
type readFunc[S any] func(symbol string, cur store.Cursor, max int) ([]S, store.Cursor, error)

// foldFunc aggregates a non-empty batch into one candle keyed by the last
// record's bucket.
type foldFunc[S any] func(batch []S, tf market.Timeframe) market.Candle

// Stage is one aggregation step of the cascade. The three stages are
// structurally identical and differ only in source granularity, target
// width, minimum batch size, and cadence.
type Stage[S any] struct {
	name      string
	tf        market.Timeframe
	minCount  int
	batchSize int
	symbols   []string

	read readFunc[S]
	fold foldFunc[S]
	out  *store.Set[market.Candle]
	bus  *bus.Bus

	// cursors is touched only from the stage's own scheduling goroutine.
	cursors map[string]store.Cursor

	logger *slog.Logger
}

func newStage[S any](
	name string,
	tf market.Timeframe,
	minCount, batchSize int,
	symbols []string,
	read readFunc[S],
	fold foldFunc[S],
	out *store.Set[market.Candle],
	b *bus.Bus,
	logger *slog.Logger,
) *Stage[S] {
	return &Stage[S]{
		name:      name,
		tf:        tf,
		minCount:  minCount,
		batchSize: batchSize,
		symbols:   symbols,
		read:      read,
		fold:      fold,
		out:       out,
		bus:       b,
		cursors:   make(map[string]store.Cursor),
		logger:    logger.With("stage", name),
	}
}

// RunOnce executes one aggregation pass over every symbol. A failure on one
// symbol is logged and never interrupts the others.
func (s *Stage[S]) RunOnce() {
	for _, symbol := range s.symbols {
		if err := s.runSymbol(symbol); err != nil {
			s.logger.Error("aggregation failed", "symbol", symbol, "error", err)
		}
	}
}

func (s *Stage[S]) runSymbol(symbol string) error {
	cur := s.cursors[symbol]

	batch, next, err := s.read(symbol, cur, s.batchSize)
	if errors.Is(err, store.ErrCursorInvalidated) {
		// Source log was truncated past our position; resume from the
		// oldest retained record.
		s.logger.Warn("cursor invalidated, resetting", "symbol", symbol, "cursor", cur)
		s.cursors[symbol] = store.Start
		batch, next, err = s.read(symbol, store.Start, s.batchSize)
	}
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	if len(batch) == 0 {
		return nil
	}
	if len(batch) < s.minCount {
		// Incomplete window: emit nothing and leave the cursor where it
		// is so the data is still there next run.
		return nil
	}

	candle := s.fold(batch, s.tf)
	s.out.Get(symbol).Append(candle)
	s.cursors[symbol] = next
	s.bus.Publish(market.NewCandleUpdate(symbol, s.tf, candle))
	return nil
}

// foldTicks aggregates trade ticks: open/close by arrival order, high/low
// across prices, volume as the quantity sum. The whole batch becomes one
// candle in the bucket of the last tick — a lagging run folds its backlog
// into a single candle rather than stalling.
func foldTicks(batch []market.Tick, tf market.Timeframe) market.Candle {
	c := market.Candle{
		Bucket: tf.BucketOf(batch[len(batch)-1].EventTime),
		Open:   batch[0].Price,
		High:   batch[0].Price,
		Low:    batch[0].Price,
		Close:  batch[len(batch)-1].Price,
	}
	for _, t := range batch {
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Volume += t.Quantity
	}
	return c
}

// foldCandles rolls finer candles up into a coarser one, keyed by the last
// source candle's bucket.
func foldCandles(batch []market.Candle, tf market.Timeframe) market.Candle {
	last := batch[len(batch)-1]
	c := market.Candle{
		Bucket: tf.BucketOf(float64(last.Bucket)),
		Open:   batch[0].Open,
		High:   batch[0].High,
		Low:    batch[0].Low,
		Close:  last.Close,
	}
	for _, src := range batch {
		if src.High > c.High {
			c.High = src.High
		}
		if src.Low < c.Low {
			c.Low = src.Low
		}
		c.Volume += src.Volume
	}
	return c
}
