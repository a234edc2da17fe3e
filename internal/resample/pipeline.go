package resample

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
)

// Cadence expressions for the coarse stages, aligned to wall-clock
// boundaries (cron with a seconds field).
const (
	minuteBoundary     = "0 * * * * *"
	fiveMinuteBoundary = "0 */5 * * * *"
)

// Stage B and C only emit once a full window of source records is
// available, so a partial window is never aggregated.
const (
	minSourceFor1m = 60
	minSourceFor5m = 5
)

// Pipeline owns the three cascaded stages and their scheduling: a 1-second
// ticker loop for the tick stage and wall-clock-aligned cron entries for
// the minute and five-minute stages.
type Pipeline struct {
	stageA *Stage[market.Tick]
	stageB *Stage[market.Candle]
	stageC *Stage[market.Candle]

	cron   *cron.Cron
	logger *slog.Logger
}

// Stores bundles the pipeline's source and target logs.
type Stores struct {
	Ticks   *store.Set[market.Tick]
	Candles map[market.Timeframe]*store.Set[market.Candle]
}

// NewStores allocates the tick log and one candle log set per timeframe.
func NewStores(tickCapacity, candleCapacity int) *Stores {
	candles := make(map[market.Timeframe]*store.Set[market.Candle], len(market.Timeframes))
	for _, tf := range market.Timeframes {
		candles[tf] = store.NewSet[market.Candle](candleCapacity)
	}
	return &Stores{
		Ticks:   store.NewSet[market.Tick](tickCapacity),
		Candles: candles,
	}
}

// New wires the three stages over the shared stores.
func New(stores *Stores, b *bus.Bus, symbols []string, batchSize int, logger *slog.Logger) *Pipeline {
	logger = logger.With("component", "resample")

	readTicks := func(symbol string, cur store.Cursor, max int) ([]market.Tick, store.Cursor, error) {
		return stores.Ticks.Get(symbol).ReadSince(cur, max)
	}
	readFrom := func(tf market.Timeframe) readFunc[market.Candle] {
		return func(symbol string, cur store.Cursor, max int) ([]market.Candle, store.Cursor, error) {
			return stores.Candles[tf].Get(symbol).ReadSince(cur, max)
		}
	}

	return &Pipeline{
		stageA: newStage("tick-1s", market.TF1s, 1, batchSize, symbols,
			readTicks, foldTicks, stores.Candles[market.TF1s], b, logger),
		stageB: newStage("1s-1m", market.TF1m, minSourceFor1m, batchSize, symbols,
			readFrom(market.TF1s), foldCandles, stores.Candles[market.TF1m], b, logger),
		stageC: newStage("1m-5m", market.TF5m, minSourceFor5m, batchSize, symbols,
			readFrom(market.TF1m), foldCandles, stores.Candles[market.TF5m], b, logger),
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start launches the tick-stage loop and the cron entries. It returns after
// registration; Stop (or ctx cancellation) shuts everything down.
func (p *Pipeline) Start(ctx context.Context) error {
	if _, err := p.cron.AddFunc(minuteBoundary, p.stageB.RunOnce); err != nil {
		return err
	}
	if _, err := p.cron.AddFunc(fiveMinuteBoundary, p.stageC.RunOnce); err != nil {
		return err
	}
	p.cron.Start()

	go p.runTickStage(ctx)

	p.logger.Info("resample pipeline started")
	return nil
}

// Stop halts the cron scheduler. The tick loop exits with its context.
func (p *Pipeline) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("resample pipeline stopped")
}

func (p *Pipeline) runTickStage(ctx context.Context) {
	ticker := time.NewTicker(market.TF1s.Width())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.stageA.RunOnce()
		}
	}
}
