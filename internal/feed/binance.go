// Package feed ingests the live trade stream: one persistent websocket
// connection to the exchange, normalized into ticks appended to the
// per-symbol tick logs. Ingestion is the only writer of the tick logs and
// publishes nothing on the bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"quantlab/pulse/internal/market"
	"quantlab/pulse/internal/store"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 30 * time.Second
	wsReconnectMin     = 1 * time.Second
	wsReconnectMax     = 30 * time.Second

	// Binance rejects clients sending more than 5 control messages per
	// second; subscribe frames are paced under that.
	subscribeRate = 4
)

// Ingestor maintains the trade-stream connection and appends normalized
// ticks to the tick logs.
type Ingestor struct {
	url     string
	symbols []string
	ticks   *store.Set[market.Tick]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewIngestor creates an ingestor for a static symbol set. Symbols are
// normalized to lower case, the exchange's stream naming convention.
func NewIngestor(url string, symbols []string, ticks *store.Set[market.Tick], logger *slog.Logger) *Ingestor {
	lowered := make([]string, len(symbols))
	for i, s := range symbols {
		lowered[i] = strings.ToLower(s)
	}
	return &Ingestor{
		url:     url,
		symbols: lowered,
		ticks:   ticks,
		limiter: rate.NewLimiter(subscribeRate, 1),
		logger:  logger.With("component", "feed"),
	}
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff after any connection failure. It never returns an
// error from a lost connection — only from shutdown.
func (in *Ingestor) Run(ctx context.Context) error {
	reconnectDelay := wsReconnectMin

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := in.connect(ctx)
		if err == nil {
			reconnectDelay = wsReconnectMin
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		in.logger.Warn("feed disconnected, reconnecting",
			"error", err,
			"delay", reconnectDelay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}

		reconnectDelay *= 2
		if reconnectDelay > wsReconnectMax {
			reconnectDelay = wsReconnectMax
		}
	}
}

// connect establishes a single connection, subscribes, and consumes it
// until it breaks or ctx is cancelled.
func (in *Ingestor) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, in.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	in.logger.Info("feed connected", "url", in.url, "symbols", len(in.symbols))

	conn.SetPongHandler(func(string) error { return nil })

	if err := in.subscribe(ctx, conn); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	return in.readLoop(ctx, conn)
}

// subscribe sends one SUBSCRIBE frame per symbol, paced by the limiter.
func (in *Ingestor) subscribe(ctx context.Context, conn *websocket.Conn) error {
	for i, symbol := range in.symbols {
		if err := in.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := map[string]any{
			"method": "SUBSCRIBE",
			"params": []string{symbol + "@trade"},
			"id":     i + 1,
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (in *Ingestor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	messages := make(chan []byte, 100)
	readErr := make(chan error, 1)

	go func() {
		defer close(messages)
		for {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErr <- err:
				default:
				}
				return
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("read error: %w", err)

		case msg := <-messages:
			tick, ok := ParseTrade(msg)
			if !ok {
				// Malformed or non-trade frame: drop it, keep the
				// connection.
				continue
			}
			in.ticks.Get(tick.Symbol).Append(tick)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// binanceTrade is the exchange's trade event shape. Prices and quantities
// arrive as decimal strings.
type binanceTrade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// ParseTrade normalizes a raw feed message into a tick. The second return
// is false for anything that is not a well-formed trade event (subscribe
// acks, malformed payloads), which callers drop silently.
func ParseTrade(msg []byte) (market.Tick, bool) {
	var raw binanceTrade
	if err := json.Unmarshal(msg, &raw); err != nil {
		return market.Tick{}, false
	}
	if raw.Event != "trade" || raw.Symbol == "" || raw.TradeTime <= 0 {
		return market.Tick{}, false
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return market.Tick{}, false
	}
	quantity, err := strconv.ParseFloat(raw.Quantity, 64)
	if err != nil {
		return market.Tick{}, false
	}

	return market.Tick{
		Symbol:    strings.ToLower(raw.Symbol),
		Price:     price,
		Quantity:  quantity,
		EventTime: float64(raw.TradeTime) / 1000,
	}, true
}
