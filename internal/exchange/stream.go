package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
)

// KlineHandler receives live-bar updates. closed is true when the update
// is the bar's final tick.
type KlineHandler func(symbol string, timeframe string, candle market.Candle, closed bool)

// KlineStream subscribes to the futures kline websocket so the live bar
// stays fresh between REST polls. It reconnects with backoff until stopped.
type KlineStream struct {
	wsURL   string
	symbol  string
	tf      string
	handler KlineHandler
	log     *logging.Logger
	stop    chan struct{}
}

// NewKlineStream creates a stream for one symbol/timeframe pair
func NewKlineStream(wsURL, symbol, timeframe string, handler KlineHandler, log *logging.Logger) *KlineStream {
	if wsURL == "" {
		wsURL = "wss://fstream.binance.com"
	}
	return &KlineStream{
		wsURL:   wsURL,
		symbol:  symbol,
		tf:      timeframe,
		handler: handler,
		log:     log.WithComponent("exchange.stream"),
		stop:    make(chan struct{}),
	}
}

// Run connects and processes messages until Stop is called or the context
// ends. Connection failures back off and retry rather than failing the bot.
func (s *KlineStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.consume(ctx); err != nil {
			s.log.Warn("stream disconnected, reconnecting", "symbol", s.symbol, "error", err, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		} else {
			backoff = time.Second
		}
	}
}

// Stop terminates the stream
func (s *KlineStream) Stop() {
	close(s.stop)
}

func (s *KlineStream) consume(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/ws/%s@kline_%s", s.wsURL, strings.ToLower(s.symbol), s.tf)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	s.log.Info("kline stream connected", "symbol", s.symbol, "timeframe", s.tf)

	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg klineMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Debug("skipping unparseable stream message", "error", err)
			continue
		}
		if msg.Kline.OpenTime == 0 {
			continue
		}

		candle := market.Candle{
			OpenTime:  msg.Kline.OpenTime,
			Open:      parsePrice(msg.Kline.Open),
			High:      parsePrice(msg.Kline.High),
			Low:       parsePrice(msg.Kline.Low),
			Close:     parsePrice(msg.Kline.Close),
			Volume:    parsePrice(msg.Kline.Volume),
			CloseTime: msg.Kline.CloseTime,
		}
		s.handler(s.symbol, s.tf, candle, msg.Kline.Closed)
	}
}

type klineMessage struct {
	Kline struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func parsePrice(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
