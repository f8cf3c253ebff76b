package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"CrossScan/internal/domain/models"
	drepo "CrossScan/internal/domain/repository"
	applogger "CrossScan/pkg/logger"
	"CrossScan/pkg/util"

	"github.com/gorilla/websocket"
)

// Stream implements a KlineStream backed by the Binance combined stream
// endpoint. One connection carries kline updates for all subscribed symbols.
type Stream struct {
	url            string
	symbols        []string
	timeframe      string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	logger         *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subID     int
}

// NewStream creates a kline stream for the given symbols and timeframe.
func NewStream(url string, symbols []string, timeframe string, reconnectDelay, pingInterval time.Duration, bufferSize int, l *applogger.Logger) drepo.KlineStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Stream{
		url:            url,
		symbols:        symbols,
		timeframe:      timeframe,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		bufferSize:     bufferSize,
		logger:         l,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := strings.TrimRight(s.url, "/") + "/stream"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("binance stream connected", applogger.String("url", u))
	return nil
}

// Subscribe subscribes to kline updates for the configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.connected {
		return fmt.Errorf("binance stream not connected")
	}

	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"@kline_"+s.timeframe)
	}

	s.subID++
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     s.subID,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe klines: %w", err)
	}

	s.logger.Info("binance stream subscribed",
		applogger.Int("streams", len(params)),
		applogger.String("timeframe", s.timeframe),
	)
	return nil
}

type wsKline struct {
	OpenTime int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Final    bool   `json:"x"`
}

type wsKlineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsCombinedFrame struct {
	Stream string       `json:"stream"`
	Data   wsKlineEvent `json:"data"`
}

// Read streams kline events and errors. The error channel receives at most
// one error before the read loop exits; callers drive Reconnect.
func (s *Stream) Read(ctx context.Context) (<-chan *models.KlineEvent, <-chan error) {
	events := make(chan *models.KlineEvent, s.bufferSize)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("binance stream conn nil")
				return
			}

			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance stream read: %w", err)
				return
			}

			ev, ok := decodeKlineFrame(b)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			default:
				// drop on backpressure
			}
		}
	}()

	return events, errs
}

// decodeKlineFrame parses a combined-stream frame into a KlineEvent.
// Subscription acks and non-kline frames return ok=false.
func decodeKlineFrame(b []byte) (*models.KlineEvent, bool) {
	var frame wsCombinedFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return nil, false
	}
	if frame.Data.EventType != "kline" || frame.Data.Symbol == "" {
		return nil, false
	}

	k := frame.Data.Kline
	open, err := util.ParseFloat(k.Open)
	if err != nil {
		return nil, false
	}
	high, err := util.ParseFloat(k.High)
	if err != nil {
		return nil, false
	}
	low, err := util.ParseFloat(k.Low)
	if err != nil {
		return nil, false
	}
	closePx, err := util.ParseFloat(k.Close)
	if err != nil {
		return nil, false
	}
	volume, err := util.ParseFloat(k.Volume)
	if err != nil {
		return nil, false
	}

	return &models.KlineEvent{
		Symbol:    frame.Data.Symbol,
		Timeframe: k.Interval,
		Closed:    k.Final,
		EventTime: time.UnixMilli(frame.Data.EventTime),
		Candle: models.Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePx,
			Volume:   volume,
		},
	}, true
}

// Reconnect closes and reconnects, then resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}

	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates connection status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
