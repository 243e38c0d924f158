package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// miniTicker payload; the close price arrives as a string.
type miniTickerEvent struct {
	Close string `json:"c"`
}

// StreamProvider keeps the most recent tick from the exchange websocket
// stream and serves it as a price candidate while it is fresh. A stale or
// never-connected stream simply reports an error and the aggregator moves on.
type StreamProvider struct {
	url    string
	maxAge time.Duration

	mu       sync.RWMutex
	last     float64
	lastSeen time.Time
}

func NewStreamProvider(url string, maxAge time.Duration) *StreamProvider {
	return &StreamProvider{url: url, maxAge: maxAge}
}

func (s *StreamProvider) Name() string { return "exchange_stream" }

func (s *StreamProvider) FetchPrice(_ context.Context, _ string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last <= 0 {
		return 0, fmt.Errorf("stream has not delivered a tick yet")
	}
	if age := time.Since(s.lastSeen); age > s.maxAge {
		return 0, fmt.Errorf("stream tick is stale (%s old)", age.Round(time.Second))
	}
	return s.last, nil
}

// Run consumes the stream until ctx is cancelled, reconnecting with a fixed
// delay on any failure. Intended to be started once as a goroutine.
func (s *StreamProvider) Run(ctx context.Context) {
	const reconnectDelay = 5 * time.Second

	for {
		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("price stream disconnected, will reconnect")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *StreamProvider) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	logger.WithField("url", s.url).Info("price stream connected")

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ev miniTickerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.WithError(err).Debug("skipping unparseable stream message")
			continue
		}

		price, err := strconv.ParseFloat(ev.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		s.mu.Lock()
		s.last = price
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}
}
