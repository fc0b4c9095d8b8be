package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsReconnectDelay is the base delay before attempting to reconnect.
	wsReconnectDelay = 2 * time.Second

	// wsMaxReconnectDelay caps the exponential backoff.
	wsMaxReconnectDelay = 60 * time.Second
)

// QuoteStream keeps the latest book pushed by a sidecar's websocket.
type QuoteStream struct {
	url    string
	broker domain.BrokerID
	logger *slog.Logger

	mu      sync.RWMutex
	quotes  []domain.Quote
	updated time.Time
}

// NewQuoteStream creates a stream reader for wsURL.
func NewQuoteStream(wsURL string, broker domain.BrokerID, logger *slog.Logger) *QuoteStream {
	return &QuoteStream{
		url:    wsURL,
		broker: broker,
		logger: logger.With(slog.String("component", "bridge_ws"), slog.String("broker", string(broker))),
	}
}

// Latest returns the last book if it was received within maxAge.
func (s *QuoteStream) Latest(maxAge time.Duration) ([]domain.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updated.IsZero() || time.Since(s.updated) > maxAge {
		return nil, false
	}
	return append([]domain.Quote(nil), s.quotes...), true
}

// Run connects, subscribes to quotes and reads until ctx is cancelled,
// reconnecting with exponential backoff.
func (s *QuoteStream) Run(ctx context.Context) error {
	delay := wsReconnectDelay
	for {
		connected, err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = wsReconnectDelay
		}
		s.logger.Warn("quote stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}

func (s *QuoteStream) runConnection(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("bridge/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(subscribeCmd{Op: "subscribe", Channel: "quotes"}); err != nil {
		return false, fmt.Errorf("bridge/ws: subscribe: %w", err)
	}
	s.logger.Info("quote stream subscribed")

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadMessage.
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("bridge/ws: read: %w", err)
		}
		if err := s.handleMessage(raw); err != nil {
			s.logger.Debug("quote stream frame ignored", slog.String("error", err.Error()))
		}
	}
}

func (s *QuoteStream) handleMessage(raw []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	if msg.Type != "quotes" {
		return errors.New("unexpected frame type " + msg.Type)
	}
	quotes := toQuotes(s.broker, msg.Quotes)

	s.mu.Lock()
	s.quotes = quotes
	s.updated = time.Now()
	s.mu.Unlock()
	return nil
}
