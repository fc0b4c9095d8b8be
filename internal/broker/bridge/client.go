// Package bridge talks to a venue sidecar over a small signed REST API and an
// optional websocket quote stream. Each sidecar wraps one broker's native
// protocol so the engine sees a uniform surface.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/crossarb/internal/broker"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config configures a sidecar client.
type Config struct {
	Broker          domain.BrokerID
	BaseURL         string
	APIKey          string
	APISecret       string
	Timeout         time.Duration
	RetryCount      int
	QuoteStaleAfter time.Duration
}

// Client implements broker.Adapter against a sidecar.
type Client struct {
	cfg  Config
	auth *HMACAuth
	// http retries idempotent calls; orders never retries so a timeout
	// cannot place the same order twice.
	http   *resty.Client
	orders *resty.Client
	stream *QuoteStream
	logger *slog.Logger
}

// New creates a sidecar client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 2
	}
	if cfg.QuoteStaleAfter <= 0 {
		cfg.QuoteStaleAfter = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	retrying := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return err != nil
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		cfg:    cfg,
		auth:   &HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		http:   retrying,
		orders: resty.New().SetBaseURL(base).SetTimeout(cfg.Timeout),
		logger: logger.With(slog.String("component", "bridge"), slog.String("broker", string(cfg.Broker))),
	}
}

// AttachStream makes Quotes prefer the streamed book while it is fresh.
func (c *Client) AttachStream(s *QuoteStream) {
	c.stream = s
}

// Broker returns the venue id.
func (c *Client) Broker() domain.BrokerID { return c.cfg.Broker }

// Send places a limit or market order.
func (c *Client) Send(ctx context.Context, o *domain.Order) error {
	req := orderRequest{
		ClientOrderID:  o.ID,
		Side:           string(o.Side),
		Size:           o.Size,
		Price:          o.Price,
		Type:           string(o.Type),
		CashMarginType: string(o.CashMarginType),
		LeverageLevel:  o.LeverageLevel,
	}
	var out orderResponse
	if err := c.do(ctx, c.orders, http.MethodPost, "/orders", req, &out); err != nil {
		return err
	}
	if out.ID == "" {
		return fmt.Errorf("bridge: send: empty order id in response")
	}
	now := time.Now().UTC()
	o.BrokerOrderID = out.ID
	o.SentAt = &now
	if st, ok := parseStatus(out.Status); ok {
		o.Apply(st, out.FilledSize, out.AverageFilledPrice, now)
	}
	c.logger.InfoContext(ctx, "order accepted",
		slog.String("order_id", o.ID),
		slog.String("broker_order_id", out.ID),
		slog.String("side", string(o.Side)),
		slog.Float64("size", o.Size),
		slog.Float64("price", o.Price),
	)
	return nil
}

// Refresh pulls the order status.
func (c *Client) Refresh(ctx context.Context, o *domain.Order) error {
	var out orderResponse
	if err := c.do(ctx, c.http, http.MethodGet, orderPath(o), nil, &out); err != nil {
		return err
	}
	st, ok := parseStatus(out.Status)
	if !ok {
		return fmt.Errorf("bridge: refresh %s: unknown status %q", o.BrokerOrderID, out.Status)
	}
	o.Apply(st, out.FilledSize, out.AverageFilledPrice, time.Now().UTC())
	return nil
}

// Cancel requests cancellation. The order is updated only if the sidecar
// reports the resulting status.
func (c *Client) Cancel(ctx context.Context, o *domain.Order) error {
	var out orderResponse
	if err := c.do(ctx, c.http, http.MethodDelete, orderPath(o), nil, &out); err != nil {
		return err
	}
	if st, ok := parseStatus(out.Status); ok {
		o.Apply(st, out.FilledSize, out.AverageFilledPrice, time.Now().UTC())
	}
	return nil
}

// Quotes returns the streamed book when fresh, else fetches it.
func (c *Client) Quotes(ctx context.Context) ([]domain.Quote, error) {
	if c.stream != nil {
		if qs, ok := c.stream.Latest(c.cfg.QuoteStaleAfter); ok {
			return qs, nil
		}
	}
	var out quotesResponse
	if err := c.do(ctx, c.http, http.MethodGet, "/quotes", nil, &out); err != nil {
		return nil, err
	}
	return toQuotes(c.cfg.Broker, out.Quotes), nil
}

// Position returns the venue's net position.
func (c *Client) Position(ctx context.Context) (float64, error) {
	var out positionResponse
	if err := c.do(ctx, c.http, http.MethodGet, "/position", nil, &out); err != nil {
		return 0, err
	}
	return out.Net, nil
}

func orderPath(o *domain.Order) string {
	return "/orders/" + url.PathEscape(o.BrokerOrderID)
}

// do signs and executes one request, decoding a JSON result into out.
func (c *Client) do(ctx context.Context, rc *resty.Client, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("bridge: marshal %s %s: %w", method, path, err)
		}
	}

	req := rc.R().
		SetContext(ctx).
		SetHeaders(c.auth.Headers(method, path, string(payload))).
		SetError(&errorResponse{})
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("bridge: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
			msg = e.Error
		}
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return fmt.Errorf("bridge: %s %s: %s: %w", method, path, msg, domain.ErrNotFound)
		case resp.StatusCode() < 500 && method == http.MethodPost:
			return fmt.Errorf("bridge: %s %s: %s: %w", method, path, msg, domain.ErrRejected)
		default:
			return fmt.Errorf("bridge: %s %s: status %d: %s", method, path, resp.StatusCode(), msg)
		}
	}
	return nil
}

var _ broker.Adapter = (*Client)(nil)
