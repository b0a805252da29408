// Package httpapi is the HTTP client side of the Mutation API. Calls are rate
// limited, retried with exponential backoff while the server is unavailable
// and short-circuited by a breaker once it keeps failing.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

const actorHeader = "X-Actor"

type Config struct {
	BaseURL           string
	Actor             string
	MaxRetries        int
	RequestsPerSecond float64
	Timeout           time.Duration

	// Breaker settings; zero values pick defaults.
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		MaxRetries:        3,
		RequestsPerSecond: 50,
		Timeout:           10 * time.Second,
		BreakerTimeout:    30 * time.Second,
		BreakerFailures:   5,
	}
}

type Client struct {
	base       string
	actor      string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	logger     log.Log
}

func New(cfg Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger = logger.With(log.String("component", "httpapi"))

	failures := cfg.BreakerFailures
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		actor:      cfg.Actor,
		http:       &http.Client{Timeout: cfg.Timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		limiter:    rate.NewLimiter(limit, max(1, int(cfg.RequestsPerSecond))),
		maxRetries: max(0, cfg.MaxRetries),
		logger:     logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mutation-api",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, collab.ErrUnavailable)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					log.String("breaker", name),
					log.String("from", from.String()),
					log.String("to", to.String()))
			},
		}),
	}
}

// Close drops idle keep-alive connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// BreakerState reports the breaker state, mainly for health output.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// do sends one logical request, retrying only while the error is
// collab.ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%w: %v", collab.ErrValidation, err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, path, payload, out)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%w: %v", collab.ErrUnavailable, err))
		case errors.Is(err, collab.ErrUnavailable) && ctx.Err() == nil:
			c.logger.Debug("Retryable API error",
				log.String("method", method),
				log.String("path", path),
				log.Int("attempt", attempt),
				log.Error(err))
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	// #nosec G115 -- maxRetries is clamped to be non-negative
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx))
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", collab.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	actor := collab.ActorFrom(ctx)
	if actor == "" {
		actor = c.actor
	}
	req.Header.Set(actorHeader, actor)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", collab.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", errorFor(resp.StatusCode), e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", collab.ErrUnavailable, err)
	}
	return nil
}

func errorFor(status int) error {
	switch {
	case status == http.StatusNotFound:
		return collab.ErrNotFound
	case status == http.StatusConflict:
		return collab.ErrAlreadyExists
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		return collab.ErrForbidden
	case status == http.StatusTooManyRequests, status >= 500:
		return collab.ErrUnavailable
	default:
		return collab.ErrValidation
	}
}
