package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orca-so/sedimentology/pkg/utils"
	"golang.org/x/time/rate"
)

// HTTPClient is a Solana JSON-RPC client over one or more endpoints with a
// per-endpoint circuit-breaker and a shared token-bucket.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	limiter   *rate.Limiter
	observer  Observer
	nextID    atomic.Uint64

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Observer receives one call per RPC round-trip. pkg/metrics implements it.
type Observer interface {
	ObserveRPC(method, status string, d time.Duration)
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Observer        Observer
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 2 * o.RPS
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		observer:         o.Observer,
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// isOpen returns true if the endpoint breaker is OPEN.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if the failure count exceeds the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

func (c *HTTPClient) observe(method, status string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRPC(method, status, time.Since(start))
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// call posts a JSON-RPC request and returns the raw, un-decoded result.
// Transport failures and 5xx responses fail over to the next endpoint; a
// JSON-RPC error object is returned as *Error without failing over, since
// every endpoint would answer the same.
func (c *HTTPClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if len(c.endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	payload, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	lastErr := ErrAllEndpointsOpen
	for _, ep := range c.endpoints {
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.observe(method, "cancelled", start)
			return nil, err
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				c.observe(method, "cancelled", start)
				return nil, ctx.Err()
			}
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		// From here on, always drain+close the body before continuing/returning.
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%s: server %d", method, resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("%s: http %d", method, resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = utils.DrainAndClose(resp.Body)
		if readErr != nil {
			lastErr = readErr
			c.noteFailure(ep)
			continue
		}

		var envelope response
		if err := json.Unmarshal(body, &envelope); err != nil {
			lastErr = fmt.Errorf("%s: malformed response: %w", method, err)
			c.noteFailure(ep)
			continue
		}
		c.noteSuccess(ep)

		if envelope.Error != nil {
			c.observe(method, "rpc_error", start)
			return nil, envelope.Error
		}
		c.observe(method, "ok", start)
		return envelope.Result, nil
	}

	c.observe(method, "failed", start)
	if errors.Is(lastErr, ErrAllEndpointsOpen) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: %w", method, lastErr)
}
