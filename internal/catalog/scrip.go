package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arjunkv/paperdesk/internal/model"
)

// ScripClient downloads the exchange instrument master (the "scrip
// master"), a large JSON array published daily.
type ScripClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ScripOption configures a ScripClient.
type ScripOption func(*ScripClient)

// NewScripClient creates a scrip master client.
func NewScripClient(url string, opts ...ScripOption) *ScripClient {
	c := &ScripClient{
		url:          url,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ScripOption {
	return func(c *ScripClient) { c.httpClient.Timeout = d }
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ScripOption {
	return func(c *ScripClient) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ScripOption {
	return func(c *ScripClient) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ScripOption {
	return func(c *ScripClient) { c.httpClient = hc }
}

// FetchError is a non-2xx response from the scrip master endpoint.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("scrip master fetch error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the error should trigger a retry.
func (e *FetchError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// scripWire is one row of the upstream scrip master. Numeric fields
// arrive as strings; strike and tick size are in paise.
type scripWire struct {
	Token    string `json:"token"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Expiry   string `json:"expiry"`
	Strike   string `json:"strike"`
	LotSize  string `json:"lotsize"`
	InstType string `json:"instrumenttype"`
	ExchSeg  string `json:"exch_seg"`
	TickSize string `json:"tick_size"`
}

// Fetch downloads and parses the scrip master, keeping only the given
// exchanges (all when empty).
func (c *ScripClient) Fetch(ctx context.Context, exchanges ...string) ([]model.Instrument, error) {
	body, err := c.fetchWithRetry(ctx)
	if err != nil {
		return nil, err
	}

	var wire []scripWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse scrip master: %w", err)
	}

	keep := make(map[string]struct{}, len(exchanges))
	for _, ex := range exchanges {
		keep[ex] = struct{}{}
	}

	out := make([]model.Instrument, 0, len(wire))
	for _, w := range wire {
		if len(keep) > 0 {
			if _, ok := keep[w.ExchSeg]; !ok {
				continue
			}
		}
		out = append(out, w.toInstrument())
	}

	c.logger.Info("scrip master fetched", "total", len(wire), "kept", len(out))
	return out, nil
}

func (c *ScripClient) fetchWithRetry(ctx context.Context) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying scrip master fetch", "attempt", attempt, "backoff", jitter)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}
			backoff *= 2
		}

		body, err := c.fetch(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		fetchErr, ok := err.(*FetchError)
		if !ok || !fetchErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *ScripClient) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (w scripWire) toInstrument() model.Instrument {
	lot, _ := strconv.ParseInt(w.LotSize, 10, 64)
	if lot < 1 {
		lot = 1
	}

	// Paise to rupees. Upstream uses -1 for "no strike".
	strike, _ := strconv.ParseFloat(w.Strike, 64)
	if strike > 0 {
		strike /= 100
	} else {
		strike = 0
	}
	tick, _ := strconv.ParseFloat(w.TickSize, 64)
	if tick > 0 {
		tick /= 100
	}

	return model.Instrument{
		Token:       w.Token,
		Symbol:      w.Symbol,
		Name:        w.Name,
		Exchange:    model.Exchange(w.ExchSeg),
		LotSize:     lot,
		TickSize:    tick,
		Expiry:      parseExpiry(w.Expiry),
		InstType:    w.InstType,
		StrikePrice: strike,
	}
}

// parseExpiry parses the upstream "29MAY2025" expiry format. Returns the
// zero time for equity rows, which carry an empty expiry.
func parseExpiry(s string) time.Time {
	if len(s) != 9 {
		return time.Time{}
	}
	month := strings.ToUpper(s[2:3]) + strings.ToLower(s[3:5])
	t, err := time.Parse("02Jan2006", s[:2]+month+s[5:])
	if err != nil {
		return time.Time{}
	}
	return t
}
