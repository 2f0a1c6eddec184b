// Package stocktrack is the HTTP client for the stocktrack.ca Best Buy price
// drop feed and its per-SKU price history endpoint.
//
// Every call waits on a token bucket limiter and runs through a circuit
// breaker, so an unhealthy upstream fails fast instead of being hammered.
package stocktrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	DropsURL          string
	HistoryURL        string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client fetches the drop feed and price histories.
type Client struct {
	httpClient *http.Client
	dropsURL   string
	historyURL string
	host       string
	userAgent  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a stocktrack client with rate limiting and a circuit
// breaker that opens after three consecutive failures.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 30
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	host := "stocktrack.ca"
	if u, err := url.Parse(opts.DropsURL); err == nil && u.Host != "" {
		host = u.Host
	}

	rps := float64(opts.RequestsPerMinute) / 60.0
	c := &Client{
		httpClient: httpClient,
		dropsURL:   opts.DropsURL,
		historyURL: opts.HistoryURL,
		host:       host,
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "stocktrack",
		Interval: 5 * time.Minute,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Upstream circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// --------------------------------------------------------------------------
// Response types
// --------------------------------------------------------------------------

// Item is one entry of the drop feed.
type Item struct {
	Sku      string `json:"Sku"`
	Name     string `json:"Name"`
	NewPrice any    `json:"NewPrice"`
	InStock  bool   `json:"InStock"`
	Href     string `json:"Href"`
	Image    string `json:"Image"`
}

// UnmarshalJSON accepts numeric SKUs, keeps NewPrice as a json.Number or
// string, and reads InStock by truthiness.
func (it *Item) UnmarshalJSON(b []byte) error {
	var raw struct {
		Sku      any `json:"Sku"`
		Name     any `json:"Name"`
		NewPrice any `json:"NewPrice"`
		InStock  any `json:"InStock"`
		Href     any `json:"Href"`
		Image    any `json:"Image"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*it = Item{
		Sku:      text(raw.Sku),
		Name:     text(raw.Name),
		NewPrice: raw.NewPrice,
		InStock:  truthy(raw.InStock),
		Href:     text(raw.Href),
		Image:    text(raw.Image),
	}
	return nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

// Point is one sample of a price history series.
type Point struct {
	Y any `json:"y"`
}

// History is the per-SKU history response. Only the "1P" series is used.
type History struct {
	Series []Point `json:"1P"`
}

// Prices returns the raw y values, dropping points without one.
func (h *History) Prices() []any {
	if h == nil {
		return nil
	}
	out := make([]any, 0, len(h.Series))
	for _, p := range h.Series {
		if p.Y != nil {
			out = append(out, p.Y)
		}
	}
	return out
}

type dropsResponse struct {
	TotalCount any    `json:"total_count"`
	Data       []Item `json:"data"`
}

// --------------------------------------------------------------------------
// Endpoints
// --------------------------------------------------------------------------

// TotalCount returns the number of items in today's drop feed.
func (c *Client) TotalCount(ctx context.Context) (int, error) {
	var resp dropsResponse
	if err := c.get(ctx, "total count", c.dropsURL, dropsParams(0), &resp); err != nil {
		return 0, err
	}
	n, ok := count(resp.TotalCount)
	if !ok {
		return 0, &Error{Op: "total count", Kind: KindDecode, Err: fmt.Errorf("total_count %v is not an integer", resp.TotalCount)}
	}
	return n, nil
}

// Items returns the first n items of today's drop feed.
func (c *Client) Items(ctx context.Context, n int) ([]Item, error) {
	var resp dropsResponse
	if err := c.get(ctx, "items", c.dropsURL, dropsParams(n), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &Error{Op: "items", Kind: KindDecode, Err: errors.New("response has no data array")}
	}
	return resp.Data, nil
}

// History returns the price history of sku.
func (c *Client) History(ctx context.Context, sku string) (*History, error) {
	var h History
	params := url.Values{"sku": {sku}}
	if err := c.get(ctx, "history "+sku, c.historyURL, params, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// BreakerState reports the circuit breaker state for the status API.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func dropsParams(n int) url.Values {
	return url.Values{
		"t":        {"today"},
		"oss":      {"false"},
		"posStart": {"0"},
		"count":    {strconv.Itoa(n)},
	}
}

func count(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	}
	return 0, false
}

// get performs a rate-limited GET through the circuit breaker and decodes
// the JSON body into out.
func (c *Client) get(ctx context.Context, op, base string, params url.Values, out any) error {
	if base == "" {
		return &Error{Op: op, Kind: KindTransport, Err: errors.New("endpoint URL not configured")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	u := base
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	body, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, op, u)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Op: op, Kind: KindCircuitOpen, Err: err}
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body.([]byte)))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Op: op, Kind: KindDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, op, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Host = c.host
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("Fetching upstream", "op", op, "url", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Op:         op,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncate(body, 200)),
		}
	}
	return body, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
