package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Outcome classifies a single webhook attempt.
type Outcome int

const (
	OutcomeSuccess     Outcome = iota // 200 or 204
	OutcomeRateLimited                // 429
	OutcomeTransient                  // timeout or network error
	OutcomeFatal                      // any other status or an unsendable message
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is what one attempt produced.
type Result struct {
	Outcome    Outcome
	StatusCode int
	RetryAfter string // raw Retry-After header on 429
	Body       string // truncated response body
	Err        error
}

// Transport posts one webhook message.
type Transport interface {
	Post(ctx context.Context, msg WebhookMessage) Result
}

// WebhookTransport posts to a Discord webhook URL.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport returns a transport with a per-request timeout.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{url: url, client: &http.Client{Timeout: timeout}}
}

func (t *WebhookTransport) Post(ctx context.Context, msg WebhookMessage) Result {
	if t.url == "" {
		return Result{Outcome: OutcomeFatal, Err: errors.New("webhook URL not configured")}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{Outcome: classifyRequestError(err), Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	res := Result{StatusCode: resp.StatusCode, Body: truncate(respBody, 200)}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		res.Outcome = OutcomeSuccess
	case http.StatusTooManyRequests:
		res.Outcome = OutcomeRateLimited
		res.RetryAfter = resp.Header.Get("Retry-After")
		res.Err = fmt.Errorf("discord rate limit hit (429): %s", res.Body)
	default:
		res.Outcome = OutcomeFatal
		res.Err = fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, res.Body)
	}
	return res
}

// classifyRequestError treats timeouts and network-level failures as
// transient. Anything else, such as an unsupported URL scheme, is fatal.
func classifyRequestError(err error) Outcome {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return OutcomeTransient
		}
		err = ue.Err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return OutcomeTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return OutcomeTransient
	}
	return OutcomeFatal
}

// truncate returns a truncated string representation for log messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
