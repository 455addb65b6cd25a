// Package fetch implements the rate-limited, retrying HTTP client shared by
// the watchlist adapters.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/metrics"
)

// Retryable upstream status codes.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Config controls client pacing and retry behavior.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	MaxRetries       int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	DefaultHostDelay time.Duration
	HostDelays       map[string]time.Duration
}

// Response is the result of a completed fetch.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs paced, bounded-retry HTTP GETs.
type Client struct {
	cfg     Config
	limiter *Limiter
	base    http.RoundTripper
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		limiter: NewLimiter(cfg.DefaultHostDelay, cfg.HostDelays),
		base:    newHTTPTransport(),
		logger:  logger,
	}
}

// Get fetches url, waiting out the host's rate ceiling and retrying transient
// failures up to the configured budget.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", url, err)
	}
	return &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// Transport returns an http.RoundTripper that routes through the same pacing
// and retry budget, for collectors that bring their own HTTP plumbing.
func (c *Client) Transport() http.RoundTripper {
	return &clientTransport{client: c}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	var (
		lastErr    error
		retryAfter time.Duration
		haveHint   bool
	)

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			if haveHint {
				delay = retryAfter
			}
			metrics.ObserveFetchRetry(host)
			c.logger.Warn("retrying fetch",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(req.Context(), delay); err != nil {
				return nil, err
			}
		}
		haveHint = false

		if err := c.limiter.Wait(req.Context(), host); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(req.Context(), c.cfg.Timeout)
		resp, err := c.base.RoundTrip(req.Clone(attemptCtx))
		if err != nil {
			cancel()
			if !transportRetryable(err) {
				return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			lastErr = err
			continue
		}
		if !retryableStatus[resp.StatusCode] {
			// Keep the body readable past the attempt deadline.
			resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		retryAfter, haveHint = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
	}

	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", req.URL, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffInitial << (attempt - 1)
	if delay > c.cfg.BackoffMax || delay <= 0 {
		delay = c.cfg.BackoffMax
	}
	return delay
}

func transportRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Per-attempt deadline blown counts as a timeout.
	return errors.Is(err, context.DeadlineExceeded)
}

// parseRetryAfter accepts the delta-seconds and HTTP-date forms.
func parseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

type clientTransport struct {
	client *Client
}

func (t *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.do(req)
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
