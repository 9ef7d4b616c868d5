package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"NewsCrawler/internal/limiter"

	"golang.org/x/net/html/charset"
)

const maxBodyBytes = 8 << 20

type ClientConfig struct {
	Timeout         time.Duration
	UserAgent       string
	Proxy           string
	MaxConnsPerHost int
}

// Client issues single GET attempts over one shared connection pool. It
// never retries; that is the Coordinator's job.
type Client struct {
	client  *http.Client
	limiter *limiter.DomainLimiter
	agents  *UserAgents
	maxBody int64
	logger  *slog.Logger
}

// NewClient builds the shared client. It fails only when the transport
// cannot be configured.
func NewClient(cfg ClientConfig, l *limiter.DomainLimiter, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("http client: timeout must be positive, got %s", cfg.Timeout)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("http client: invalid proxy %q", cfg.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if cfg.MaxConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
	}
	hc := &http.Client{Timeout: cfg.Timeout, Transport: transport}
	return NewClientWithHTTP(hc, l, NewUserAgents(cfg.UserAgent), logger), nil
}

// NewClientWithHTTP wraps an existing http.Client. Either l or agents may be nil.
func NewClientWithHTTP(hc *http.Client, l *limiter.DomainLimiter, agents *UserAgents, logger *slog.Logger) *Client {
	if agents == nil {
		agents = NewUserAgents("")
	}
	c := &Client{
		client:  hc,
		limiter: l,
		agents:  agents,
		maxBody: maxBodyBytes,
		logger:  orDiscard(logger).With("component", "fetcher"),
	}
	c.logger.Debug("http client ready", "timeout", hc.Timeout, "user_agents", agents.Len(), "rate_limited", l != nil)
	return c
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// Get fetches u once and returns the body decoded to UTF-8. Failures are
// *FetchError except for malformed URLs.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return c.do(ctx, req)
}

// Post sends payload as JSON to u once and returns the response body. It
// fails like Get.
func (c *Client) Post(ctx context.Context, u string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	u := req.URL.String()
	if c.limiter != nil && !c.limiter.Allow(u) {
		c.logger.Debug("throttled", "url", u)
		if err := c.limiter.Wait(ctx, u); err != nil {
			return nil, transportError(u, err)
		}
	}
	req.Header.Set("User-Agent", c.agents.Next())
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: KindStatus, URL: u, StatusCode: resp.StatusCode}
	}

	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	b, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, transportError(u, err)
	}
	if int64(len(b)) > c.maxBody {
		return nil, &FetchError{Kind: KindDecode, URL: u, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body exceeds %d bytes", c.maxBody)}
	}

	h := sha256.Sum256(b)
	c.logger.Debug("fetched", "method", req.Method, "url", u, "status", resp.StatusCode, "bytes", len(b), "hash", fmt.Sprintf("%x", h[:6]))
	return b, nil
}
