// Package studyqueue is a client for the review service's study queue endpoint.
package studyqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	logx "reviewbadge/pkg/logx"
)

const maxBodyBytes = 1 << 20

type Config struct {
	BaseURL string
	// Timeout bounds a whole request. 0 disables it.
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	UserAgent  string
}

// Client issues study queue requests. It never retries.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reviewbadge"
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log,
	}
}

// WithHTTPClient swaps the underlying HTTP client (tests, proxies).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

// URL returns the study queue URL for apiKey.
func (c *Client) URL(apiKey string) string {
	return c.cfg.BaseURL + "/api/user/" + url.PathEscape(apiKey) + "/study_queue"
}

func (c *Client) redactedURL() string {
	return c.cfg.BaseURL + "/api/user/***/study_queue"
}

// StudyQueue fetches the study queue for apiKey.
//
// The HTTP status is not checked: the service answers 401 even for valid keys,
// so the body alone decides. Errors match ErrTransport or ErrPayload.
func (c *Client) StudyQueue(ctx context.Context, apiKey string) (*StudyQueue, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{URL: c.redactedURL(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(apiKey), nil)
	if err != nil {
		return nil, &TransportError{URL: c.redactedURL(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: c.redactedURL(), Err: redact(err, apiKey)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: c.redactedURL(), Err: err}
	}
	c.log.Debug("study queue response",
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)

	var q StudyQueue
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, &PayloadError{URL: c.redactedURL(), Status: resp.StatusCode, Err: err}
	}
	return &q, nil
}

// redact strips the api key out of errors from net/http, which embed the URL.
func redact(err error, apiKey string) error {
	if err == nil || apiKey == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, apiKey) {
		return err
	}
	var out error = errors.New(strings.ReplaceAll(msg, apiKey, "***"))
	if errors.Is(err, context.Canceled) {
		out = fmt.Errorf("%w: %v", context.Canceled, out)
	} else if errors.Is(err, context.DeadlineExceeded) {
		out = fmt.Errorf("%w: %v", context.DeadlineExceeded, out)
	}
	return out
}
