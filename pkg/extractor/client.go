package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"mediagrab/pkg/config"
	"mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/platform"
	"mediagrab/pkg/ratelimit"
	"mediagrab/pkg/retry"
)

// maxResponseBody bounds how much of a provider response is read
const maxResponseBody = 8 << 20

// Client performs outbound provider calls with per-platform rate
// limiting, retry on retryable taxonomy kinds, and status classification.
// It never leaks a raw transport error; callers always see *errors.Error.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.PerPlatform
	retryCfg   config.RetryConfig
	log        logger.Logger
}

// NewClient creates the shared outbound client
func NewClient(limiter *ratelimit.PerPlatform, retryCfg config.RetryConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		// Per-call deadlines come from the request context; a transport
		// level timeout here would fight them.
		httpClient: &http.Client{},
		limiter:    limiter,
		retryCfg:   retryCfg,
		log:        log,
	}
}

// GetJSON fetches url and decodes the JSON body into target
func (c *Client) GetJSON(ctx context.Context, p platform.Platform, url string, headers map[string]string, target interface{}) error {
	body, err := c.get(ctx, p, url, headers, "application/json, text/plain, */*")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.Newf(errors.KindParse, "malformed JSON from %s: %v", p, err)
	}
	return nil
}

// GetDocument fetches url and parses the HTML body
func (c *Client) GetDocument(ctx context.Context, p platform.Platform, url string, headers map[string]string) (*goquery.Document, error) {
	body, err := c.get(ctx, p, url, headers, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Newf(errors.KindParse, "malformed HTML from %s: %v", p, err)
	}
	return doc, nil
}

// get performs one rate-limited, retried GET and returns the body
func (c *Client) get(ctx context.Context, p platform.Platform, url string, headers map[string]string, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Get(p).Wait(ctx); err != nil {
			return nil, classifyTransportError(err)
		}
	}

	cfg := &retry.Config{
		MaxAttempts: c.retryCfg.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    c.retryCfg.InitialDelay,
			MaxDelay:     c.retryCfg.MaxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  c.log,
	}

	return retry.DoWithResult(func() ([]byte, error) {
		return c.once(ctx, p, url, headers, accept)
	}, cfg)
}

// once performs a single GET attempt
func (c *Client) once(ctx context.Context, p platform.Platform, url string, headers map[string]string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Newf(errors.KindInvalidURL, "failed to build request: %v", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.log.DebugWithFields("provider call failed", map[string]interface{}{
			"platform": p.String(),
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	c.log.DebugWithFields("provider call completed", map[string]interface{}{
		"platform": p.String(),
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode != http.StatusOK {
		kind := errors.FromStatusCode(resp.StatusCode)
		return nil, errors.Newf(kind, "%s returned status %d", p, resp.StatusCode).WithCode(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return body, nil
}

// classifyTransportError folds transport failures into the taxonomy
func classifyTransportError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.KindTimeout, "provider call timed out")
	case stderrors.Is(err, context.Canceled):
		return errors.New(errors.KindTimeout, "provider call cancelled")
	default:
		return errors.Newf(errors.KindNetwork, "network error: %v", err)
	}
}
