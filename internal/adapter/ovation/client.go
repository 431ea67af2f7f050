// Package ovation fetches and decodes the SWPC OVATION aurora forecast.
package ovation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
)

// maxErrorBody caps how much of an error response is quoted in the error.
const maxErrorBody = 512

// Client implements domain.FieldSource over HTTP. It sends conditional
// requests and reports domain.ErrFieldUnchanged on 304 Not Modified.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu           sync.Mutex
	etag         string
	lastModified string
}

// NewClient creates an OVATION client for url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchField downloads and decodes the current field.
func (c *Client) FetchField(ctx context.Context) (domain.FieldSnapshot, error) {
	start := time.Now()
	snap, err := c.fetch(ctx)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.FetchRequests.WithLabelValues("success").Inc()
	case errors.Is(err, domain.ErrFieldUnchanged):
		c.metrics.FetchRequests.WithLabelValues("unchanged").Inc()
	default:
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
	}
	return snap, err
}

func (c *Client) fetch(ctx context.Context) (domain.FieldSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.FieldSnapshot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	if c.lastModified != "" {
		req.Header.Set("If-Modified-Since", c.lastModified)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FieldSnapshot{}, fmt.Errorf("ovation request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		c.logger.Debug("ovation field not modified", "url", c.url)
		return domain.FieldSnapshot{}, domain.ErrFieldUnchanged
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.FieldSnapshot{}, fmt.Errorf("ovation API error: status %d: %s", resp.StatusCode, body)
	}

	snap, err := Decode(resp.Body)
	if err != nil {
		return domain.FieldSnapshot{}, err
	}

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.lastModified = resp.Header.Get("Last-Modified")
	c.mu.Unlock()

	c.logger.Debug("ovation field fetched",
		"entries", len(snap.Entries),
		"observed_at", snap.ObservedAt,
		"forecast_at", snap.ForecastAt,
	)
	return snap, nil
}
