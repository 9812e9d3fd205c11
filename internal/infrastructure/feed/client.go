package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/shelfscout/backend/internal/domain"
)

// maxBodyBytes caps how much of a feed response is read
const maxBodyBytes = 32 << 20

// ClientConfig holds HTTP feed settings
type ClientConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	UserAgent         string
}

// Client fetches raw listings from JSON feeds exported by scraping collaborators.
// It implements domain.RawListingSource for sources of kind "feed".
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	userAgent   string
	logger      zerolog.Logger
	backoff     func(attempt int) time.Duration
	now         func() time.Time
}

// NewClient creates a feed client, applying defaults for zero values
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ShelfScout/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		userAgent:   cfg.UserAgent,
		logger:      logger.With().Str("component", "feed").Logger(),
		backoff:     exponentialBackoff,
		now:         time.Now,
	}
}

// exponentialBackoff returns the wait before retry attempt n: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	return 500 * time.Millisecond * time.Duration(1<<(attempt-1))
}

// FetchListings downloads and decodes one source's feed. Transient failures
// (network errors, 429, 5xx) are retried; other statuses fail immediately.
func (c *Client) FetchListings(ctx context.Context, src domain.SourceConfig) ([]domain.RawListing, error) {
	if strings.TrimSpace(src.URL) == "" {
		return nil, fmt.Errorf("%w: source %s has no url", domain.ErrSourceFailure, src.Name)
	}

	log := c.logger.With().Str("source", src.Name).Logger()
	log.Debug().Str("url", src.URL).Msg("fetching feed")

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter")
		}

		resp, err := c.doRequest(ctx, src.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("feed request failed")
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("feed returned retryable status")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrSourceFailure, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", domain.ErrSourceFailure, resp.StatusCode)
		}

		body, err := readLimitedBody(resp.Body, resp.Header.Get("Content-Type"), maxBodyBytes)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read body: %v", domain.ErrSourceFailure, err)
			continue
		}

		listings, err := DecodeListings(body, src, c.now())
		if err != nil {
			return nil, eris.Wrapf(err, "failed to decode response from %s", src.Name)
		}

		log.Info().Int("records", len(listings)).Msg("feed fetched")
		return listings, nil
	}

	log.Error().Err(lastErr).Int("attempts", c.maxRetries).Msg("all retries failed")
	return nil, lastErr
}

// doRequest executes an HTTP GET request with proper headers
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	return resp, nil
}

// readLimitedBody reads at most limit bytes, decoding the body to UTF-8 according
// to the response content type. An empty body yields zero bytes.
func readLimitedBody(body io.Reader, contentType string, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return raw, nil
	}
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
