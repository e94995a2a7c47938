package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxFeedSize is the largest feed body accepted.
const MaxFeedSize = 10 << 20

// Default FeedClient settings.
const (
	DefaultFeedTimeout   = 30 * time.Second
	DefaultFeedRetries   = 2
	DefaultFeedRetryBase = 500 * time.Millisecond
)

var errFeedTooLarge = fmt.Errorf("feed exceeds %d bytes", MaxFeedSize)

// FeedClient downloads raw feed documents over HTTP.
type FeedClient struct {
	httpClient *http.Client
	retries    uint64
	retryBase  time.Duration
}

// NewFeedClient creates a feed client. timeout bounds each attempt;
// transient failures are retried up to retries times with exponential
// backoff starting at retryBase.
func NewFeedClient(timeout time.Duration, retries int, retryBase time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	if retries < 0 {
		retries = 0
	}
	if retryBase <= 0 {
		retryBase = DefaultFeedRetryBase
	}
	return &FeedClient{
		httpClient: &http.Client{Timeout: timeout},
		retries:    uint64(retries),
		retryBase:  retryBase,
	}
}

// Fetch downloads the document at feedURL. Transport errors and 5xx
// responses are retried; 4xx responses are not. A successful empty
// response yields an empty slice.
func (c *FeedClient) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	var (
		body       []byte
		attempts   int
		statusCode int
	)

	operation := func() error {
		attempts++
		statusCode = 0

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		req.Header.Set("Accept", "text/calendar, */*;q=0.5")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return stripURL(err)
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return backoff.Permanent(fmt.Errorf("feed returned status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFeedSize+1))
		if err != nil {
			return fmt.Errorf("reading body: %w", stripURL(err))
		}
		if len(data) > MaxFeedSize {
			return backoff.Permanent(errFeedTooLarge)
		}

		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBase
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.Printf("Feed fetch failed for %s, retrying in %s: %v", redactURL(feedURL), wait.Round(time.Millisecond), err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx), notify)
	if err != nil {
		return nil, &FeedUnavailableError{
			URL:        redactURL(feedURL),
			StatusCode: statusCode,
			Attempts:   attempts,
			Err:        err,
		}
	}

	if body == nil {
		body = []byte{}
	}
	return body, nil
}

// stripURL drops the request URL from transport errors; feed URLs embed
// access tokens and errors end up in logs and API responses.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// redactURL reduces a feed URL to its scheme and host for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host
}
