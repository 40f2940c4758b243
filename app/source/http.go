package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxBodySize     = 5 << 20
	maxFetchRetries = 3
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// retryableStatus reports whether a response status is worth repeating the
// request for: server errors, 408 and 429.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// pageFetcher is the HTTP plumbing shared by the fetchers.
type pageFetcher struct {
	client    *http.Client
	userAgent string
	backoff   func(attempt int) time.Duration
}

func newPageFetcher(client *http.Client, userAgent string) pageFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return pageFetcher{
		client:    client,
		userAgent: userAgent,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

func (p pageFetcher) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxFetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		data, retry, err := p.getOnce(ctx, url, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retry {
			break
		}
	}

	return nil, lastErr
}

// getOnce performs a single GET. Transport failures and retryable statuses
// report retry=true.
func (p pageFetcher) getOnce(ctx context.Context, url string, timeout time.Duration) ([]byte, bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, retryableStatus(resp.StatusCode), &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, false, nil
}

func userAgentFor(src Request, fallback string) string {
	if src.Source != nil && src.Source.UserAgent != "" {
		return src.Source.UserAgent
	}
	return fallback
}

func timeoutFor(src Request) time.Duration {
	if src.Source == nil {
		return 0
	}
	return time.Duration(src.Source.Timeout) * time.Second
}
