// Package fetch retrieves remote attachment content over HTTP with size
// limits and retry on transient failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wxr-go/internal/importer"
)

// HTTPFetcher downloads attachment bodies with a size cap and exponential
// backoff retry. 4xx responses are never retried.
type HTTPFetcher struct {
	client     *http.Client
	maxSize    int64 // 0 = unlimited
	maxRetries uint64
}

// NewHTTPFetcher creates a fetcher. timeout bounds each individual request
// attempt, maxSize caps the response body (0 means unlimited).
func NewHTTPFetcher(timeout time.Duration, maxSize int64, maxRetries int) *HTTPFetcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPFetcher{
		client:     &http.Client{Timeout: timeout},
		maxSize:    maxSize,
		maxRetries: uint64(maxRetries),
	}
}

// Fetch downloads url and returns its body. Transient failures (network
// errors, 5xx) are retried; client errors and oversized bodies fail
// immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*importer.FetchResult, error) {
	var result *importer.FetchResult

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	err := backoff.Retry(func() error {
		res, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*importer.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request for %s: %w", url, err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body := resp.Body
	if f.maxSize > 0 {
		// Read one byte past the cap so an oversized body is detected
		// instead of silently truncated.
		body = io.NopCloser(io.LimitReader(resp.Body, f.maxSize+1))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, backoff.Permanent(fmt.Errorf("fetching %s: body exceeds %d byte limit", url, f.maxSize))
	}
	if resp.ContentLength > 0 && int64(len(data)) != resp.ContentLength {
		return nil, fmt.Errorf("fetching %s: got %d bytes, Content-Length was %d", url, len(data), resp.ContentLength)
	}

	return &importer.FetchResult{
		Body:        data,
		Size:        int64(len(data)),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

var _ importer.Fetcher = (*HTTPFetcher)(nil)
