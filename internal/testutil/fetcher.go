package testutil

import (
	"context"
	"fmt"
	"sync"

	"wxr-go/internal/importer"
)

// StubFetcher serves canned bodies by URL and records every fetch. Safe for
// concurrent use.
type StubFetcher struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	errs    map[string]error
	Fetched []string
}

// NewStubFetcher creates an empty StubFetcher.
func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
	}
}

// Add registers a body for a URL.
func (f *StubFetcher) Add(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

// Fail makes fetches of url return err.
func (f *StubFetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *StubFetcher) Fetch(_ context.Context, url string) (*importer.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, url)

	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("no canned body for %s", url)
	}
	return &importer.FetchResult{
		Body:        body,
		Size:        int64(len(body)),
		ContentType: "application/octet-stream",
	}, nil
}

var _ importer.Fetcher = (*StubFetcher)(nil)
