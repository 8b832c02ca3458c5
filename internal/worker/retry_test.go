package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
	failErr  error
}

func (f *countingFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return crawler.FetchResponse{}, f.failErr
	}
	return crawler.FetchResponse{StatusCode: 200, Body: []byte("success"), URL: req.URL}, nil
}

func (f *countingFetcher) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func fetchWithRetry(ctx context.Context, w *Worker, fetcher *countingFetcher) (crawler.FetchResponse, error) {
	return withRetry(ctx, w, "fetch", zap.NewNop(), func(ctx context.Context) (crawler.FetchResponse, error) {
		return fetcher.Fetch(ctx, crawler.FetchRequest{URL: "https://example.com"})
	})
}

func TestWithRetryRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 2, failErr: &crawler.FetchError{StatusCode: 503}}
	w := New(Dependencies{Retry: crawler.NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond)}, Config{}, nil)

	resp, err := fetchWithRetry(context.Background(), w, fetcher)
	require.NoError(t, err)
	require.Equal(t, "success", string(resp.Body))
	require.Equal(t, 3, fetcher.Attempts())
}

func TestWithRetryStopsAtAttemptBudget(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 10, failErr: &crawler.FetchError{StatusCode: 502}}
	w := New(Dependencies{Retry: crawler.NewExponentialRetryPolicy(2, time.Millisecond, time.Millisecond)}, Config{}, nil)

	_, err := fetchWithRetry(context.Background(), w, fetcher)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 2, fetcher.Attempts())
}

func TestWithRetryNeverRetriesPermanentErrors(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 10, failErr: &crawler.FetchError{StatusCode: 404}}
	w := New(Dependencies{Retry: crawler.NewExponentialRetryPolicy(5, time.Millisecond, time.Millisecond)}, Config{}, nil)

	_, err := fetchWithRetry(context.Background(), w, fetcher)
	require.Error(t, err)
	require.Equal(t, 1, fetcher.Attempts())
}

func TestWithRetryDefaultsToSingleAttempt(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 1, failErr: &crawler.FetchError{StatusCode: 503}}
	w := New(Dependencies{}, Config{}, nil)

	_, err := fetchWithRetry(context.Background(), w, fetcher)
	require.Error(t, err)
	require.Equal(t, 1, fetcher.Attempts())
}

func TestWithRetryStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 10, failErr: &crawler.FetchError{Err: errors.New("connection reset")}}
	w := New(Dependencies{Retry: crawler.NewExponentialRetryPolicy(10, time.Hour, time.Hour)}, Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetchWithRetry(ctx, w, fetcher)
	require.Error(t, err)
	require.Equal(t, 1, fetcher.Attempts())
	require.Less(t, time.Since(start), time.Minute)
}
