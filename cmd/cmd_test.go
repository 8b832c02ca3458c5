package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/storage/memory"
)

func useFakeApp(t *testing.T, app *fakeApp, buildErr error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) {
		if buildErr != nil {
			return nil, buildErr
		}
		return app, nil
	}
	t.Cleanup(func() {
		newApp = orig
		cfgFile = ""
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsResult(t *testing.T) {
	app := &fakeApp{result: crawler.CrawlResult{
		SourceID:        "src-1",
		Status:          crawler.SourceStatusCompleted,
		InsightsCreated: 2,
		InsightsDropped: 1,
	}}
	useFakeApp(t, app, nil)

	out, err := execute(t, "crawl", "src-1")
	require.NoError(t, err)

	var got crawlOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.True(t, got.Success)
	require.Equal(t, "src-1", got.CrawlSourceID)
	require.Equal(t, 2, got.InsightsCreated)
	require.Equal(t, 1, got.InsightsDropped)
	require.Empty(t, got.Error)
	require.Equal(t, []string{"src-1"}, app.crawled)
	require.True(t, app.closed)
}

func TestCrawlCommandReportsPipelineFailure(t *testing.T) {
	app := &fakeApp{result: crawler.CrawlResult{
		SourceID: "src-1",
		Status:   crawler.SourceStatusFailed,
		Err:      &crawler.FetchError{StatusCode: 404},
	}}
	useFakeApp(t, app, nil)

	out, err := execute(t, "crawl", "src-1")
	require.Error(t, err)

	var got crawlOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.False(t, got.Success)
	require.Equal(t, crawler.SourceStatusFailed, got.Status)
	require.Equal(t, "Failed to fetch website: Not Found", got.Error)
}

func TestCrawlCommandReportsLeaseErrors(t *testing.T) {
	app := &fakeApp{crawlErr: errors.Join(errors.New("begin crawl"), crawler.ErrAlreadyCrawling)}
	useFakeApp(t, app, nil)

	out, err := execute(t, "crawl", "src-1")
	require.ErrorIs(t, err, crawler.ErrAlreadyCrawling)

	var got crawlOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, crawler.ErrAlreadyCrawling.Error(), got.Error)
}

func TestCrawlCommandRequiresSourceID(t *testing.T) {
	useFakeApp(t, &fakeApp{}, nil)

	_, err := execute(t, "crawl")
	require.Error(t, err)
}

func TestTopicsCommandListsCatalogue(t *testing.T) {
	app := &fakeApp{store: memory.NewStore([]crawler.Topic{
		{ID: "t-2", Name: "Markets", Icon: "chart"},
		{ID: "t-1", Name: "AI", Icon: "robot"},
	})}
	useFakeApp(t, app, nil)

	out, err := execute(t, "topics")
	require.NoError(t, err)
	require.Contains(t, out, "ID")
	require.Contains(t, out, "Markets")
	require.Less(t, bytes.Index([]byte(out), []byte("AI")), bytes.Index([]byte(out), []byte("Markets")))

	out, err = execute(t, "topics", "--json")
	require.NoError(t, err)
	var topics []crawler.Topic
	require.NoError(t, json.Unmarshal([]byte(out), &topics))
	require.Len(t, topics, 2)
	require.Equal(t, "t-1", topics[0].ID)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app, nil)

	_, err := execute(t, "serve", "--config", "curator.yaml")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.Equal(t, "curator.yaml", cfgFile)
}

func TestBuildFailureStopsCommand(t *testing.T) {
	useFakeApp(t, nil, errors.New("boom"))

	_, err := execute(t, "serve")
	require.ErrorContains(t, err, "failed to initialize application services: boom")
}

type fakeApp struct {
	result   crawler.CrawlResult
	crawlErr error
	store    crawler.Store
	crawled  []string
	ran      bool
	closed   bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) CrawlOnce(_ context.Context, sourceID string) (crawler.CrawlResult, error) {
	f.crawled = append(f.crawled, sourceID)
	return f.result, f.crawlErr
}

func (f *fakeApp) Store() crawler.Store {
	if f.store == nil {
		return memory.NewStore(nil)
	}
	return f.store
}

func (f *fakeApp) Logger() *zap.Logger {
	return zap.NewNop()
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}
