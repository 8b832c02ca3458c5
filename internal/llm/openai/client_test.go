package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret"}, srv.Client(), zap.NewNop())
	require.NoError(t, err)
	return client
}

func sampleRequest() crawler.CurationRequest {
	return crawler.CurationRequest{
		Text:      "Acme ships a new model.",
		TopicName: "Artificial Intelligence",
		SourceURL: "https://example.com",
	}
}

func TestCurateReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	var got completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, completionsPath, r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"insights\":[]}"}}]}`))
	})

	content, err := client.Curate(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, `{"insights":[]}`, content)
	require.Equal(t, DefaultModel, got.Model)
	require.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Contains(t, got.Messages[1].Content, "Acme ships a new model.")
}

func TestCurateMapsStatusCodes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status int
		kind   crawler.CurationKind
	}{
		{http.StatusTooManyRequests, crawler.CurationRateLimited},
		{http.StatusPaymentRequired, crawler.CurationPaymentRequired},
		{http.StatusInternalServerError, crawler.CurationUpstream},
		{http.StatusUnauthorized, crawler.CurationUpstream},
	}
	for _, tc := range testCases {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tc.status)
		})
		_, err := client.Curate(context.Background(), sampleRequest())
		var curationErr *crawler.CurationError
		require.True(t, errors.As(err, &curationErr))
		require.Equal(t, tc.kind, curationErr.Kind)
		require.Equal(t, tc.status, curationErr.StatusCode)
	}
}

func TestCurateEmptyContent(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":null}}]}`,
		`{"choices":[{"message":{"content":"   "}}]}`,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := client.Curate(context.Background(), sampleRequest())
		var curationErr *crawler.CurationError
		require.True(t, errors.As(err, &curationErr), body)
		require.Equal(t, crawler.CurationEmptyResponse, curationErr.Kind)
		require.Equal(t, "No content received from AI", err.Error())
	}
}

func TestCurateTransportFailureIsUpstream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret"}, nil, nil)
	require.NoError(t, err)

	_, err = client.Curate(context.Background(), sampleRequest())
	var curationErr *crawler.CurationError
	require.True(t, errors.As(err, &curationErr))
	require.Equal(t, crawler.CurationUpstream, curationErr.Kind)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	client, err := New(Config{APIKey: "k"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL+completionsPath, client.endpoint)
	require.Equal(t, DefaultModel, client.model)

	_, err = New(Config{BaseURL: "http://x"}, nil, nil)
	require.Error(t, err)
}
