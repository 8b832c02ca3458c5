package llm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := BuildPrompt(crawler.CurationRequest{
		Text:             "Acme ships a new model.",
		TopicName:        "Artificial Intelligence",
		TopicDescription: "Machine learning news.",
		SourceURL:        "https://example.com",
	})
	require.Contains(t, p.System, `"Artificial Intelligence"`)
	require.Contains(t, p.System, "Machine learning news.")
	require.Contains(t, p.User, "from https://example.com")
	require.Contains(t, p.User, "Acme ships a new model.")
	require.Contains(t, p.User, `"insights"`)
	require.Contains(t, p.User, "return an empty insights array")
}

func TestBuildPromptWithoutDescription(t *testing.T) {
	t.Parallel()

	p := BuildPrompt(crawler.CurationRequest{TopicName: "ai", SourceURL: "https://example.com"})
	require.NotContains(t, p.System, "Topic description")
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", Snippet([]byte("  abcdef "), 3))
	require.Equal(t, "abcdef", Snippet([]byte("abcdef"), 0))
}
