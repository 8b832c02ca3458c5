package parser

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

func fence(label, body string) string {
	return "```" + label + "\n" + body + "\n```"
}

func TestParseRoundTripThroughFence(t *testing.T) {
	t.Parallel()

	lists := [][]crawler.InsightCandidate{
		{},
		{{Title: "Acme ships a model", Summary: "Faster and cheaper than before."}},
		{
			{Title: "  Leading spaces kept", Summary: "Unicode survives: naïve café ✓"},
			{Title: strings.Repeat("t", MaxTitleChars), Summary: strings.Repeat("s", MaxSummaryChars)},
			{Title: "Quotes \"inside\"", Summary: "Braces { } and ``` ticks"},
		},
	}
	for _, list := range lists {
		payload, err := json.Marshal(map[string]any{"insights": list})
		require.NoError(t, err)

		for _, wrapped := range []string{fence("json", string(payload)), fence("", string(payload))} {
			res, err := Parse(wrapped)
			require.NoError(t, err)
			require.Equal(t, list, res.Insights)
			require.Zero(t, res.Dropped)
		}
	}
}

func TestParsePrefersJSONFence(t *testing.T) {
	t.Parallel()

	raw := "Here is some code:\n" + fence("python", "print('hi')") +
		"\nand the answer:\n" + fence("json", `{"insights":[{"title":"A","summary":"B"}]}`)
	res, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, []crawler.InsightCandidate{{Title: "A", Summary: "B"}}, res.Insights)
}

func TestParseBareAndEmbeddedJSON(t *testing.T) {
	t.Parallel()

	res, err := Parse(`  {"insights":[{"title":"A","summary":"B"}]}  `)
	require.NoError(t, err)
	require.Len(t, res.Insights, 1)

	res, err = Parse(`Sure! {"insights":[{"title":"C","summary":"D"}]} Hope this helps.`)
	require.NoError(t, err)
	require.Equal(t, "C", res.Insights[0].Title)
}

func TestParseEmptyListIsSuccess(t *testing.T) {
	t.Parallel()

	res, err := Parse(fence("json", `{"insights": []}`))
	require.NoError(t, err)
	require.NotNil(t, res.Insights)
	require.Empty(t, res.Insights)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"I could not find anything useful.",
		`{"insights":[{"title":"A","summary":"B"}`,
		fence("json", `{"insights":[{"title":"A",`),
		`{"items":[]}`,
		`{"insights":null}`,
		`{"insights":{"title":"A"}}`,
		`[{"title":"A","summary":"B"}]`,
	}
	for _, in := range inputs {
		res, err := Parse(in)
		require.Error(t, err, in)
		var parseErr *crawler.ParseError
		require.True(t, errors.As(err, &parseErr), in)
		require.Equal(t, "Failed to parse AI response", err.Error())
		require.Empty(t, res.Insights)
	}
}

// Malformed elements are dropped; well-formed siblings are kept.
func TestParseDropsMalformedElements(t *testing.T) {
	t.Parallel()

	raw := fence("json", `{"insights":[
		{"title":"Good one","summary":"Kept."},
		{"title":"No summary"},
		{"summary":"No title"},
		{"title":"Null summary","summary":null},
		{"title":7,"summary":"Wrong type"},
		"not an object",
		{"title":"Good two","summary":"Also kept."}
	]}`)
	res, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, []crawler.InsightCandidate{
		{Title: "Good one", Summary: "Kept."},
		{Title: "Good two", Summary: "Also kept."},
	}, res.Insights)
	require.Equal(t, 5, res.Dropped)
}

// Blank strings satisfy the schema, so they survive a round trip.
func TestParseKeepsBlankStringFields(t *testing.T) {
	t.Parallel()

	list := []crawler.InsightCandidate{
		{Title: " ", Summary: "x"},
		{Title: "Empty summary", Summary: ""},
	}
	payload, err := json.Marshal(map[string]any{"insights": list})
	require.NoError(t, err)

	res, err := Parse(fence("json", string(payload)))
	require.NoError(t, err)
	require.Equal(t, list, res.Insights)
	require.Zero(t, res.Dropped)
}

func TestParseClampsOverlongFields(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(map[string]any{"insights": []map[string]string{{
		"title":   strings.Repeat("é", MaxTitleChars+20),
		"summary": strings.Repeat("x", MaxSummaryChars+1),
	}}})
	require.NoError(t, err)

	res, err := Parse(string(payload))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", MaxTitleChars), res.Insights[0].Title)
	require.Len(t, res.Insights[0].Summary, MaxSummaryChars)
}
