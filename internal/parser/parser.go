// Package parser recovers the insights document from free-form model output.
//
// Models frequently wrap JSON in markdown fences or surround it with prose, so
// Parse tries, in order: a fence labeled json, any fence, the whole reply, and
// finally the outermost brace-delimited span. The first candidate that decodes
// to an object carrying an "insights" array wins.
//
// Elements missing a title or summary are dropped and counted rather than
// failing the batch, so well-formed siblings survive a partially bad reply.
package parser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// Length bounds applied to accepted insights.
const (
	MaxTitleChars   = 80
	MaxSummaryChars = 300
)

var (
	jsonFence = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
)

// Result is the validated outcome of Parse.
type Result struct {
	Insights []crawler.InsightCandidate
	Dropped  int
}

type document struct {
	Insights *json.RawMessage `json:"insights"`
}

type element struct {
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
}

// Parse extracts and validates the insights document in raw. It returns a
// *crawler.ParseError when no candidate holds an insights array; an empty
// array is a valid, successful result.
func Parse(raw string) (Result, error) {
	var lastReason string
	for _, candidate := range candidates(raw) {
		elements, reason := decodeInsights(candidate)
		if reason != "" {
			lastReason = reason
			continue
		}
		return validate(elements), nil
	}
	if lastReason == "" {
		lastReason = "empty response"
	}
	return Result{}, &crawler.ParseError{Reason: lastReason}
}

func candidates(raw string) []string {
	var out []string
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	if m := anyFence.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		out = append(out, trimmed)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		out = append(out, raw[start:end+1])
	}
	return out
}

func decodeInsights(candidate string) ([]json.RawMessage, string) {
	var doc document
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, "invalid json: " + err.Error()
	}
	if doc.Insights == nil || bytes.Equal(bytes.TrimSpace(*doc.Insights), []byte("null")) {
		return nil, "missing insights array"
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(*doc.Insights, &elements); err != nil {
		return nil, "insights is not an array"
	}
	return elements, ""
}

func validate(elements []json.RawMessage) Result {
	res := Result{Insights: make([]crawler.InsightCandidate, 0, len(elements))}
	for _, raw := range elements {
		var el element
		if err := json.Unmarshal(raw, &el); err != nil {
			res.Dropped++
			continue
		}
		// Absent and null fields are malformed. Present strings, even blank
		// ones, are kept verbatim.
		if el.Title == nil || el.Summary == nil {
			res.Dropped++
			continue
		}
		res.Insights = append(res.Insights, crawler.InsightCandidate{
			Title:   clamp(*el.Title, MaxTitleChars),
			Summary: clamp(*el.Summary, MaxSummaryChars),
		})
	}
	return res
}

func clamp(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
