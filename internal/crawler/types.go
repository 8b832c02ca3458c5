package crawler

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SourceStatus represents the lifecycle state of a crawl source.
type SourceStatus string

// Source status values persisted in the source store.
const (
	SourceStatusIdle      SourceStatus = "idle"
	SourceStatusCrawling  SourceStatus = "crawling"
	SourceStatusCompleted SourceStatus = "completed"
	SourceStatusFailed    SourceStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SourceStatus) Valid() bool {
	switch s {
	case SourceStatusIdle, SourceStatusCrawling, SourceStatusCompleted, SourceStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the source is not mid-crawl after a finished run.
func (s SourceStatus) Terminal() bool {
	return s == SourceStatusCompleted || s == SourceStatusFailed
}

// DateLayout is the calendar-day format used for insight dates.
const DateLayout = "2006-01-02"

// CrawlSource is a registered (URL, topic) pair owned by a user.
type CrawlSource struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	TopicID       string       `json:"topic_id"`
	UserID        string       `json:"user_id"`
	Status        SourceStatus `json:"status"`
	LastCrawledAt *time.Time   `json:"last_crawled_at"`
	ErrorMessage  *string      `json:"error_message"`
	CreatedAt     time.Time    `json:"created_at"`
}

// SourceUpdate is a partial update applied to a crawl source. Nil fields are
// left untouched; a non-nil ErrorMessage pointing at "" clears the message.
type SourceUpdate struct {
	Status        *SourceStatus
	LastCrawledAt *time.Time
	ErrorMessage  *string
}

// SourceFilter narrows ListSources. Empty fields match everything.
type SourceFilter struct {
	UserID  string
	TopicID string
	Status  SourceStatus
}

// Topic is a read-only category insights are grouped under.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description,omitempty"`
}

// SourceLink attributes an insight to the page it came from.
type SourceLink struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Insight is a short curated summary stored under a topic.
type Insight struct {
	ID          string       `json:"id"`
	TopicID     string       `json:"topic_id"`
	Title       string       `json:"title"`
	Summary     string       `json:"summary"`
	SourceLinks []SourceLink `json:"source_links"`
	Date        string       `json:"date"`
	CreatedAt   time.Time    `json:"created_at"`
}

// InsightFilter narrows ListInsights. Limit <= 0 means the store default.
type InsightFilter struct {
	TopicID string
	Date    string
	Limit   int
}

// InsightCandidate is one parsed element of a model response.
type InsightCandidate struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// FetchRequest describes a single page retrieval.
type FetchRequest struct {
	SourceID string
	URL      string
}

// FetchResponse is the raw result of a successful fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// CurationRequest carries the extracted text and topic context sent to the model.
type CurationRequest struct {
	Text             string
	TopicName        string
	TopicDescription string
	SourceURL        string
}

// QueueItem wraps a leased crawl ready to run. SourceID is always set, even
// when Source could not be loaded, so failures can be recorded.
type QueueItem struct {
	SourceID  string
	Source    CrawlSource
	Attempt   int
	Submitted int64
}

// CrawlResult summarizes one orchestrated crawl.
type CrawlResult struct {
	SourceID        string       `json:"crawl_source_id"`
	Status          SourceStatus `json:"status"`
	InsightsCreated int          `json:"insights_created"`
	InsightsDropped int          `json:"insights_dropped"`
	Err             error        `json:"-"`
}

// Success mirrors the trigger response body of the crawl endpoint.
func (r CrawlResult) Success() bool {
	return r.Status == SourceStatusCompleted
}

// HostLabel derives the human-readable attribution label for a source URL.
func HostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// ValidateSourceURL reports whether rawURL is a well-formed absolute http(s) URL.
func ValidateSourceURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// StatusPtr returns a pointer to s.
func StatusPtr(s SourceStatus) *SourceStatus {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
