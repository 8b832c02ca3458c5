package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors shared by stores, the dispatcher and the API.
var (
	ErrNotFound        = errors.New("Crawl source not found")
	ErrTopicNotFound   = errors.New("topic not found")
	ErrAlreadyCrawling = errors.New("crawl already in progress")
	ErrDuplicateSource = errors.New("This URL is already added for this topic")
	ErrSourceBusy      = errors.New("crawl source is currently crawling")
	ErrQueueFull       = errors.New("crawl queue is full")
	ErrQueueClosed     = errors.New("queue closed")
	ErrInterrupted     = errors.New("crawl interrupted by shutdown")
)

// FetchError reports a failure to retrieve a source page.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		status := e.Status
		if status == "" {
			status = http.StatusText(e.StatusCode)
		}
		return fmt.Sprintf("Failed to fetch website: %s", status)
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to fetch website: %v", e.Err)
	}
	return "Failed to fetch website"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CurationKind classifies generative-service failures.
type CurationKind string

// Curation failure kinds.
const (
	CurationRateLimited     CurationKind = "rate_limited"
	CurationPaymentRequired CurationKind = "payment_required"
	CurationUpstream        CurationKind = "upstream_error"
	CurationEmptyResponse   CurationKind = "empty_response"
)

// CurationError reports a failed call to the generative service.
type CurationError struct {
	Kind       CurationKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *CurationError) Error() string {
	switch e.Kind {
	case CurationRateLimited:
		return "Rate limit exceeded. Please try again later."
	case CurationPaymentRequired:
		return "Payment required. Please add credits to your workspace."
	case CurationEmptyResponse:
		return "No content received from AI"
	default:
		return "Failed to generate insights with AI"
	}
}

func (e *CurationError) Unwrap() error {
	return e.Err
}

// NewCurationError maps an upstream HTTP status to the matching kind.
func NewCurationError(statusCode int, detail string) *CurationError {
	kind := CurationUpstream
	switch statusCode {
	case http.StatusTooManyRequests:
		kind = CurationRateLimited
	case http.StatusPaymentRequired:
		kind = CurationPaymentRequired
	}
	return &CurationError{Kind: kind, StatusCode: statusCode, Detail: detail}
}

// ParseError reports model output that held no usable insights document.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "Failed to parse AI response"
}

// StoreError reports a persistence-layer failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// FailureMessage returns the human-readable text persisted on a failed source.
// Typed pipeline errors are surfaced without their wrap prefixes.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Error()
	}
	var curationErr *CurationError
	if errors.As(err, &curationErr) {
		return curationErr.Error()
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Error()
	}
	return err.Error()
}

// IsTransient reports whether a stage error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch {
		case fetchErr.StatusCode == 0:
			return true
		case fetchErr.StatusCode >= http.StatusInternalServerError:
			return true
		case fetchErr.StatusCode == http.StatusRequestTimeout || fetchErr.StatusCode == http.StatusTooEarly:
			return true
		default:
			return false
		}
	}
	var curationErr *CurationError
	if errors.As(err, &curationErr) {
		return curationErr.Kind == CurationUpstream
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
