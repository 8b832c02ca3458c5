package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// Kind names the mutation an Event reports.
type Kind string

// Supported change kinds.
const (
	KindSourceCreated  Kind = "source_created"
	KindSourceUpdated  Kind = "source_updated"
	KindSourceDeleted  Kind = "source_deleted"
	KindInsightCreated Kind = "insight_created"
)

// Event is a single change notification. Consumers are expected to re-read the
// record rather than trust the payload.
type Event struct {
	Kind     Kind                 `json:"kind"`
	SourceID string               `json:"source_id,omitempty"`
	TopicID  string               `json:"topic_id,omitempty"`
	Status   crawler.SourceStatus `json:"status,omitempty"`
	TS       time.Time            `json:"ts"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindSourceCreated, KindSourceUpdated, KindSourceDeleted:
		if e.SourceID == "" {
			return fmt.Errorf("%s requires source id", e.Kind)
		}
	case KindInsightCreated:
		if e.TopicID == "" {
			return errors.New("insight_created requires topic id")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
