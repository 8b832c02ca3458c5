package notify

import "context"

// Sink consumes batches of change events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// store decorator stays agnostic about buffering.
type Emitter interface {
	Emit(evt Event)
}
