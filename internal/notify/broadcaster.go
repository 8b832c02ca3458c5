package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 32

// Broadcaster is a Sink that forwards every event to live subscribers. A slow
// subscriber loses events rather than stalling the hub.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[uint64]chan Event
	nextID     uint64
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold
// bufferSize events.
func NewBroadcaster(bufferSize int, logger *zap.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:       make(map[uint64]chan Event),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a listener. The channel closes when ctx ends, when the
// returned cancel func runs, or when the broadcaster closes.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.remove(id) })
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Consume fans the batch out to every subscriber without blocking.
func (b *Broadcaster) Consume(_ context.Context, batch []Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		for _, evt := range batch {
			select {
			case ch <- evt:
			default:
				b.logger.Debug("subscriber too slow, dropping change event",
					zap.Uint64("subscriber", id),
					zap.String("kind", string(evt.Kind)),
				)
			}
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
