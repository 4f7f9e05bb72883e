// Package eventbus is an in-memory publish/subscribe bus for recorder
// notifications.
//
// Publish never blocks: each subscriber owns a buffered channel and events
// that do not fit are dropped. Nothing is persisted; the store is the source
// of truth and the bus only tells listeners where to look.
package eventbus

import "sync"

// Topics published by the recorder.
const (
	// TopicVersion carries a VersionEvent when a new version is stored.
	TopicVersion = "lmp.version"

	// TopicInvocation carries an InvocationEvent after a call is recorded.
	TopicInvocation = "lmp.invocation"
)

// VersionEvent announces a newly stored version.
type VersionEvent struct {
	LMPID   string
	Name    string
	Version int64
}

// InvocationEvent announces a recorded invocation.
type InvocationEvent struct {
	InvocationID string
	LMPID        string
	Failed       bool
}

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus publishes and subscribes to topics.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 100

// Bus is the in-memory EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	bufferSize  int
	closed      bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber buffer. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// New returns an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string][]chan Event),
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber for topic. The caller must drain the
// channel; a full buffer drops later events. Subscribing to a closed bus
// returns a closed channel.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// Publish sends payload to every subscriber of topic without blocking.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = nil
}
