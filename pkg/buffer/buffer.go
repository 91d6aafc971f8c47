// Package buffer provides a generic, thread-safe circular queue used for
// the sample ingest queue, the generation request queue, and websocket
// broadcast backlogs.
//
// Statistics are always collected. Prometheus export is optional via
// WithMetrics. Overflow behavior is configurable per queue: the ingest
// path drops the oldest chunk under pressure, the generation queue
// rejects new requests.
package buffer

// Buffer is a bounded FIFO queue parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item. When the buffer is full the configured
	// overflow policy decides what happens.
	Write(item T) error

	// Read removes and returns the oldest item, or false when empty.
	Read() (T, bool)

	// ReadBatch removes and returns up to max items.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items.
	Clear()

	// Stats returns the buffer's operation counters.
	Stats() *Statistics

	// Close marks the buffer closed; subsequent writes fail and any
	// blocked writers are released.
	Close() error
}

// OverflowPolicy defines behavior when a Write hits a full buffer.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to admit the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item.
	DropNewest

	// Block parks the writer until space is available.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback receives every item evicted or discarded by the
// overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Returns an error only when Prometheus metric registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
