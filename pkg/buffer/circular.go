package buffer

import (
	"sync"

	"github.com/llamasearchai/llamaneuro/errors"
)

// circularBuffer is a fixed-capacity ring with head/tail indices.
// head points at the next write slot, tail at the next read slot.
type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int
	tail     int

	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]

	// Block policy waiters
	notFull *sync.Cond
	closed  bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notFull = sync.NewCond(&cb.mu)
	return cb, nil
}

// Write appends item, applying the overflow policy when full. Drop
// callbacks run after the lock is released so a callback may re-enter
// the buffer.
func (cb *circularBuffer[T]) Write(item T) error {
	dropped, err := cb.write(item)
	if cb.opts.dropCallback != nil {
		for _, d := range dropped {
			cb.opts.dropCallback(d)
		}
	}
	return err
}

func (cb *circularBuffer[T]) write(item T) ([]T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	var dropped []T
	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			dropped = append(dropped, cb.items[cb.tail])
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--

			cb.stats.recordOverflow()
			cb.stats.recordDrop()
			if cb.metrics != nil {
				cb.metrics.recordOverflow()
				cb.metrics.recordDrop()
			}

		case DropNewest:
			cb.stats.recordOverflow()
			cb.stats.recordDrop()
			if cb.metrics != nil {
				cb.metrics.recordOverflow()
				cb.metrics.recordDrop()
			}
			return []T{item}, nil

		case Block:
			for cb.size == cb.capacity && !cb.closed {
				cb.notFull.Wait()
			}
			if cb.closed {
				return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write",
					"buffer closed during blocking wait")
			}
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.recordWrite()
	cb.stats.updateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}
	return dropped, nil
}

func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero // release for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.recordRead()
	cb.stats.updateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	cb.notFull.Signal()
	return item, true
}

func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	n := max
	if n > cb.size {
		n = cb.size
	}

	var zero T
	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--
		cb.stats.recordRead()
		if cb.metrics != nil {
			cb.metrics.recordRead(cb.size, cb.capacity)
		}
	}
	cb.stats.updateSize(int64(cb.size))

	cb.notFull.Broadcast()
	return result
}

func (cb *circularBuffer[T]) Peek() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}
	return cb.items[cb.tail], true
}

func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == cb.capacity
}

func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == 0
}

func (cb *circularBuffer[T]) Clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	for i := range cb.items {
		cb.items[i] = zero
	}
	cb.head = 0
	cb.tail = 0
	cb.size = 0

	cb.stats.updateSize(0)
	if cb.metrics != nil {
		cb.metrics.updateGauges(0, cb.capacity)
	}

	cb.notFull.Broadcast()
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true

	// Release blocked writers.
	cb.notFull.Broadcast()
	return nil
}
