// Package buffer provides the bounded ring buffer that decouples stream
// ingestion from paced playback.
package buffer

import (
	"context"
	"sync"
	"time"
)

// pollInterval is how often WaitForSize re-checks the fill level.
const pollInterval = 50 * time.Millisecond

// Ring is a fixed-capacity byte buffer with overwrite-on-overflow semantics.
// When an append exceeds the remaining capacity the oldest bytes are evicted,
// so the buffer always holds the most recent window of the stream. Append,
// Consume and Clear are serialized by a single mutex and never block beyond it.
type Ring struct {
	data           []byte
	capacity       int
	filled         int
	readPos        int
	writePos       int
	bytesPerSecond int

	bytesAppended int64
	bytesConsumed int64
	bytesEvicted  int64

	mu sync.Mutex
}

// NewRing creates a ring buffer holding at most capacity bytes. The
// bytesPerSecond rate is used only for size-to-duration conversions in Health.
func NewRing(capacity, bytesPerSecond int) *Ring {
	return &Ring{
		data:           make([]byte, capacity),
		capacity:       capacity,
		bytesPerSecond: bytesPerSecond,
	}
}

// Append writes chunk into the buffer, evicting the oldest bytes when the
// chunk does not fit. A chunk at least as large as the whole buffer replaces
// its entire contents with the chunk's tail. Append never fails and never
// blocks the writer.
func (r *Ring) Append(chunk []byte) {
	if len(chunk) == 0 || r.capacity == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bytesAppended += int64(len(chunk))

	if len(chunk) >= r.capacity {
		// The chunk alone fills the buffer; keep only its tail.
		evicted := int64(r.filled) + int64(len(chunk)-r.capacity)
		copy(r.data, chunk[len(chunk)-r.capacity:])
		r.readPos = 0
		r.writePos = 0
		r.filled = r.capacity
		r.bytesEvicted += evicted
		return
	}

	// Write in at most two segments to handle wrap-around.
	remaining := chunk
	for len(remaining) > 0 {
		contiguous := r.capacity - r.writePos
		if contiguous > len(remaining) {
			contiguous = len(remaining)
		}
		copy(r.data[r.writePos:r.writePos+contiguous], remaining[:contiguous])
		r.writePos = (r.writePos + contiguous) % r.capacity
		remaining = remaining[contiguous:]
	}

	r.filled += len(chunk)
	if r.filled > r.capacity {
		// Evict the oldest bytes by advancing the read cursor.
		overflow := r.filled - r.capacity
		r.readPos = (r.readPos + overflow) % r.capacity
		r.filled = r.capacity
		r.bytesEvicted += int64(overflow)
	}
}

// Consume removes and returns up to n of the oldest bytes. It returns an
// empty slice when the buffer holds nothing; it never blocks and never errors.
func (r *Ring) Consume(n int) []byte {
	if n <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.filled {
		n = r.filled
	}
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	read := 0
	for read < n {
		contiguous := r.capacity - r.readPos
		if contiguous > n-read {
			contiguous = n - read
		}
		copy(out[read:read+contiguous], r.data[r.readPos:r.readPos+contiguous])
		r.readPos = (r.readPos + contiguous) % r.capacity
		read += contiguous
	}

	r.filled -= n
	r.bytesConsumed += int64(n)
	return out
}

// Clear empties the buffer without changing its capacity.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filled = 0
	r.readPos = 0
	r.writePos = 0
}

// Size returns the number of buffered bytes.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}

// Capacity returns the fixed capacity in bytes.
func (r *Ring) Capacity() int {
	return r.capacity
}

// WaitForSize blocks until at least n bytes are buffered or ctx is cancelled,
// polling at a fixed interval. A request for n <= 0 returns immediately.
func (r *Ring) WaitForSize(ctx context.Context, n int) error {
	if n <= 0 || r.Size() >= n {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.Size() >= n {
				return nil
			}
		}
	}
}

// Stats returns cumulative byte counters for observability.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BytesAppended: r.bytesAppended,
		BytesConsumed: r.bytesConsumed,
		BytesEvicted:  r.bytesEvicted,
	}
}

// Stats holds cumulative ring buffer counters.
type Stats struct {
	BytesAppended int64
	BytesConsumed int64
	BytesEvicted  int64
}
