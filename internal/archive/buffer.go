package archive

import (
	"sync"
	"time"

	"github.com/relaykit/gateway/internal/realtime"
)

// inbound pairs a delivered message with its local receive time.
type inbound struct {
	Msg        realtime.Message
	ReceivedAt time.Time
}

// intakeBuffer is a bounded ring between delivery callbacks and the
// writer. Put never blocks: when the ring is full the new message is
// dropped and counted, keeping the manager's read loop isolated from
// database stalls.
type intakeBuffer struct {
	mu       sync.Mutex
	buf      []inbound
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalIn      int64
	totalOut     int64
	totalDropped int64
}

func newIntakeBuffer(capacity int) *intakeBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &intakeBuffer{
		buf:      make([]inbound, capacity),
		capacity: capacity,
	}
}

// Put adds an item. Returns false if the buffer is closed or full.
func (b *intakeBuffer) Put(item inbound) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.count == b.capacity {
		b.totalDropped++
		return false
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalIn++
	return true
}

// DrainTo removes and returns up to max items, oldest first.
func (b *intakeBuffer) DrainTo(max int) []inbound {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]inbound, n)
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = inbound{} // clear reference for GC
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.totalOut++
	}

	return result
}

// Close stops accepting new items; queued items remain drainable.
func (b *intakeBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *intakeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// BufferStats describes intake buffer activity.
type BufferStats struct {
	Count        int
	Capacity     int
	TotalIn      int64
	TotalOut     int64
	TotalDropped int64
}

func (b *intakeBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:        b.count,
		Capacity:     b.capacity,
		TotalIn:      b.totalIn,
		TotalOut:     b.totalOut,
		TotalDropped: b.totalDropped,
	}
}
