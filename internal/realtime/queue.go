package realtime

// outboundQueue buffers messages that could not be transmitted. Strict
// FIFO; a failed drain re-inserts at the front so order is preserved
// across partial drains. Not safe for concurrent use; the manager holds
// its own lock around every access.
type outboundQueue struct {
	items []Message

	// maxSize bounds the queue (0 = unbounded). When full, Push evicts
	// the oldest entry.
	maxSize int

	// Stats
	totalQueued  int64
	totalDropped int64
}

func newOutboundQueue(maxSize int) *outboundQueue {
	return &outboundQueue{maxSize: maxSize}
}

// Push appends msg. Returns true if an older message was evicted to
// make room.
func (q *outboundQueue) Push(msg Message) bool {
	evicted := false
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.items = q.items[1:]
		q.totalDropped++
		evicted = true
	}
	q.items = append(q.items, msg)
	q.totalQueued++
	return evicted
}

// PushFront re-inserts a message at the head after a failed drain.
func (q *outboundQueue) PushFront(msg Message) {
	q.items = append([]Message{msg}, q.items...)
}

// Pop removes and returns the oldest message.
func (q *outboundQueue) Pop() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

func (q *outboundQueue) Len() int {
	return len(q.items)
}
