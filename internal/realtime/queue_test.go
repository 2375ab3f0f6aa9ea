package realtime

import "testing"

func TestOutboundQueue_FIFO(t *testing.T) {
	q := newOutboundQueue(0)

	q.Push(Message{MessageID: "a"})
	q.Push(Message{MessageID: "b"})
	q.Push(Message{MessageID: "c"})

	for _, want := range []string{"a", "b", "c"} {
		msg, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop returned false, want %q", want)
		}
		if msg.MessageID != want {
			t.Errorf("Pop = %q, want %q", msg.MessageID, want)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue = true, want false")
	}
}

func TestOutboundQueue_PushFront(t *testing.T) {
	q := newOutboundQueue(0)
	q.Push(Message{MessageID: "b"})
	q.Push(Message{MessageID: "c"})

	// A failed drain puts the undelivered message back at the head.
	q.PushFront(Message{MessageID: "a"})

	for _, want := range []string{"a", "b", "c"} {
		msg, _ := q.Pop()
		if msg.MessageID != want {
			t.Errorf("Pop = %q, want %q", msg.MessageID, want)
		}
	}
}

func TestOutboundQueue_Unbounded(t *testing.T) {
	q := newOutboundQueue(0)
	for i := 0; i < 1000; i++ {
		if evicted := q.Push(Message{}); evicted {
			t.Fatal("unbounded queue evicted a message")
		}
	}
	if q.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", q.Len())
	}
}

func TestOutboundQueue_DropOldestWhenBounded(t *testing.T) {
	q := newOutboundQueue(2)

	if evicted := q.Push(Message{MessageID: "a"}); evicted {
		t.Error("Push a evicted, want no eviction")
	}
	if evicted := q.Push(Message{MessageID: "b"}); evicted {
		t.Error("Push b evicted, want no eviction")
	}
	if evicted := q.Push(Message{MessageID: "c"}); !evicted {
		t.Error("Push c did not evict, want oldest dropped")
	}

	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	msg, _ := q.Pop()
	if msg.MessageID != "b" {
		t.Errorf("head = %q, want b (a dropped)", msg.MessageID)
	}
	if q.totalDropped != 1 {
		t.Errorf("totalDropped = %d, want 1", q.totalDropped)
	}
}
