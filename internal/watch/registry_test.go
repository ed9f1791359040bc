package watch

import (
	"errors"
	"sync"
	"testing"
)

// chanSubscriber records received messages; fail makes every send error.
type chanSubscriber struct {
	mu       sync.Mutex
	received []Message
	fail     bool
}

func (c *chanSubscriber) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection reset")
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *chanSubscriber) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.received))
	copy(out, c.received)
	return out
}

func TestSubscribeUnsubscribeCounts(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a, b := &chanSubscriber{}, &chanSubscriber{}
	if got := r.Subscribe("t1", a); got != 1 {
		t.Errorf("Subscribe = %d, want 1", got)
	}
	if got := r.Subscribe("t1", b); got != 2 {
		t.Errorf("Subscribe = %d, want 2", got)
	}
	if got := r.Count("t1"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := r.Unsubscribe("t1", a); got != 1 {
		t.Errorf("Unsubscribe = %d, want 1", got)
	}
	if got := r.Unsubscribe("t1", b); got != 0 {
		t.Errorf("Unsubscribe = %d, want 0", got)
	}
	// Unknown subscriber/task are no-ops.
	if got := r.Unsubscribe("t1", a); got != 0 {
		t.Errorf("Unsubscribe = %d, want 0", got)
	}
	if got := r.Unsubscribe("ghost", a); got != 0 {
		t.Errorf("Unsubscribe = %d, want 0", got)
	}
}

func TestBroadcastNoSubscribersIsNoop(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if got := r.Broadcast("t1", Error("nobody home")); got != 0 {
		t.Errorf("Broadcast = %d, want 0", got)
	}
}

func TestBroadcastRemovesFailedSubscriber(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	good1, broken, good2 := &chanSubscriber{}, &chanSubscriber{fail: true}, &chanSubscriber{}
	r.Subscribe("t1", good1)
	r.Subscribe("t1", broken)
	r.Subscribe("t1", good2)

	msg := Connected("t1")
	if got := r.Broadcast("t1", msg); got != 2 {
		t.Errorf("Broadcast = %d, want 2 successful sends", got)
	}
	if got := r.Count("t1"); got != 2 {
		t.Errorf("Count after failure = %d, want 2 (broken removed)", got)
	}

	// Subsequent broadcasts succeed for the survivors.
	if got := r.Broadcast("t1", msg); got != 2 {
		t.Errorf("second Broadcast = %d, want 2", got)
	}
	if len(good1.messages()) != 2 || len(good2.messages()) != 2 {
		t.Error("surviving subscribers missed messages")
	}
}

func TestBroadcastIsolatedPerTask(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a, b := &chanSubscriber{}, &chanSubscriber{}
	r.Subscribe("t1", a)
	r.Subscribe("t2", b)

	r.Broadcast("t1", Connected("t1"))

	if len(a.messages()) != 1 {
		t.Errorf("t1 subscriber got %d messages, want 1", len(a.messages()))
	}
	if len(b.messages()) != 0 {
		t.Errorf("t2 subscriber got %d messages, want 0", len(b.messages()))
	}
}

func TestConcurrentSubscribeDuringBroadcast(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	for range 8 {
		r.Subscribe("t1", &chanSubscriber{})
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Broadcast("t1", Connected("t1"))
		}()
		go func() {
			defer wg.Done()
			sub := &chanSubscriber{}
			r.Subscribe("t1", sub)
			r.Unsubscribe("t1", sub)
		}()
	}
	wg.Wait()

	if got := r.Count("t1"); got != 8 {
		t.Errorf("Count = %d, want 8", got)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	r.Subscribe("t1", &chanSubscriber{})
	r.Subscribe("t1", &chanSubscriber{})

	if got := r.Clear("t1"); got != 2 {
		t.Errorf("Clear = %d, want 2", got)
	}
	if got := r.Count("t1"); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}
