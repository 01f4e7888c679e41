package peer

import "testing"

func TestNewPeerZeroState(t *testing.T) {
	p := New(Address{IP: [4]byte{127, 0, 0, 1}, Port: 9000})
	if p.NextSendSeq != 0 || p.NextExpectedRecvSeq != 0 {
		t.Fatalf("expected zero counters, got %+v", p)
	}
	if len(p.SendQueue) != 0 {
		t.Fatalf("expected empty queue, got %v", p.SendQueue)
	}
	if p.RetransmitTimer != nil {
		t.Fatalf("expected no armed timer")
	}
	if len(p.AckWaiters) != 0 {
		t.Fatalf("expected no ack waiters")
	}
}

func TestNextSequenceNumberWraps(t *testing.T) {
	p := New(Address{})
	p.NextSendSeq = 4095
	if got := p.NextSequenceNumber(); got != 4095 {
		t.Fatalf("got %d, want 4095", got)
	}
	if p.NextSendSeq != 0 {
		t.Fatalf("expected wrap to 0, got %d", p.NextSendSeq)
	}
}

func TestQueueFIFO(t *testing.T) {
	p := New(Address{})
	first := &SendEntry{SequenceNumber: 0}
	second := &SendEntry{SequenceNumber: 1}
	p.Enqueue(first)
	p.Enqueue(second)
	if p.QueueHead() != first {
		t.Fatalf("expected head to be first entry")
	}
	popped := p.PopHead()
	if popped != first {
		t.Fatalf("expected to pop first entry")
	}
	if p.QueueHead() != second {
		t.Fatalf("expected head to be second entry after pop")
	}
}

func TestPopHeadOnEmptyQueue(t *testing.T) {
	p := New(Address{})
	if p.PopHead() != nil {
		t.Fatalf("expected nil from empty queue")
	}
}

func TestSendEntryExhaustion(t *testing.T) {
	e := &SendEntry{Emissions: MaxEmissions - 1}
	if e.Exhausted() {
		t.Fatalf("entry with %d emissions should not be exhausted", e.Emissions)
	}
	e.Emissions++
	if !e.Exhausted() {
		t.Fatalf("entry with %d emissions should be exhausted", e.Emissions)
	}
}

func TestAckWaiterFiresOnce(t *testing.T) {
	p := New(Address{})
	calls := 0
	p.RegisterAckWaiter(5, func() { calls++ })
	if !p.FireAckWaiter(5) {
		t.Fatalf("expected waiter to be found")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if p.FireAckWaiter(5) {
		t.Fatalf("waiter should have been discarded after firing")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no second invocation)", calls)
	}
}

func TestAddressString(t *testing.T) {
	a := Address{IP: [4]byte{10, 0, 0, 1}, Port: 9000}
	if got, want := a.String(), "10.0.0.1:9000"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
