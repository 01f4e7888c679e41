// Package peer holds the per-peer state the messenger core mutates: send
// and receive sequence counters, the stop-and-wait send queue, the
// retransmit timer handle, and one-shot ack-waiter continuations.
package peer

import (
	"net"
	"strconv"

	"github.com/iqdecay/chat-while-watching/internal/wire"
)

// MaxEmissions is the number of transmit attempts (including the first)
// a SendEntry may reach before its peer is considered failed.
const MaxEmissions = 7

// Address identifies a peer by its UDP endpoint.
type Address struct {
	IP   [4]byte
	Port uint16
}

// String renders the address as "ip:port".
func (a Address) String() string {
	return net.JoinHostPort(net.IP(a.IP[:]).String(), strconv.Itoa(int(a.Port)))
}

// AckWaiter is a one-shot continuation invoked exactly once, when the
// sequence number it was registered against is acknowledged.
type AckWaiter func()

// SendEntry owns one fully serialized outbound datagram awaiting
// acknowledgment, its sequence number, and its emission count.
type SendEntry struct {
	Datagram       []byte
	SequenceNumber uint16
	Emissions      int
}

// Exhausted reports whether this entry has already reached MaxEmissions
// transmit attempts without being acknowledged.
func (e *SendEntry) Exhausted() bool {
	return e.Emissions >= MaxEmissions
}

// TimerHandle is an opaque reference to a scheduled retransmit timer.
type TimerHandle interface{}

// Peer is the mutable state the messenger core keeps for one remote
// endpoint. It is a pure data holder; all behavior lives in
// internal/messenger.
type Peer struct {
	Address Address

	NextSendSeq         uint16
	NextExpectedRecvSeq uint16

	SendQueue []*SendEntry

	RetransmitTimer TimerHandle

	AckWaiters map[uint16]AckWaiter
}

// New creates a Peer with all counters at zero, an empty queue, no armed
// timer, and no registered ack-waiters.
func New(addr Address) *Peer {
	return &Peer{
		Address:    addr,
		AckWaiters: make(map[uint16]AckWaiter),
	}
}

// NextSequenceNumber returns the sequence number that will be assigned to
// the next enqueued user message, and advances the counter, wrapping
// modulo the 12-bit sequence space.
func (p *Peer) NextSequenceNumber() uint16 {
	seq := p.NextSendSeq
	p.NextSendSeq = (p.NextSendSeq + 1) % wire.MaxSequenceNumber
	return seq
}

// QueueHead returns the entry currently in flight, or nil if the queue is
// empty.
func (p *Peer) QueueHead() *SendEntry {
	if len(p.SendQueue) == 0 {
		return nil
	}
	return p.SendQueue[0]
}

// Enqueue appends entry to the send queue.
func (p *Peer) Enqueue(entry *SendEntry) {
	p.SendQueue = append(p.SendQueue, entry)
}

// PopHead removes and returns the current queue head. It is a no-op
// returning nil if the queue is already empty.
func (p *Peer) PopHead() *SendEntry {
	if len(p.SendQueue) == 0 {
		return nil
	}
	head := p.SendQueue[0]
	p.SendQueue = p.SendQueue[1:]
	return head
}

// RegisterAckWaiter records a one-shot continuation for sequenceNumber,
// overwriting any previous registration for that sequence.
func (p *Peer) RegisterAckWaiter(sequenceNumber uint16, waiter AckWaiter) {
	p.AckWaiters[sequenceNumber] = waiter
}

// FireAckWaiter invokes and discards the waiter registered for
// sequenceNumber, if any. It reports whether a waiter was found.
func (p *Peer) FireAckWaiter(sequenceNumber uint16) bool {
	waiter, ok := p.AckWaiters[sequenceNumber]
	if !ok {
		return false
	}
	delete(p.AckWaiters, sequenceNumber)
	waiter()
	return true
}
