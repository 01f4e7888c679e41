// Package messenger implements the stop-and-wait reliability engine shared
// by the server and client roles: outbound transmission with retransmit
// timers, inbound dispatch with duplicate suppression, and peer eviction
// on retransmit exhaustion. It owns no knowledge of packet semantics
// beyond the frame codec; typed behavior is supplied by a Handler.
package messenger

import (
	"time"

	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/wire"
)

// RetransmitInterval is the fixed retransmit period for unacknowledged
// datagrams.
const RetransmitInterval = time.Second

// Transport is the datagram I/O boundary the messenger writes to and
// receives from. Implementations may drop, duplicate, or reorder
// datagrams; the messenger only assumes each delivered buffer is one
// complete datagram.
type Transport interface {
	Write(datagram []byte, addr peer.Address) error
	SetReceiveHandler(func(datagram []byte, addr peer.Address))
}

// Timer is the delayed-callback boundary used for retransmission.
type Timer interface {
	Schedule(d time.Duration, fn func()) peer.TimerHandle
	Cancel(h peer.TimerHandle)
}

// Handler receives typed deliveries dispatched by the messenger core. The
// server and client roles each implement it to drive their own behavior;
// the messenger itself never inspects payload semantics.
type Handler interface {
	// HandleLogin is invoked for a login-request payload; unlike Handle,
	// this fires even for peers not yet known to the messenger, since
	// login is the only non-ACK packet type accepted from an unknown peer.
	HandleLogin(addr peer.Address, payload []byte)
	// Handle is invoked for an accepted, in-order, non-login, non-ACK
	// delivery from a known peer.
	Handle(p *peer.Peer, packetType byte, payload []byte)
	// HandleRetransmitExhausted is invoked when a peer's in-flight entry
	// has reached MaxEmissions without acknowledgment, just before the
	// messenger evicts that peer's state.
	HandleRetransmitExhausted(p *peer.Peer)
}

// Messenger is the single-threaded reliability core. All exported methods
// are meant to be called from one logical thread of execution; the type
// performs no internal locking of its own (see internal/directory for the
// one documented exception to that rule).
type Messenger struct {
	transport Transport
	timer     Timer
	handler   Handler

	peers map[string]*peer.Peer
}

// New builds a Messenger bound to transport and timer. It registers
// itself as the transport's receive handler.
func New(transport Transport, timer Timer) *Messenger {
	m := &Messenger{
		transport: transport,
		timer:     timer,
		peers:     make(map[string]*peer.Peer),
	}
	transport.SetReceiveHandler(m.Deliver)
	return m
}

// SetHandler installs the typed dispatch target. It must be called before
// any datagram is delivered.
func (m *Messenger) SetHandler(h Handler) {
	m.handler = h
}

// PeerCount returns the number of peers the messenger currently tracks.
func (m *Messenger) PeerCount() int {
	return len(m.peers)
}

// Enqueue builds a datagram of packetType carrying payload, assigns it the
// peer's next sequence number, and appends it to that peer's send queue.
// The peer is created if it was not already known. If the queue was
// empty, the new entry is transmitted immediately.
func (m *Messenger) Enqueue(addr peer.Address, packetType byte, payload []byte) uint16 {
	p := m.getOrCreatePeer(addr)
	seq := p.NextSequenceNumber()
	entry := &peer.SendEntry{
		Datagram:       wire.EncodePacket(packetType, seq, payload),
		SequenceNumber: seq,
	}
	wasEmpty := len(p.SendQueue) == 0
	p.Enqueue(entry)
	if wasEmpty {
		m.transmit(p)
	}
	return seq
}

// RegisterAckWaiter records a one-shot continuation fired when
// sequenceNumber is acknowledged for addr. It is a no-op if addr is not a
// known peer.
func (m *Messenger) RegisterAckWaiter(addr peer.Address, sequenceNumber uint16, waiter peer.AckWaiter) {
	if p, ok := m.peers[addr.String()]; ok {
		p.RegisterAckWaiter(sequenceNumber, waiter)
	}
}

// Evict cancels addr's retransmit timer and drops all of its state. It is
// idempotent: evicting an unknown or already-evicted peer is a no-op.
func (m *Messenger) Evict(addr peer.Address) {
	key := addr.String()
	p, ok := m.peers[key]
	if !ok {
		return
	}
	if p.RetransmitTimer != nil {
		m.timer.Cancel(p.RetransmitTimer)
	}
	delete(m.peers, key)
}

// Deliver is the single inbound entry point, registered with the
// transport. It parses the header, then applies ACK handling, login
// dispatch, or ordered dispatch with duplicate suppression per the wire
// protocol.
func (m *Messenger) Deliver(datagram []byte, addr peer.Address) {
	h, payload, err := wire.DecodePacket(datagram)
	if err != nil {
		return // MalformedHeader / MalformedPayload: dropped silently.
	}

	switch h.Type {
	case wire.TypeAck:
		m.handleAck(addr, h.SequenceNumber)
	case wire.TypeLoginRequest:
		// Login is dispatched unconditionally, even on redelivery (the
		// client may resend it if its ACK was lost) — unlike every other
		// packet type, there is no duplicate-suppression gate here. Unlike
		// every other branch, a login never vivifies peer state itself:
		// creation only happens as a side effect of the handler's accept
		// path (via Enqueue), so a rejected login never leaks an entry
		// into m.peers.
		m.sendAck(addr, h.SequenceNumber)
		_, existed := m.peers[addr.String()]
		if m.handler != nil {
			m.handler.HandleLogin(addr, payload)
		}
		if !existed {
			if p, ok := m.peers[addr.String()]; ok {
				// The handler's accept path just created this peer; fold
				// in the login's own sequence number so the client's next
				// packet (seq+1) is recognized as in-order.
				p.NextExpectedRecvSeq = (h.SequenceNumber + 1) % wire.MaxSequenceNumber
			}
		}
	default:
		p, ok := m.peers[addr.String()]
		if !ok {
			return // UnknownPeer for non-login, non-ACK: ignored, no ACK.
		}
		m.sendAck(addr, h.SequenceNumber)
		if h.SequenceNumber != p.NextExpectedRecvSeq {
			return // duplicate or out-of-order: acked above, not dispatched.
		}
		p.NextExpectedRecvSeq = (p.NextExpectedRecvSeq + 1) % wire.MaxSequenceNumber
		if m.handler != nil {
			m.handler.Handle(p, h.Type, payload)
		}
	}
}

func (m *Messenger) handleAck(addr peer.Address, sequenceNumber uint16) {
	p, ok := m.peers[addr.String()]
	if !ok {
		return // ACKs from unknown peers are ignored.
	}
	head := p.QueueHead()
	if head == nil || head.SequenceNumber != sequenceNumber {
		return // matches neither a pending entry: silently discarded.
	}
	p.PopHead()
	if p.RetransmitTimer != nil {
		m.timer.Cancel(p.RetransmitTimer)
		p.RetransmitTimer = nil
	}
	p.FireAckWaiter(sequenceNumber)
	if p.QueueHead() != nil {
		m.transmit(p)
	}
}

// sendAck writes an acknowledgment directly through the transport. It is
// never enqueued or retransmitted.
func (m *Messenger) sendAck(addr peer.Address, sequenceNumber uint16) {
	m.transport.Write(wire.EncodePacket(wire.TypeAck, sequenceNumber, nil), addr)
}

// WriteDirect writes one datagram straight through the transport, bypassing
// the send queue entirely: it is never retried and its acknowledgment, if
// any arrives, is not awaited. This mirrors the original connection-refusal
// path, which is a one-shot, best-effort reply to a peer the server is
// about to forget (there is nothing to retry into).
func (m *Messenger) WriteDirect(addr peer.Address, packetType byte, sequenceNumber uint16, payload []byte) {
	m.transport.Write(wire.EncodePacket(packetType, sequenceNumber, payload), addr)
}

// transmit (re)sends the current queue head, bumps its emission count, and
// arms a fresh retransmit timer.
func (m *Messenger) transmit(p *peer.Peer) {
	entry := p.QueueHead()
	if entry == nil {
		return
	}
	m.transport.Write(entry.Datagram, p.Address)
	entry.Emissions++
	addr := p.Address
	p.RetransmitTimer = m.timer.Schedule(RetransmitInterval, func() {
		m.retransmitTimerFired(addr)
	})
}

func (m *Messenger) retransmitTimerFired(addr peer.Address) {
	p, ok := m.peers[addr.String()]
	if !ok {
		return // timer fired for an already-evicted peer: no-op.
	}
	entry := p.QueueHead()
	if entry == nil {
		return
	}
	if entry.Exhausted() {
		m.fail(p)
		return
	}
	m.transmit(p)
}

func (m *Messenger) fail(p *peer.Peer) {
	if m.handler != nil {
		m.handler.HandleRetransmitExhausted(p)
	}
	m.Evict(p.Address)
}

func (m *Messenger) getOrCreatePeer(addr peer.Address) *peer.Peer {
	key := addr.String()
	p, ok := m.peers[key]
	if !ok {
		p = peer.New(addr)
		m.peers[key] = p
	}
	return p
}
