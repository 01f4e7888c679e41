// Package udptransport binds internal/messenger.Transport to a real
// *net.UDPConn, with an optional configurable drop probability standing
// in for the original reference implementation's LossyTransport (see
// original_source/protocol/udp_chat_server.py, udp_chat_client.py).
package udptransport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"

	"github.com/iqdecay/chat-while-watching/internal/peer"
)

// maxDatagramSize is large enough for any payload this protocol emits;
// movie/user lists are bounded by the number of registered users and
// catalog entries, never by fragmentation (Non-goal).
const maxDatagramSize = 65507

// Transport is a UDP-backed internal/messenger.Transport. Each
// ReadFromUDP call yields exactly one complete datagram, so the
// short-read aggregation buffer the wire format's design notes describe
// is unused here (this is a real datagram transport, not a stream).
type Transport struct {
	conn            *net.UDPConn
	dropProbability float64
	handler         func(datagram []byte, addr peer.Address)
}

// New binds a UDP socket at localAddr (e.g. ":9000"). dropProbability, in
// [0, 1), is the chance that an outbound Write is silently discarded,
// matching the original LossyTransport's role in testing retransmission.
func New(localAddr string, dropProbability float64) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen %q: %w", localAddr, err)
	}
	return &Transport{conn: conn, dropProbability: dropProbability}, nil
}

// SetReceiveHandler installs the callback invoked for every datagram read
// off the socket. It must be called before ListenAndServe.
func (t *Transport) SetReceiveHandler(h func(datagram []byte, addr peer.Address)) {
	t.handler = h
}

// Write sends datagram to addr. It may silently drop the write if the
// configured drop probability fires; callers never learn the difference
// between a dropped datagram and a lost one further downstream, matching
// the transport contract in spec.md §6.
func (t *Transport) Write(datagram []byte, addr peer.Address) error {
	if t.dropProbability > 0 && rand.Float64() < t.dropProbability {
		return nil
	}
	udpAddr := &net.UDPAddr{IP: net.IP(addr.IP[:]), Port: int(addr.Port)}
	_, err := t.conn.WriteToUDP(datagram, udpAddr)
	return err
}

// ListenAndServe reads datagrams until ctx is canceled or the socket is
// closed, dispatching each to the installed receive handler on the
// caller's own goroutine. This is appropriate when nothing else ever
// mutates messenger/peer state concurrently (as in tests, which never
// arm a retransmit timer backed by its own goroutine); cmd/server uses
// Packets instead so that timer fires and datagram delivery share one
// single-threaded pump loop, per spec.md §5.
func (t *Transport) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, udpAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("[udptransport] read error: %v", err)
			continue
		}
		addr, ok := addressFromUDP(udpAddr)
		if !ok {
			continue // non-IPv4 peer: outside this protocol's addressing model
		}
		if t.handler != nil {
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			t.handler(datagram, addr)
		}
	}
}

// Inbound is one datagram delivered by Packets.
type Inbound struct {
	Datagram []byte
	Addr     peer.Address
}

// Packets spawns a goroutine that only reads the socket and forwards each
// datagram onto the returned channel — it never invokes the receive
// handler itself. This lets a caller merge datagram arrival with other
// event sources (e.g. a rtimer.Service's Fired channel) in a single
// select loop, so exactly one goroutine ever mutates messenger state. The
// channel is closed when ctx is canceled or the socket errors out.
func (t *Transport) Packets(ctx context.Context) <-chan Inbound {
	out := make(chan Inbound)
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()
	go func() {
		defer close(out)
		buf := make([]byte, maxDatagramSize)
		for {
			n, udpAddr, err := t.conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("[udptransport] read error: %v", err)
				continue
			}
			addr, ok := addressFromUDP(udpAddr)
			if !ok {
				continue
			}
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			select {
			case out <- Inbound{Datagram: datagram, Addr: addr}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the socket's bound address, useful when New was
// called with port 0.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func addressFromUDP(udpAddr *net.UDPAddr) (peer.Address, bool) {
	ip4 := udpAddr.IP.To4()
	if ip4 == nil {
		return peer.Address{}, false
	}
	var addr peer.Address
	copy(addr.IP[:], ip4)
	addr.Port = uint16(udpAddr.Port)
	return addr, true
}
