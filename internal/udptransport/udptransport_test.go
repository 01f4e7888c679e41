package udptransport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/iqdecay/chat-while-watching/internal/peer"
)

func TestRoundTripDeliversDatagram(t *testing.T) {
	server, err := New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("New server: %v", err)
	}
	defer server.Close()
	client, err := New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("New client: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	server.SetReceiveHandler(func(datagram []byte, addr peer.Address) {
		received <- datagram
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.ListenAndServe(ctx)
	}()

	serverAddr, ok := addressFromUDP(server.LocalAddr())
	if !ok {
		t.Fatalf("expected server address to resolve to IPv4")
	}
	if err := client.Write([]byte("hello"), serverAddr); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Fatalf("got %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for datagram")
	}

	cancel()
	wg.Wait()
}

func TestWriteAlwaysDropsAtProbabilityOne(t *testing.T) {
	transport, err := New("127.0.0.1:0", 1.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer transport.Close()

	destAddr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:1")
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	addr, _ := addressFromUDP(destAddr)
	if err := transport.Write([]byte("x"), addr); err != nil {
		t.Fatalf("Write should no-op silently, got error: %v", err)
	}
}

func TestPacketsDeliversOntoChannel(t *testing.T) {
	server, err := New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("New server: %v", err)
	}
	defer server.Close()
	client, err := New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("New client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	packets := server.Packets(ctx)

	serverAddr, ok := addressFromUDP(server.LocalAddr())
	if !ok {
		t.Fatalf("expected server address to resolve to IPv4")
	}
	if err := client.Write([]byte("hello"), serverAddr); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case pkt := <-packets:
		if string(pkt.Datagram) != "hello" {
			t.Fatalf("got %q, want hello", pkt.Datagram)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for datagram")
	}

	cancel()
	select {
	case _, ok := <-packets:
		if ok {
			t.Fatalf("expected the channel to close once ctx is canceled")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the channel to close")
	}
}

func TestAddressFromUDPRejectsNonIPv4(t *testing.T) {
	v6 := &net.UDPAddr{IP: net.ParseIP("::1"), Port: 9000}
	if _, ok := addressFromUDP(v6); ok {
		t.Fatalf("expected IPv6 address to be rejected")
	}
}
