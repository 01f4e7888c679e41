// Command client is a line-oriented terminal client for
// chat-while-watching, standing in for the teacher's Wails GUI (dropped,
// see DESIGN.md) the way the original Python project's own console
// client drove the same protocol.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"

	"github.com/iqdecay/chat-while-watching/internal/clientrole"
	"github.com/iqdecay/chat-while-watching/internal/messenger"
	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/presentation"
	"github.com/iqdecay/chat-while-watching/internal/rtimer"
	"github.com/iqdecay/chat-while-watching/internal/udptransport"
)

func main() {
	localAddr := flag.String("local", ":0", "local UDP address to bind")
	serverAddr := flag.String("server", "", "server address, host:port (required)")
	name := flag.String("name", "", "username to log in with (required)")
	dropProbability := flag.Float64("drop-probability", 0, "probability, in [0,1), that an outbound datagram is silently dropped")
	flag.Parse()

	if *serverAddr == "" || *name == "" {
		log.Fatal("[client] -server and -name are required")
	}

	server, err := resolvePeerAddress(*serverAddr)
	if err != nil {
		log.Fatalf("[client] -server %q: %v", *serverAddr, err)
	}

	transport, err := udptransport.New(*localAddr, *dropProbability)
	if err != nil {
		log.Fatalf("[udptransport] %v", err)
	}
	defer transport.Close()

	timer := rtimer.New(16)
	m := messenger.New(transport, timer)

	quit := make(chan string, 1)
	proxy := &terminalProxy{quit: quit}
	role := clientrole.New(m, proxy, server)
	m.SetHandler(role)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	go scanLines(lines)

	role.Login(*name)
	fmt.Printf("logging in as %q...\n", *name)

	packets := transport.Packets(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			m.Deliver(pkt.Datagram, pkt.Addr)
		case fn := <-timer.Fired:
			fn()
		case line, ok := <-lines:
			if !ok {
				role.QuitApp()
				lines = nil // stdin is exhausted; stop selecting on it
				continue
			}
			dispatchCommand(role, line)
		case reason := <-quit:
			fmt.Println("disconnected:", reason)
			return
		}
	}
}

func dispatchCommand(role *clientrole.Role, line string) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "chat":
		role.SendChat(arg)
	case "watch":
		role.SelectMovie(arg)
	case "leave":
		role.QuitMovie()
	case "quit":
		role.QuitApp()
	case "":
		// blank line: ignore
	default:
		fmt.Printf("unknown command %q (expected chat/watch/leave/quit)\n", cmd)
	}
}

func scanLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func resolvePeerAddress(hostPort string) (peer.Address, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", hostPort)
	if err != nil {
		return peer.Address{}, err
	}
	ip4 := udpAddr.IP.To4()
	if ip4 == nil {
		return peer.Address{}, fmt.Errorf("%q does not resolve to an IPv4 address", hostPort)
	}
	var addr peer.Address
	copy(addr.IP[:], ip4)
	addr.Port = uint16(udpAddr.Port)
	return addr, nil
}

// terminalProxy is the presentation.Proxy implementation backing the
// terminal REPL: it prints every event and, for Quit, hands the reason
// back to main's select loop so the process can exit cleanly.
type terminalProxy struct {
	quit chan<- string
}

func (p *terminalProxy) InitComplete(users []presentation.UserEntry, movies []presentation.MovieEntry) {
	fmt.Println("connected. movies available:")
	for _, m := range movies {
		fmt.Printf("  %s\n", m.Title)
	}
	printUserList(users)
}

func (p *terminalProxy) JoinRoomOK() {
	fmt.Println("room changed")
}

func (p *terminalProxy) ChatReceived(sender, text string) {
	fmt.Printf("%s: %s\n", sender, text)
}

func (p *terminalProxy) ConnectionRejected(reason string) {
	fmt.Println("login rejected:", reason)
}

func (p *terminalProxy) UserListUpdated(users []presentation.UserEntry) {
	printUserList(users)
}

func (p *terminalProxy) LeaveSystemOK() {
	fmt.Println("left the system")
}

func (p *terminalProxy) Quit(reason string) {
	select {
	case p.quit <- reason:
	default:
	}
}

func printUserList(users []presentation.UserEntry) {
	fmt.Println("users:")
	for _, u := range users {
		if u.Movie == "" {
			fmt.Printf("  %s (main room)\n", u.Name)
		} else {
			fmt.Printf("  %s (%s)\n", u.Name, u.Movie)
		}
	}
}
