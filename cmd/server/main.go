// Command server runs the chat-while-watching server: the UDP messenger,
// the directory it drives, the SQLite-backed movie catalog, and the admin
// HTTP surface, all wired together the way server/main.go wires the
// teacher's room, store, and API server.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/iqdecay/chat-while-watching/internal/directory"
	"github.com/iqdecay/chat-while-watching/internal/httpapi"
	"github.com/iqdecay/chat-while-watching/internal/messenger"
	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/rtimer"
	"github.com/iqdecay/chat-while-watching/internal/serverrole"
	"github.com/iqdecay/chat-while-watching/internal/store"
	"github.com/iqdecay/chat-while-watching/internal/udptransport"
)

// movieFlag accumulates repeated -movie flags into a slice, matching
// flag.Value's idiom for repeatable options.
type movieFlag []string

func (m *movieFlag) String() string { return "" }
func (m *movieFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	addr := flag.String("addr", ":9000", "UDP listen address")
	apiAddr := flag.String("api-addr", ":8080", "admin HTTP API listen address (empty to disable)")
	dbPath := flag.String("db", "chat-while-watching.db", "SQLite database path")
	dropProbability := flag.Float64("drop-probability", 0, "probability, in [0,1), that an outbound datagram is silently dropped")
	serverName := flag.String("server-name", "", "display name advertised on the admin API's /health endpoint (empty to leave unset)")
	var movies movieFlag
	flag.Var(&movies, "movie", "title=ipv4:port catalog entry seeded at startup (repeatable)")
	flag.Parse()

	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()

	if *serverName != "" {
		if err := st.SetSetting(httpapi.ServerNameSettingKey, *serverName); err != nil {
			log.Fatalf("[store] set server-name: %v", err)
		}
	}

	for _, m := range movies {
		movie, err := parseMovieFlag(m)
		if err != nil {
			log.Fatalf("[server] -movie %q: %v", m, err)
		}
		if err := st.UpsertMovie(movie); err != nil {
			log.Fatalf("[store] seed movie %q: %v", movie.Title, err)
		}
	}

	dir := directory.New()
	seeded, err := st.ListMovies()
	if err != nil {
		log.Fatalf("[store] list movies: %v", err)
	}
	dir.LoadMovies(seeded)

	transport, err := udptransport.New(*addr, *dropProbability)
	if err != nil {
		log.Fatalf("[udptransport] %v", err)
	}
	defer transport.Close()

	timer := rtimer.New(64)
	m := messenger.New(transport, timer)
	role := serverrole.New(m, dir)
	m.SetHandler(role)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *apiAddr != "" {
		api := httpapi.New(dir, st)
		go api.Run(ctx, *apiAddr)
		log.Printf("[api] listening on %s", *apiAddr)
	}

	log.Printf("[server] listening on %s", *addr)
	// Datagram reads happen on their own I/O goroutine (internal/
	// udptransport.Transport.Packets), but this select loop is the only
	// place that ever calls into the messenger: both inbound datagrams
	// and fired retransmit timers are applied here, one at a time,
	// preserving the single-logical-thread invariant spec.md §5 requires.
	packets := transport.Packets(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[server] shut down")
			return
		case pkt, ok := <-packets:
			if !ok {
				log.Println("[server] shut down")
				return
			}
			m.Deliver(pkt.Datagram, pkt.Addr)
		case fn := <-timer.Fired:
			fn()
		}
	}
}

func parseMovieFlag(spec string) (directory.Movie, error) {
	title, hostPort, ok := splitLast(spec, '=')
	if !ok {
		return directory.Movie{}, errInvalidMovieFlag
	}
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return directory.Movie{}, err
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return directory.Movie{}, errInvalidMovieFlag
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return directory.Movie{}, err
	}
	var addr peer.Address
	copy(addr.IP[:], ip)
	addr.Port = uint16(port)
	return directory.Movie{Title: title, IPv4: addr.IP, Port: addr.Port}, nil
}

func splitLast(s string, sep byte) (before, after string, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

var errInvalidMovieFlag = movieFlagError("expected title=ipv4:port")

type movieFlagError string

func (e movieFlagError) Error() string { return string(e) }
