// Package clientrole implements the client side of the chat-while-watching
// protocol as a messenger.Handler: it drives the connect/login/room-change/
// quit state machine, resolves the wire's single status bit into the
// view internal/presentation expects, and defers pushing the initial user
// list to the presentation layer until the movie list has also arrived.
package clientrole

import (
	"log"

	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/presentation"
	"github.com/iqdecay/chat-while-watching/internal/wire"
)

// Enqueuer is the subset of *messenger.Messenger the client role depends
// on, named narrowly so tests can substitute a fake.
type Enqueuer interface {
	Enqueue(addr peer.Address, packetType byte, payload []byte) uint16
	RegisterAckWaiter(addr peer.Address, sequenceNumber uint16, waiter peer.AckWaiter)
}

// watchingSomeMovie is substituted for a room occupant's status bit when
// its 1-bit wire encoding can't tell us which movie they're in and we have
// no movie selected ourselves to assume it's the same one as. This mirrors
// the original client's own label for that case; the wire format simply
// does not carry another user's movie title.
const watchingSomeMovie = "a movie"

// Role drives one client's connection to a single server.
type Role struct {
	messenger Enqueuer
	proxy     presentation.Proxy
	server    peer.Address

	username string

	// currentMovie is "" in the main room, the movie title otherwise. It
	// is also used to resolve the ambiguous status bit on other users'
	// user-list records (see resolveUserList).
	currentMovie string

	cachedUsers    []presentation.UserEntry
	moviesReceived bool
}

// New builds a Role that talks to server through m and reports events to
// proxy.
func New(m Enqueuer, proxy presentation.Proxy, server peer.Address) *Role {
	return &Role{messenger: m, proxy: proxy, server: server}
}

// Login sends a login request carrying username. The server's
// acknowledgment confirms nothing by itself; ConnectionAccepted,
// ConnectionRefused, and the movie list are what actually drive
// InitComplete/ConnectionRejected.
func (r *Role) Login(username string) {
	r.username = username
	r.messenger.Enqueue(r.server, wire.TypeLoginRequest, wire.EncodeLoginRequest(username))
}

// SelectMovie requests joining title's room. The room change takes effect
// optimistically, matching the original client, which updates its own
// notion of "current movie" before the server's ACK arrives: the ACK is
// only the presentation-layer confirmation (JoinRoomOK), not a precondition
// for the client's own bookkeeping.
func (r *Role) SelectMovie(title string) {
	seq := r.messenger.Enqueue(r.server, wire.TypeMovieSelection, wire.EncodeMovieSelection(title))
	r.currentMovie = title
	r.messenger.RegisterAckWaiter(r.server, seq, r.proxy.JoinRoomOK)
}

// QuitMovie requests returning to the main room.
func (r *Role) QuitMovie() {
	seq := r.messenger.Enqueue(r.server, wire.TypeQuitMovie, nil)
	r.currentMovie = ""
	r.messenger.RegisterAckWaiter(r.server, seq, r.proxy.JoinRoomOK)
}

// QuitApp requests leaving the system entirely. LeaveSystemOK and Quit
// fire once the server acknowledges.
func (r *Role) QuitApp() {
	seq := r.messenger.Enqueue(r.server, wire.TypeQuitApp, nil)
	r.messenger.RegisterAckWaiter(r.server, seq, func() { r.leave("left the system") })
}

// SendChat sends a chat message to every other occupant of the caller's
// current room; the server determines room membership from the sender
// name this packet carries.
func (r *Role) SendChat(text string) {
	r.messenger.Enqueue(r.server, wire.TypeChat, wire.EncodeChat(r.username, text))
}

// HandleLogin satisfies messenger.Handler. The server never sends a login
// packet to a client; this exists only because Handler is shared by both
// roles.
func (r *Role) HandleLogin(addr peer.Address, payload []byte) {
	log.Printf("[clientrole] unexpected login packet from %s", addr)
}

// Handle dispatches an in-order, non-login, non-ACK delivery from the
// server.
func (r *Role) Handle(p *peer.Peer, packetType byte, payload []byte) {
	switch packetType {
	case wire.TypeConnectionAccepted:
		log.Printf("[clientrole] connection accepted by %s", p.Address)
	case wire.TypeConnectionRefused:
		// ConnectionRefused carries no payload (see wire package): the
		// protocol never tells the client why it was refused, only that it
		// was. The original client's own rejection message is reused
		// verbatim rather than inventing a more specific cause the wire
		// format can't actually support.
		r.proxy.ConnectionRejected("Connection was refused by the server")
		r.proxy.Quit("Connection was refused by the server")
	case wire.TypeUserList:
		r.handleUserList(payload)
	case wire.TypeMovieList:
		r.handleMovieList(payload)
	case wire.TypeChat:
		r.handleChat(payload)
	default:
		log.Printf("[clientrole] unexpected packet type %#b from %s", packetType, p.Address)
	}
}

// HandleRetransmitExhausted fires when the server has not acknowledged an
// outbound packet after MaxEmissions attempts — the connection is
// considered lost. This mirrors the original client, which routes both an
// acknowledged quit-app and a dead connection through the same
// leave-the-system path.
func (r *Role) HandleRetransmitExhausted(p *peer.Peer) {
	r.leave("server is not responding")
}

func (r *Role) leave(reason string) {
	r.proxy.LeaveSystemOK()
	r.proxy.Quit(reason)
}

func (r *Role) handleUserList(payload []byte) {
	records, err := wire.DecodeUserList(payload)
	if err != nil {
		log.Printf("[clientrole] malformed user-list payload: %v", err)
		return
	}
	r.cachedUsers = r.resolveUserList(records)
	if r.moviesReceived {
		r.proxy.UserListUpdated(r.cachedUsers)
	}
	// Otherwise this is the user list delivered during the login phase,
	// before the movie list: it stays cached and is handed to InitComplete
	// once the movie list arrives.
}

func (r *Role) handleMovieList(payload []byte) {
	records, err := wire.DecodeMovieList(payload)
	if err != nil {
		log.Printf("[clientrole] malformed movie-list payload: %v", err)
		return
	}
	movies := make([]presentation.MovieEntry, 0, len(records))
	for _, rec := range records {
		movies = append(movies, presentation.MovieEntry{Title: rec.Title, IPv4: rec.IPv4, Port: rec.Port})
	}
	r.moviesReceived = true
	r.proxy.InitComplete(r.cachedUsers, movies)
}

func (r *Role) handleChat(payload []byte) {
	sender, text, err := wire.DecodeChat(payload)
	if err != nil {
		log.Printf("[clientrole] malformed chat payload: %v", err)
		return
	}
	r.proxy.ChatReceived(sender, text)
}

// resolveUserList turns wire records into presentation entries, resolving
// the 1-bit "in a movie room" flag the only way the wire format allows:
// if we ourselves are in a movie room, any other occupant with the bit set
// is assumed to be in that same room (ties the substitution to the room
// server fan-out actually sends this record set for); otherwise we fall
// back to a generic label, since nothing on the wire names their room.
func (r *Role) resolveUserList(records []wire.UserRecord) []presentation.UserEntry {
	out := make([]presentation.UserEntry, 0, len(records))
	for _, rec := range records {
		movie := ""
		if rec.Status == wire.StatusMovieRoom {
			if r.currentMovie != "" {
				movie = r.currentMovie
			} else {
				movie = watchingSomeMovie
			}
		}
		out = append(out, presentation.UserEntry{Name: rec.Name, Movie: movie})
	}
	return out
}
