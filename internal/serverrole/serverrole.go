// Package serverrole implements the server side of the chat-while-watching
// protocol as a messenger.Handler: login/quit/movie-selection/chat dispatch,
// and the user-list fan-out algorithm that keeps every client's view of
// room membership current. It owns no transport or retransmit concerns of
// its own — those belong to internal/messenger — and reaches all shared
// state through internal/directory.
package serverrole

import (
	"log"

	"github.com/iqdecay/chat-while-watching/internal/directory"
	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/wire"
)

// Enqueuer is the subset of *messenger.Messenger the server role depends
// on, named narrowly so tests can substitute a fake.
type Enqueuer interface {
	Enqueue(addr peer.Address, packetType byte, payload []byte) uint16
	WriteDirect(addr peer.Address, packetType byte, sequenceNumber uint16, payload []byte)
	Evict(addr peer.Address)
}

// Role drives the server's reaction to every inbound packet type.
type Role struct {
	messenger Enqueuer
	directory *directory.Directory
}

// New builds a Role bound to m and dir. Call SetHandler on the messenger
// with this Role before delivering any datagram.
func New(m Enqueuer, dir *directory.Directory) *Role {
	return &Role{messenger: m, directory: dir}
}

// HandleLogin processes a login request. It is invoked even for peers the
// messenger has never seen before, since login is the one packet type
// accepted from an unknown peer.
//
// An already-registered username is refused with a direct, non-retried
// write at sequence 0: there is no point arming a retransmit timer for a
// peer the server is about to have no further relationship with.
func (r *Role) HandleLogin(addr peer.Address, payload []byte) {
	username := wire.DecodeLoginRequest(payload)
	if r.directory.UserExists(username) {
		r.messenger.WriteDirect(addr, wire.TypeConnectionRefused, 0, nil)
		return
	}

	r.directory.AddUser(username, directory.MainRoom, addr)
	r.messenger.Enqueue(addr, wire.TypeConnectionAccepted, nil)
	r.updateUserList(directory.OutOfSystem, directory.MainRoom)

	movies := r.directory.MovieList()
	records := make([]wire.MovieRecord, 0, len(movies))
	for _, m := range movies {
		records = append(records, wire.MovieRecord{Title: m.Title, IPv4: m.IPv4, Port: m.Port})
	}
	r.messenger.Enqueue(addr, wire.TypeMovieList, wire.EncodeMovieList(records))
}

// Handle dispatches an in-order, non-login, non-ACK delivery from a known
// peer.
func (r *Role) Handle(p *peer.Peer, packetType byte, payload []byte) {
	switch packetType {
	case wire.TypeMovieSelection:
		r.handleMovieSelection(p.Address, payload)
	case wire.TypeQuitMovie:
		r.handleQuitMovie(p.Address)
	case wire.TypeQuitApp:
		r.handleQuitApp(p.Address)
	case wire.TypeChat:
		r.handleChat(payload)
	default:
		log.Printf("[serverrole] unexpected packet type %#b from %s", packetType, p.Address)
	}
}

// HandleRetransmitExhausted is invoked when a peer's in-flight entry has
// gone unacknowledged for MaxEmissions attempts. The peer is treated as
// having quit the app without warning: its user is removed and the
// departure fanned out exactly as for an explicit quit-app.
func (r *Role) HandleRetransmitExhausted(p *peer.Peer) {
	user, ok := r.directory.GetUserByAddress(p.Address)
	if !ok {
		return
	}
	oldRoom := user.Room
	r.directory.RemoveUser(user.Name)
	r.updateUserList(oldRoom, directory.OutOfSystem)
}

func (r *Role) handleMovieSelection(addr peer.Address, payload []byte) {
	user, ok := r.directory.GetUserByAddress(addr)
	if !ok {
		return
	}
	title := wire.DecodeMovieSelection(payload)
	oldRoom := user.Room
	r.directory.UpdateRoom(user.Name, directory.Room(title))
	r.updateUserList(oldRoom, directory.Room(title))
	r.directory.StartStreaming(title)
	// No explicit join confirmation is sent: the ACK messenger.Deliver
	// already wrote for this packet is the client's confirmation.
}

func (r *Role) handleQuitMovie(addr peer.Address) {
	user, ok := r.directory.GetUserByAddress(addr)
	if !ok {
		return
	}
	oldRoom := user.Room
	r.directory.UpdateRoom(user.Name, directory.MainRoom)
	r.updateUserList(oldRoom, directory.MainRoom)
}

func (r *Role) handleQuitApp(addr peer.Address) {
	user, ok := r.directory.GetUserByAddress(addr)
	if !ok {
		return
	}
	oldRoom := user.Room
	r.directory.RemoveUser(user.Name)
	r.updateUserList(oldRoom, directory.OutOfSystem)
	r.messenger.Evict(addr)
}

func (r *Role) handleChat(payload []byte) {
	sender, text, err := wire.DecodeChat(payload)
	if err != nil {
		log.Printf("[serverrole] malformed chat payload: %v", err)
		return
	}
	author, ok := r.directory.GetUserByName(sender)
	if !ok {
		return
	}
	for _, u := range r.directory.RoomOccupants(author.Room) {
		if u.Name == author.Name {
			continue
		}
		r.messenger.Enqueue(u.Address, wire.TypeChat, wire.EncodeChat(sender, text))
	}
}

// updateUserList runs the three-part fan-out algorithm every room
// transition requires: refresh the old movie room (if it was one), refresh
// the new movie room (if it is one), then always refresh the main room for
// every user currently in it. A transition to or from OutOfSystem never
// names a movie room, so at most one of the first two steps ever fires.
func (r *Role) updateUserList(oldRoom, newRoom directory.Room) {
	if oldRoom.IsMovieRoom() {
		r.updateMovieRoom(oldRoom)
	}
	if newRoom.IsMovieRoom() {
		r.updateMovieRoom(newRoom)
	}
	r.updateMainRoom()
}

func (r *Role) updateMainRoom() {
	users := r.directory.UserList()
	records := make([]wire.UserRecord, 0, len(users))
	var mainRoomUsers []directory.User
	for _, u := range users {
		if u.Room == directory.MainRoom {
			records = append(records, wire.UserRecord{Name: u.Name, Status: wire.StatusMainRoom})
			mainRoomUsers = append(mainRoomUsers, u)
		} else {
			records = append(records, wire.UserRecord{Name: u.Name, Status: wire.StatusMovieRoom})
		}
	}
	payload := wire.EncodeUserList(records)
	for _, u := range mainRoomUsers {
		r.messenger.Enqueue(u.Address, wire.TypeUserList, payload)
	}
}

func (r *Role) updateMovieRoom(room directory.Room) {
	occupants := r.directory.RoomOccupants(room)
	records := make([]wire.UserRecord, 0, len(occupants))
	for _, u := range occupants {
		records = append(records, wire.UserRecord{Name: u.Name, Status: wire.StatusMovieRoom})
	}
	payload := wire.EncodeUserList(records)
	for _, u := range occupants {
		r.messenger.Enqueue(u.Address, wire.TypeUserList, payload)
	}
}
