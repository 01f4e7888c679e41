// Package directory implements the server-side user and movie catalog:
// user lookup by name and by address, room membership, and the movie
// list. Unlike the messenger core, the directory is guarded by a
// sync.RWMutex because it is also read and written from the admin HTTP
// surface's own goroutine (internal/httpapi) — a documented, deliberate
// exception to the rest of the system's single-logical-thread discipline.
package directory

import (
	"log"
	"sync"

	"github.com/iqdecay/chat-while-watching/internal/peer"
)

// Room identifies where a user currently is: MainRoom, a movie title, or
// the OutOfSystem sentinel used only in fan-out bookkeeping. Room values
// are never put on the wire.
type Room string

const (
	// MainRoom is the room every connected user occupies by default.
	MainRoom Room = "\x00main-room"
	// OutOfSystem represents a user no longer connected. It is used only
	// when computing user-list fan-out for a departing user.
	OutOfSystem Room = "\x00out-of-the-system"
)

// IsMovieRoom reports whether r names an actual movie room, i.e. neither
// sentinel.
func (r Room) IsMovieRoom() bool {
	return r != MainRoom && r != OutOfSystem
}

// User is one directory entry.
type User struct {
	Name    string
	Room    Room
	Address peer.Address
}

// Movie is one catalog entry: a title and the address streaming clients
// should connect to.
type Movie struct {
	Title string
	IPv4  [4]byte
	Port  uint16
}

// Directory is the server's user and movie catalog.
type Directory struct {
	mu sync.RWMutex

	usersByName map[string]*User
	usersByAddr map[string]*User // keyed by Address.String()
	movies      map[string]Movie // keyed by Title

	// onStartStreaming is fired by StartStreaming; protected by mu.
	onStartStreaming func(title string)
}

// New builds an empty Directory. The movie catalog is typically seeded
// afterward from internal/store via LoadMovies.
func New() *Directory {
	return &Directory{
		usersByName: make(map[string]*User),
		usersByAddr: make(map[string]*User),
		movies:      make(map[string]Movie),
	}
}

// SetOnStartStreaming installs the callback invoked by StartStreaming.
func (d *Directory) SetOnStartStreaming(fn func(title string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onStartStreaming = fn
}

// LoadMovies replaces the movie catalog with movies, typically called
// once at startup from the persisted catalog.
func (d *Directory) LoadMovies(movies []Movie) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.movies = make(map[string]Movie, len(movies))
	for _, m := range movies {
		d.movies[m.Title] = m
	}
}

// UserExists reports whether name is already registered.
func (d *Directory) UserExists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.usersByName[name]
	return ok
}

// AddUser registers a new user in room at addr. Callers must check
// UserExists first; AddUser overwrites any existing entry for name.
func (d *Directory) AddUser(name string, room Room, addr peer.Address) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &User{Name: name, Room: room, Address: addr}
	d.usersByName[name] = u
	d.usersByAddr[addr.String()] = u
	return u
}

// RemoveUser deletes name from the directory. It is a no-op if name is
// not registered.
func (d *Directory) RemoveUser(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.usersByName[name]
	if !ok {
		return
	}
	delete(d.usersByName, name)
	delete(d.usersByAddr, u.Address.String())
}

// GetUserByAddress looks up a user by transport address.
func (d *Directory) GetUserByAddress(addr peer.Address) (*User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.usersByAddr[addr.String()]
	return u, ok
}

// GetUserByName looks up a user by name.
func (d *Directory) GetUserByName(name string) (*User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.usersByName[name]
	return u, ok
}

// UpdateRoom moves name to room. It is a no-op if name is not registered.
func (d *Directory) UpdateRoom(name string, room Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.usersByName[name]; ok {
		u.Room = room
	}
}

// UserList returns a snapshot of every registered user. Mutating the
// returned slice or its elements does not affect directory state.
func (d *Directory) UserList() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.usersByName))
	for _, u := range d.usersByName {
		out = append(out, *u)
	}
	return out
}

// RoomOccupants returns a snapshot of every user currently in room.
func (d *Directory) RoomOccupants(room Room) []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []User
	for _, u := range d.usersByName {
		if u.Room == room {
			out = append(out, *u)
		}
	}
	return out
}

// MovieList returns a snapshot of the movie catalog.
func (d *Directory) MovieList() []Movie {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Movie, 0, len(d.movies))
	for _, m := range d.movies {
		out = append(out, m)
	}
	return out
}

// AddMovie adds or replaces a catalog entry. Used by the admin HTTP
// surface (A4).
func (d *Directory) AddMovie(m Movie) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.movies[m.Title] = m
}

// RemoveMovie deletes title from the catalog, if present.
func (d *Directory) RemoveMovie(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.movies, title)
}

// StartStreaming notifies the installed callback, if any, that title has
// started streaming. Actual media delivery is out of scope; by default
// this only logs, matching the original reference server's
// proxy.startStreamingMovie, which is itself a logging hook.
func (d *Directory) StartStreaming(title string) {
	d.mu.RLock()
	fn := d.onStartStreaming
	d.mu.RUnlock()
	if fn != nil {
		fn(title)
		return
	}
	log.Printf("[directory] start streaming %q (no streaming backend configured)", title)
}
