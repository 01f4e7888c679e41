package directory

import (
	"testing"

	"github.com/iqdecay/chat-while-watching/internal/peer"
)

var aliceAddr = peer.Address{IP: [4]byte{10, 0, 0, 1}, Port: 9000}
var bobAddr = peer.Address{IP: [4]byte{10, 0, 0, 2}, Port: 9001}

func TestAddAndLookupUser(t *testing.T) {
	d := New()
	if d.UserExists("alice") {
		t.Fatalf("expected alice not to exist yet")
	}
	d.AddUser("alice", MainRoom, aliceAddr)
	if !d.UserExists("alice") {
		t.Fatalf("expected alice to exist")
	}
	u, ok := d.GetUserByName("alice")
	if !ok || u.Room != MainRoom || u.Address != aliceAddr {
		t.Fatalf("got %+v, %v", u, ok)
	}
	byAddr, ok := d.GetUserByAddress(aliceAddr)
	if !ok || byAddr.Name != "alice" {
		t.Fatalf("got %+v, %v", byAddr, ok)
	}
}

func TestRemoveUser(t *testing.T) {
	d := New()
	d.AddUser("alice", MainRoom, aliceAddr)
	d.RemoveUser("alice")
	if d.UserExists("alice") {
		t.Fatalf("expected alice to be removed")
	}
	if _, ok := d.GetUserByAddress(aliceAddr); ok {
		t.Fatalf("expected address lookup to fail after removal")
	}
}

func TestRemoveUnknownUserIsNoop(t *testing.T) {
	d := New()
	d.RemoveUser("nobody") // must not panic
}

func TestUpdateRoom(t *testing.T) {
	d := New()
	d.AddUser("alice", MainRoom, aliceAddr)
	d.UpdateRoom("alice", Room("Matrix"))
	u, _ := d.GetUserByName("alice")
	if u.Room != Room("Matrix") {
		t.Fatalf("room = %q, want Matrix", u.Room)
	}
}

func TestRoomOccupants(t *testing.T) {
	d := New()
	d.AddUser("alice", MainRoom, aliceAddr)
	d.AddUser("bob", Room("Matrix"), bobAddr)
	occupants := d.RoomOccupants(MainRoom)
	if len(occupants) != 1 || occupants[0].Name != "alice" {
		t.Fatalf("got %+v", occupants)
	}
}

func TestMovieCatalog(t *testing.T) {
	d := New()
	d.LoadMovies([]Movie{{Title: "Matrix", IPv4: [4]byte{1, 2, 3, 4}, Port: 9000}})
	if len(d.MovieList()) != 1 {
		t.Fatalf("expected one seeded movie")
	}
	d.AddMovie(Movie{Title: "Amelie", Port: 9001})
	if len(d.MovieList()) != 2 {
		t.Fatalf("expected two movies after add")
	}
	d.RemoveMovie("Matrix")
	list := d.MovieList()
	if len(list) != 1 || list[0].Title != "Amelie" {
		t.Fatalf("got %+v", list)
	}
}

func TestStartStreamingInvokesCallback(t *testing.T) {
	d := New()
	var got string
	d.SetOnStartStreaming(func(title string) { got = title })
	d.StartStreaming("Matrix")
	if got != "Matrix" {
		t.Fatalf("got %q, want Matrix", got)
	}
}

func TestStartStreamingWithoutCallbackDoesNotPanic(t *testing.T) {
	d := New()
	d.StartStreaming("Matrix") // must fall through to the logging default
}

func TestIsMovieRoom(t *testing.T) {
	if MainRoom.IsMovieRoom() || OutOfSystem.IsMovieRoom() {
		t.Fatalf("sentinels must not report as movie rooms")
	}
	if !Room("Matrix").IsMovieRoom() {
		t.Fatalf("a movie title must report as a movie room")
	}
}
