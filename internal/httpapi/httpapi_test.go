package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iqdecay/chat-while-watching/internal/directory"
	"github.com/iqdecay/chat-while-watching/internal/peer"
	"github.com/iqdecay/chat-while-watching/internal/store"
)

func newTestServer(t *testing.T) (*Server, *directory.Directory) {
	t.Helper()
	dir := directory.New()
	return New(dir, nil), dir
}

func TestHealthReflectsUserCount(t *testing.T) {
	s, dir := newTestServer(t)
	dir.AddUser("alice", directory.MainRoom, peer.Address{IP: [4]byte{10, 0, 0, 1}, Port: 9000})
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Users != 1 {
		t.Fatalf("got %+v", health)
	}
}

func TestHealthReflectsConfiguredServerName(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	if err := st.SetSetting(ServerNameSettingKey, "movie-night"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	s := New(directory.New(), st)
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Name != "movie-night" {
		t.Fatalf("got name %q, want movie-night", health.Name)
	}
}

func TestRoomListsOccupants(t *testing.T) {
	s, dir := newTestServer(t)
	dir.AddUser("alice", directory.MainRoom, peer.Address{IP: [4]byte{10, 0, 0, 1}, Port: 9000})
	dir.AddUser("bob", directory.Room("Matrix"), peer.Address{IP: [4]byte{10, 0, 0, 2}, Port: 9001})
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/room")
	if err != nil {
		t.Fatalf("GET /api/room: %v", err)
	}
	defer resp.Body.Close()
	var room RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(room.Users) != 2 {
		t.Fatalf("got %+v", room)
	}
}

func TestAddAndListMovies(t *testing.T) {
	s, dir := newTestServer(t)
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	body, _ := json.Marshal(MovieRequest{Title: "Matrix", IPv4: "10.0.0.1", Port: 9000})
	resp, err := http.Post(ts.URL+"/api/movies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/movies: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(dir.MovieList()) != 1 {
		t.Fatalf("expected movie to be registered in the directory")
	}

	listResp, err := http.Get(ts.URL + "/api/movies")
	if err != nil {
		t.Fatalf("GET /api/movies: %v", err)
	}
	defer listResp.Body.Close()
	var movies []MovieResponse
	if err := json.NewDecoder(listResp.Body).Decode(&movies); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Matrix" || movies[0].IPv4 != "10.0.0.1" {
		t.Fatalf("got %+v", movies)
	}
}

func TestAddMovieRejectsMissingTitle(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	body, _ := json.Marshal(MovieRequest{IPv4: "10.0.0.1", Port: 9000})
	resp, err := http.Post(ts.URL+"/api/movies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteMovie(t *testing.T) {
	s, dir := newTestServer(t)
	dir.AddMovie(directory.Movie{Title: "Matrix", Port: 9000})
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/movies/Matrix", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(dir.MovieList()) != 0 {
		t.Fatalf("expected movie to be removed")
	}
}
