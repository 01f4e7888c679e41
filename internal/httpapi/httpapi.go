// Package httpapi serves a small admin/observability HTTP surface
// alongside the UDP messenger, grounded on the teacher's APIServer
// (server/api.go). It reads and writes only through internal/directory
// and internal/store — never touching messenger or peer state — so it
// can run on its own goroutine without violating the single-logical-
// thread rule the messenger core requires.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/iqdecay/chat-while-watching/internal/directory"
	"github.com/iqdecay/chat-while-watching/internal/store"
)

// Server is the admin HTTP surface.
type Server struct {
	directory *directory.Directory
	store     *store.Store
	echo      *echo.Echo
}

// New builds a Server and registers all routes.
func New(dir *directory.Directory, st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{directory: dir, store: st, echo: e}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/room", s.handleRoom)
	s.echo.GET("/api/movies", s.handleListMovies)
	s.echo.POST("/api/movies", s.handleAddMovie)
	s.echo.DELETE("/api/movies/:title", s.handleDeleteMovie)
}

// Echo exposes the underlying *echo.Echo, primarily so tests can drive it
// through httptest.NewServer without binding a real port via Run.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run starts the echo server on addr and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// ServerNameSettingKey is the settings-table key an operator's
// -server-name flag is persisted under (see cmd/server).
const ServerNameSettingKey = "server_name"

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Users  int    `json:"users"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status: "ok",
		Users:  len(s.directory.UserList()),
	}
	if s.store != nil {
		if name, ok, err := s.store.GetSetting(ServerNameSettingKey); err == nil && ok {
			resp.Name = name
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// UserResponse is one element of RoomResponse.Users.
type UserResponse struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// RoomResponse is the payload for GET /api/room.
type RoomResponse struct {
	Users []UserResponse `json:"users"`
}

func (s *Server) handleRoom(c echo.Context) error {
	users := s.directory.UserList()
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		room := string(u.Room)
		if u.Room == directory.MainRoom {
			room = "main"
		}
		resp = append(resp, UserResponse{Name: u.Name, Room: room})
	}
	return c.JSON(http.StatusOK, RoomResponse{Users: resp})
}

// MovieResponse is one element of the GET /api/movies array.
type MovieResponse struct {
	Title string `json:"title"`
	IPv4  string `json:"ipv4"`
	Port  uint16 `json:"port"`
}

func (s *Server) handleListMovies(c echo.Context) error {
	movies := s.directory.MovieList()
	resp := make([]MovieResponse, 0, len(movies))
	for _, m := range movies {
		resp = append(resp, toMovieResponse(m))
	}
	return c.JSON(http.StatusOK, resp)
}

// MovieRequest is the body for POST /api/movies.
type MovieRequest struct {
	Title string `json:"title"`
	IPv4  string `json:"ipv4"`
	Port  uint16 `json:"port"`
}

func (s *Server) handleAddMovie(c echo.Context) error {
	var req MovieRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	ip, err := parseIPv4(req.IPv4)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m := directory.Movie{Title: req.Title, IPv4: ip, Port: req.Port}
	if s.store != nil {
		if err := s.store.UpsertMovie(m); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	s.directory.AddMovie(m)
	return c.JSON(http.StatusCreated, toMovieResponse(m))
}

func (s *Server) handleDeleteMovie(c echo.Context) error {
	title := c.Param("title")
	s.directory.RemoveMovie(title)
	if s.store != nil {
		if err := s.store.DeleteMovie(title); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func toMovieResponse(m directory.Movie) MovieResponse {
	return MovieResponse{
		Title: m.Title,
		IPv4:  net4String(m.IPv4),
		Port:  m.Port,
	}
}
