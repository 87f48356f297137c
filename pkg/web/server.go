// Package web is the configuration and status server: REST endpoints
// for persona editing, runtime state, and response history, plus a
// live state stream over websocket.
package web

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/hub"
	"billy-bassistant/pkg/personality"
)

// Speaker serializes announcements against conversations.
type Speaker interface {
	Say(ctx context.Context, text string) error
	Busy() bool
}

// PersonaStore persists persona edits.
type PersonaStore interface {
	Instructions() string
	Backstory() string
	SaveTrait(name string, value int) error
}

// SongLister enumerates the installed songs.
type SongLister interface {
	List() []string
}

// HistoryPaths resolves stored response clips.
type HistoryPaths interface {
	Path(n int) string
}

// Server is the configuration/status server.
type Server struct {
	app  *fiber.App
	port string

	profile *personality.Profile
	store   PersonaStore
	speaker Speaker
	songs   SongLister
	history HistoryPaths

	// ConfigView is the masked configuration snapshot shown in the UI.
	configView map[string]string

	stateMu sync.RWMutex
	state   string

	stateHub *hub.Hub
}

// Options carries the server dependencies.
type Options struct {
	Port       string
	Profile    *personality.Profile
	Store      PersonaStore
	Speaker    Speaker
	Songs      SongLister
	History    HistoryPaths
	ConfigView map[string]string
}

// NewServer builds the fiber app and routes.
func NewServer(opts Options) *Server {
	s := &Server{
		port:       opts.Port,
		profile:    opts.Profile,
		store:      opts.Store,
		speaker:    opts.Speaker,
		songs:      opts.Songs,
		history:    opts.History,
		configView: opts.ConfigView,
		state:      "idle",
		stateHub:   hub.New("state"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Billy Config",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/personality", s.handleGetPersonality)
	api.Post("/personality", s.handleUpdatePersonality)
	api.Get("/config", s.handleConfig)
	api.Get("/songs", s.handleSongs)
	api.Get("/history/:n", s.handleHistory)
	api.Post("/say", s.handleSay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// Start begins serving. Blocks.
func (s *Server) Start() error {
	go s.stateHub.Run()
	log.Info("config server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync serves in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("config server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// PublishState records the assistant state and streams it to
// connected clients. Satisfies the state publisher wired alongside
// MQTT.
func (s *Server) PublishState(state string) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	s.stateHub.BroadcastJSON(stateMessage{State: state})
}

type stateMessage struct {
	State string `json:"state"`
}

// handleStateWS streams state changes; the current state is sent on
// connect so the UI never starts blank.
func (s *Server) handleStateWS(c *websocket.Conn) {
	s.stateMu.RLock()
	current := s.state
	s.stateMu.RUnlock()
	c.WriteJSON(stateMessage{State: current})

	client := hub.NewClient(s.stateHub, c)
	client.Run()
}
