package web

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"billy-bassistant/pkg/session"
)

const sayTimeout = 60 * time.Second

// handleState reports what the fish is doing right now.
func (s *Server) handleState(c *fiber.Ctx) error {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()

	busy := false
	if s.speaker != nil {
		busy = s.speaker.Busy()
	}
	return c.JSON(fiber.Map{
		"state": state,
		"busy":  busy,
	})
}

// handleGetPersonality returns the live traits plus the stored
// backstory and custom instructions.
func (s *Server) handleGetPersonality(c *fiber.Ctx) error {
	resp := fiber.Map{
		"traits": s.profile.Snapshot(),
	}
	if s.store != nil {
		resp["backstory"] = s.store.Backstory()
		resp["instructions"] = s.store.Instructions()
	}
	return c.JSON(resp)
}

type personalityUpdate struct {
	Traits map[string]int `json:"traits"`
}

// handleUpdatePersonality applies trait edits to the live profile and
// persists them. Unknown traits are reported, not silently dropped.
func (s *Server) handleUpdatePersonality(c *fiber.Ctx) error {
	var req personalityUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(req.Traits) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no traits given"})
	}

	var rejected []string
	for name, value := range req.Traits {
		if !s.profile.Set(name, value) {
			rejected = append(rejected, name)
			continue
		}
		if s.store != nil {
			if err := s.store.SaveTrait(name, value); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
		}
	}

	if len(rejected) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    "unknown traits",
			"rejected": rejected,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ok",
		"traits": s.profile.Snapshot(),
	})
}

// handleConfig returns the masked configuration snapshot.
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.configView)
}

// handleSongs lists the installed songs.
func (s *Server) handleSongs(c *fiber.Ctx) error {
	names := []string{}
	if s.songs != nil {
		names = s.songs.List()
	}
	return c.JSON(fiber.Map{"songs": names})
}

// handleHistory serves one of the stored response clips.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("n"))
	if err != nil || n < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid clip number"})
	}
	if s.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "history disabled"})
	}

	path := s.history.Path(n)
	if _, err := os.Stat(path); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no such clip"})
	}
	return c.SendFile(path)
}

type sayRequest struct {
	Text string `json:"text"`
}

// handleSay speaks an announcement through the fish. Conflicts with a
// running conversation surface as 409.
func (s *Server) handleSay(c *fiber.Ctx) error {
	var req sayRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text required"})
	}
	if s.speaker == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "speaker unavailable"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), sayTimeout)
	defer cancel()

	if err := s.speaker.Say(ctx, req.Text); err != nil {
		if errors.Is(err, session.ErrBusy) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a conversation is active"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
