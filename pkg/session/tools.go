package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/metrics"
	"billy-bassistant/pkg/personality"
	"billy-bassistant/pkg/realtime"
)

// toolSchema declares the functions the model may call.
func toolSchema(profile *personality.Profile) []realtime.Tool {
	traitProps := map[string]any{}
	for _, trait := range profile.Names() {
		traitProps[trait] = map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": 100,
		}
	}

	return []realtime.Tool{
		{
			Name:        "update_personality",
			Description: "Adjusts Billy's personality traits",
			Parameters:  traitProps,
		},
		{
			Name:        "play_song",
			Description: "Plays a special Billy song based on a given name.",
			Parameters: map[string]any{
				"song": map[string]any{"type": "string"},
			},
			Required: []string{"song"},
		},
		{
			Name:        "smart_home_command",
			Description: "Send a natural language prompt to the Home Assistant conversation API and read back the response.",
			Parameters: map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The command to send to Home Assistant",
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// dispatchTool routes a completed function call to its handler. Each
// handler degrades to a spoken fallback rather than failing the
// session.
func (s *Session) dispatchTool(ctx context.Context, fc realtime.FunctionCallDone) {
	metrics.ToolCalls.WithLabelValues(fc.Name).Inc()
	log.Info("tool call", "name", fc.Name, "args", string(fc.Arguments))

	switch fc.Name {
	case "update_personality":
		s.handleUpdatePersonality(fc)
	case "play_song":
		s.handlePlaySong(ctx, fc)
	case "smart_home_command":
		s.handleSmartHome(ctx, fc)
	default:
		log.Warn("unknown tool requested", "name", fc.Name)
	}
}

// handleUpdatePersonality applies trait changes and injects a spoken
// confirmation as a fresh user turn so the session keeps going.
func (s *Session) handleUpdatePersonality(fc realtime.FunctionCallDone) {
	var args map[string]any
	if err := json.Unmarshal(fc.Arguments, &args); err != nil {
		log.Warn("bad update_personality arguments", "error", err)
		return
	}

	type change struct {
		trait string
		value int
	}
	var changes []change
	for trait, raw := range args {
		v, ok := raw.(float64)
		if !ok || v != float64(int(v)) {
			continue
		}
		if !s.cfg.Profile.Set(trait, int(v)) {
			continue
		}
		if s.cfg.AllowPersonaPersist && s.cfg.SaveTrait != nil {
			if err := s.cfg.SaveTrait(strings.ToLower(trait), int(v)); err != nil {
				log.Warn("trait persist failed", "trait", trait, "error", err)
			}
		}
		changes = append(changes, change{strings.ToLower(trait), int(v)})
	}
	if len(changes) == 0 {
		return
	}

	for _, ch := range changes {
		log.Info("personality updated", "trait", ch.trait, "value", ch.value)
	}

	// The confirmation turn counts as the user speaking, and the
	// transcript restarts with the assistant's acknowledgement.
	s.userSpoke.Store(true)
	s.transcript.Reset()
	s.touch()

	parts := make([]string, len(changes))
	for i, ch := range changes {
		parts[i] = fmt.Sprintf("Okay, %s is now set to %d%%.", ch.trait, ch.value)
	}
	s.injectAndRespond(strings.Join(parts, " "))
}

// handlePlaySong ends the conversation and hands the hardware to the
// song playback path.
func (s *Session) handlePlaySong(ctx context.Context, fc realtime.FunctionCallDone) {
	var args struct {
		Song string `json:"song"`
	}
	if err := json.Unmarshal(fc.Arguments, &args); err != nil || args.Song == "" {
		log.Warn("bad play_song arguments", "error", err)
		return
	}
	if s.cfg.PlaySong == nil {
		log.Warn("no song player configured", "song", args.Song)
		return
	}

	log.Info("song requested", "song", args.Song)
	s.Stop()
	s.sleep(time.Second)

	if err := s.cfg.PlaySong(ctx, args.Song); err != nil {
		log.Error("song playback failed", "song", args.Song, "error", err)
		return
	}
	metrics.SongsPlayed.Inc()
}

// handleSmartHome forwards the prompt to the bridge and reads the
// answer back through the model. Failures degrade to a fixed
// "didn't understand" line.
func (s *Session) handleSmartHome(ctx context.Context, fc realtime.FunctionCallDone) {
	var args struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(fc.Arguments, &args); err != nil || args.Prompt == "" {
		log.Warn("bad smart_home_command arguments", "error", err)
		return
	}

	var reply string
	if s.cfg.SmartHome != nil {
		r, err := s.cfg.SmartHome.Send(ctx, args.Prompt)
		if err != nil {
			log.Warn("smart home bridge failed", "error", err)
		} else {
			reply = r
		}
	}

	if reply != "" {
		log.Info("smart home reply", "reply", reply)
		s.injectAndRespond("Home Assistant says: " + reply)
	} else {
		s.injectAndRespond("Home Assistant didn't understand the request.")
	}
}

// injectAndRespond adds a synthetic user message and requests a fresh
// response. The turn that carried the function call is not treated as
// the end of the cycle.
func (s *Session) injectAndRespond(text string) {
	stream := s.currentStream()
	if stream == nil {
		return
	}
	if err := stream.InjectUserText(text); err != nil {
		log.Warn("inject failed", "error", err)
		return
	}
	if err := stream.CreateResponse(); err != nil {
		log.Warn("response request failed", "error", err)
		return
	}
	s.skipTurnEval = true
}
