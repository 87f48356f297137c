package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"billy-bassistant/pkg/realtime"
)

type fakeSmartHome struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeSmartHome) Configured() bool { return true }

func (f *fakeSmartHome) Send(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func call(name string, args string) realtime.FunctionCallDone {
	return realtime.FunctionCallDone{
		Name:      name,
		CallID:    "call-1",
		Arguments: json.RawMessage(args),
	}
}

func (f *fakeStream) injectedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.injected...)
}

func TestToolSchema(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	tools := toolSchema(s.cfg.Profile)
	if len(tools) != 3 {
		t.Fatalf("len(tools) = %d, want 3", len(tools))
	}

	byName := map[string]realtime.Tool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	for _, name := range []string{"update_personality", "play_song", "smart_home_command"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("tool %s missing", name)
		}
	}

	if _, ok := byName["update_personality"].Parameters["humor"]; !ok {
		t.Error("update_personality has no humor parameter")
	}
	if got := byName["play_song"].Required; len(got) != 1 || got[0] != "song" {
		t.Errorf("play_song required = %v", got)
	}
	if got := byName["smart_home_command"].Required; len(got) != 1 || got[0] != "prompt" {
		t.Errorf("smart_home_command required = %v", got)
	}
}

func TestUpdatePersonality(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.stream = stream
	s.transcript.WriteString("stale text")

	s.dispatchTool(context.Background(), call("update_personality", `{"humor": 80}`))

	if v, _ := s.cfg.Profile.Get("humor"); v != 80 {
		t.Errorf("humor = %d, want 80", v)
	}

	injected := stream.injectedTexts()
	if len(injected) != 1 || !strings.Contains(injected[0], "Okay, humor is now set to 80%.") {
		t.Errorf("injected = %v", injected)
	}
	if _, _, _, responses := stream.counts(); responses != 1 {
		t.Errorf("responses = %d, want 1", responses)
	}

	if !s.skipTurnEval {
		t.Error("tool-call turn not flagged to skip continuation evaluation")
	}
	if !s.userSpoke.Load() {
		t.Error("confirmation turn not marked as user speech")
	}
	if s.transcript.Len() != 0 {
		t.Error("transcript not reset for the confirmation turn")
	}
}

func TestUpdatePersonality_PersistsWhenAllowed(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.stream = stream

	var saved []string
	s.cfg.AllowPersonaPersist = true
	s.cfg.SaveTrait = func(trait string, value int) error {
		saved = append(saved, trait)
		return nil
	}

	s.dispatchTool(context.Background(), call("update_personality", `{"sarcasm": 30, "humor": 90}`))

	if len(saved) != 2 {
		t.Errorf("saved = %v, want both traits persisted", saved)
	}
}

func TestUpdatePersonality_RejectsBadValues(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.stream = stream

	// Non-integral and unknown traits are dropped; with no valid change
	// there is nothing to confirm.
	s.dispatchTool(context.Background(), call("update_personality", `{"humor": 12.5, "girth": 50}`))

	if len(stream.injectedTexts()) != 0 {
		t.Error("confirmation injected for rejected changes")
	}
	if s.skipTurnEval {
		t.Error("skip flag set with no applied change")
	}
}

func TestPlaySong_StopsSessionFirst(t *testing.T) {
	stream := newFakeStream()
	s, _, motors, _ := newTestSession(t, stream)
	s.stream = stream
	s.active.Store(true)

	var played string
	var stoppedFirst bool
	s.cfg.PlaySong = func(_ context.Context, name string) error {
		played = name
		stoppedFirst = !s.Active()
		return nil
	}

	s.dispatchTool(context.Background(), call("play_song", `{"song": "rickroll"}`))

	if played != "rickroll" {
		t.Errorf("played = %q", played)
	}
	if !stoppedFirst {
		t.Error("song started while the session was still active")
	}
	if motors.stopCount() == 0 {
		t.Error("motors not stopped before the song")
	}
}

func TestPlaySong_MissingName(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.stream = stream
	s.active.Store(true)

	s.cfg.PlaySong = func(context.Context, string) error {
		t.Error("song player invoked without a song name")
		return nil
	}

	s.dispatchTool(context.Background(), call("play_song", `{}`))

	if !s.Active() {
		t.Error("session stopped on a bad play_song call")
	}
}

func TestSmartHomeCommand(t *testing.T) {
	tests := []struct {
		name  string
		home  *fakeSmartHome
		wired bool
		want  string
	}{
		{
			name:  "reply read back",
			home:  &fakeSmartHome{reply: "Turned on the kitchen light"},
			wired: true,
			want:  "Home Assistant says: Turned on the kitchen light",
		},
		{
			name:  "empty reply",
			home:  &fakeSmartHome{},
			wired: true,
			want:  "Home Assistant didn't understand the request.",
		},
		{
			name:  "bridge error",
			home:  &fakeSmartHome{err: context.DeadlineExceeded},
			wired: true,
			want:  "Home Assistant didn't understand the request.",
		},
		{
			name: "not configured",
			want: "Home Assistant didn't understand the request.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := newFakeStream()
			s, _, _, _ := newTestSession(t, stream)
			s.stream = stream
			if tt.wired {
				s.cfg.SmartHome = tt.home
			}

			s.dispatchTool(context.Background(), call("smart_home_command", `{"prompt": "turn on the kitchen light"}`))

			injected := stream.injectedTexts()
			if len(injected) != 1 || injected[0] != tt.want {
				t.Errorf("injected = %v, want %q", injected, tt.want)
			}
			if !s.skipTurnEval {
				t.Error("tool-call turn not flagged to skip continuation evaluation")
			}
			if tt.wired && tt.home.err == nil && tt.home.prompt != "turn on the kitchen light" {
				t.Errorf("bridge got prompt %q", tt.home.prompt)
			}
		})
	}
}

func TestUnknownToolIgnored(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.stream = stream

	s.dispatchTool(context.Background(), call("order_pizza", `{}`))

	if len(stream.injectedTexts()) != 0 {
		t.Error("unknown tool produced an injection")
	}
}
