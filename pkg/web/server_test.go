package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"billy-bassistant/pkg/personality"
	"billy-bassistant/pkg/session"
)

type fakeStore struct {
	saved map[string]int
	err   error
}

func (f *fakeStore) Instructions() string { return "stay salty" }
func (f *fakeStore) Backstory() string    { return "caught in 1998" }

func (f *fakeStore) SaveTrait(name string, value int) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = map[string]int{}
	}
	f.saved[name] = value
	return nil
}

type fakeSpeaker struct {
	busy bool
	err  error
	said []string
}

func (f *fakeSpeaker) Busy() bool { return f.busy }

func (f *fakeSpeaker) Say(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.said = append(f.said, text)
	return nil
}

type fakeSongs struct{ names []string }

func (f *fakeSongs) List() []string { return f.names }

type fakeHistory struct{ dir string }

func (f *fakeHistory) Path(n int) string {
	return filepath.Join(f.dir, "response-"+string(rune('0'+n))+".wav")
}

func newTestServer(t *testing.T) (*Server, *fakeStore, *fakeSpeaker) {
	t.Helper()
	store := &fakeStore{}
	speaker := &fakeSpeaker{}
	s := NewServer(Options{
		Port:    "0",
		Profile: personality.NewProfile(),
		Store:   store,
		Speaker: speaker,
		Songs:   &fakeSongs{names: []string{"rickroll", "take-me-to-the-river"}},
		History: &fakeHistory{dir: t.TempDir()},
		ConfigView: map[string]string{
			"VOICE":          "ash",
			"OPENAI_API_KEY": "sk-****",
		},
	})
	return s, store, speaker
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	return resp, out
}

func TestGetState(t *testing.T) {
	s, _, speaker := newTestServer(t)
	speaker.busy = true
	s.PublishState("speaking")

	resp, body := doJSON(t, s, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["state"] != "speaking" || body["busy"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestGetPersonality(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodGet, "/api/personality", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	traits, ok := body["traits"].(map[string]any)
	if !ok {
		t.Fatalf("traits missing: %v", body)
	}
	if traits["humor"] != float64(70) {
		t.Errorf("humor = %v, want default 70", traits["humor"])
	}
	if body["backstory"] != "caught in 1998" {
		t.Errorf("backstory = %v", body["backstory"])
	}
	if body["instructions"] != "stay salty" {
		t.Errorf("instructions = %v", body["instructions"])
	}
}

func TestUpdatePersonality(t *testing.T) {
	s, store, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodPost, "/api/personality", map[string]any{
		"traits": map[string]int{"humor": 95, "sarcasm": 10},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}

	if v, _ := s.profile.Get("humor"); v != 95 {
		t.Errorf("humor = %d, want 95", v)
	}
	if store.saved["humor"] != 95 || store.saved["sarcasm"] != 10 {
		t.Errorf("persisted = %v", store.saved)
	}
}

func TestUpdatePersonality_UnknownTrait(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodPost, "/api/personality", map[string]any{
		"traits": map[string]int{"girth": 50},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	rejected, _ := body["rejected"].([]any)
	if len(rejected) != 1 || rejected[0] != "girth" {
		t.Errorf("rejected = %v", rejected)
	}
}

func TestUpdatePersonality_EmptyBody(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodPost, "/api/personality", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetConfig(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodGet, "/api/config", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["VOICE"] != "ash" {
		t.Errorf("VOICE = %v", body["VOICE"])
	}
	if body["OPENAI_API_KEY"] != "sk-****" {
		t.Errorf("key not masked: %v", body["OPENAI_API_KEY"])
	}
}

func TestGetSongs(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, body := doJSON(t, s, http.MethodGet, "/api/songs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	songs, _ := body["songs"].([]any)
	if len(songs) != 2 || songs[0] != "rickroll" {
		t.Errorf("songs = %v", songs)
	}
}

func TestHistoryClip(t *testing.T) {
	s, _, _ := newTestServer(t)
	hist := s.history.(*fakeHistory)

	if err := os.WriteFile(hist.Path(1), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/history/1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodGet, "/api/history/2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing clip status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodGet, "/api/history/zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad clip number status = %d, want 400", resp.StatusCode)
	}
}

func TestSay(t *testing.T) {
	s, _, speaker := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodPost, "/api/say", map[string]string{"text": "Dinner is ready"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(speaker.said) != 1 || speaker.said[0] != "Dinner is ready" {
		t.Errorf("said = %v", speaker.said)
	}
}

func TestSay_BusyConflict(t *testing.T) {
	s, _, speaker := newTestServer(t)
	speaker.err = session.ErrBusy

	resp, _ := doJSON(t, s, http.MethodPost, "/api/say", map[string]string{"text": "hello"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestSay_EmptyText(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodPost, "/api/say", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
