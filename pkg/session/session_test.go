package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/audioio"
	"billy-bassistant/pkg/personality"
	"billy-bassistant/pkg/realtime"
)

// fakeStream is a scripted Stream: tests push events, the session
// reads them, and every outbound call is recorded.
type fakeStream struct {
	mu        sync.Mutex
	events    chan realtime.Event
	done      chan struct{}
	closeOnce sync.Once

	configures int
	commits    int
	appends    int
	injected   []string
	responses  int
	ended      int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan realtime.Event, 64),
		done:   make(chan struct{}),
	}
}

func (f *fakeStream) push(ev realtime.Event) { f.events <- ev }

func (f *fakeStream) Configure(realtime.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configures++
	return nil
}

func (f *fakeStream) AppendAudio([]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	return nil
}

func (f *fakeStream) CommitAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeStream) InjectUserText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, text)
	return nil
}

func (f *fakeStream) InjectFunctionOutput(string, string) error { return nil }

func (f *fakeStream) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return nil
}

func (f *fakeStream) CancelResponse() error { return nil }

func (f *fakeStream) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func (f *fakeStream) ReadEvent(ctx context.Context) (realtime.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return nil, realtime.ErrClosed
	case ev := <-f.events:
		return ev, nil
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeStream) counts() (configures, commits, appends, responses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configures, f.commits, f.appends, f.responses
}

type fakePlayback struct {
	mu   sync.Mutex
	last time.Time
}

func (p *fakePlayback) LastPlayed() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *fakePlayback) Speaking() bool { return false }

type fakeMotors struct {
	mu       sync.Mutex
	stopAlls int
	heads    []bool
	tails    int
}

func (m *fakeMotors) MoveHead(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads = append(m.heads, on)
}

func (m *fakeMotors) TailAsync(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tails++
}

func (m *fakeMotors) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAlls++
}

func (m *fakeMotors) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopAlls
}

type fakePublisher struct {
	mu     sync.Mutex
	states []string
}

func (p *fakePublisher) PublishState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func (p *fakePublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.states...)
}

// drainQueue runs a stand-in playback worker so Join does not block.
func drainQueue(t *testing.T, q *audio.Queue) {
	t.Helper()
	go func() {
		for {
			item := q.Get()
			q.TaskDone()
			if item == nil {
				return
			}
		}
	}()
	t.Cleanup(func() { q.Put(nil) })
}

func newTestSession(t *testing.T, stream *fakeStream) (*Session, *audio.Queue, *fakeMotors, *fakePublisher) {
	t.Helper()
	q := audio.NewQueue()
	drainQueue(t, q)
	motors := &fakeMotors{}
	pub := &fakePublisher{}

	cfg := Config{
		APIKey:           "test-key",
		Model:            "test-model",
		Voice:            "ash",
		ChunkMS:          50,
		SilenceThreshold: 2000,
		MicTimeout:       5 * time.Second,
		Instructions:     func() string { return "be a fish" },
		Dialer: func(context.Context, string, string) (realtime.Stream, error) {
			return stream, nil
		},
		Mic:      audioio.NewMockSource(audioio.DefaultConfig()),
		Queue:    q,
		Playback: &fakePlayback{last: time.Now().Add(-time.Hour)},
		Motors:   motors,
		Publish:  pub,
		Profile:  personality.NewProfile(),
	}

	s := NewSession(cfg)
	s.poll = time.Hour // keep the idle watchdog quiet during tests
	s.sleep = func(time.Duration) { time.Sleep(time.Millisecond) }
	return s, q, motors, pub
}

func pcm(n int) []byte { return make([]byte, n*2) }

func TestSession_CommitOncePerTurn(t *testing.T) {
	stream := newFakeStream()
	s, _, _, pub := newTestSession(t, stream)

	stream.push(realtime.SessionCreated{SessionID: "s1"})
	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.AudioDelta{Audio: pcm(1200)})
	stream.push(realtime.AudioDelta{Audio: pcm(1200)})
	stream.push(realtime.TranscriptDelta{Text: "Okay, done."})
	stream.push(realtime.TurnDone{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	configures, commits, _, _ := stream.counts()
	if configures != 1 {
		t.Errorf("configures = %d, want 1", configures)
	}
	if commits != 1 {
		t.Errorf("commits = %d, want exactly 1", commits)
	}

	states := pub.seen()
	if len(states) < 3 || states[0] != "listening" || states[len(states)-1] != "idle" {
		t.Errorf("states = %v", states)
	}
	found := false
	for _, st := range states {
		if st == "speaking" {
			found = true
		}
	}
	if !found {
		t.Error("speaking state never published")
	}
}

func TestSession_NoCommitBeforeInitialized(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	// Audio arrives before the configuration acknowledgement.
	stream.push(realtime.AudioDelta{Audio: pcm(1200)})
	stream.push(realtime.TurnDone{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, commits, _, _ := stream.counts()
	if commits != 0 {
		t.Errorf("commits = %d before session.updated, want 0", commits)
	}
}

func TestSession_MicDropsFramesBeforeInit(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.active.Store(true)
	s.micEnabled.Store(true)
	s.stream = stream

	chunk := audioio.Chunk{Samples: make([]int16, 1200), SampleRate: 24000}

	s.forwardMicChunk(chunk) // not initialized yet
	if _, _, appends, _ := stream.counts(); appends != 0 {
		t.Error("frame forwarded before initialization")
	}

	s.initialized.Store(true)
	s.forwardMicChunk(chunk)
	if _, _, appends, _ := stream.counts(); appends != 1 {
		t.Error("frame not forwarded after initialization")
	}
}

func TestSession_MicGatedWhileSpeaking(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.active.Store(true)
	s.initialized.Store(true)
	s.stream = stream

	s.micEnabled.Store(false)
	s.forwardMicChunk(audioio.Chunk{Samples: make([]int16, 1200)})
	if _, _, appends, _ := stream.counts(); appends != 0 {
		t.Error("frame forwarded while mic disabled")
	}
}

func TestSession_LoudMicMarksUserSpoke(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)
	s.active.Store(true)
	s.initialized.Store(true)
	s.micEnabled.Store(true)
	s.stream = stream

	quiet := make([]int16, 1200)
	s.forwardMicChunk(audioio.Chunk{Samples: quiet})
	if s.userSpoke.Load() {
		t.Error("silence marked as speech")
	}

	loud := make([]int16, 1200)
	for i := range loud {
		loud[i] = 5000
	}
	before := s.lastActivity.Load()
	s.forwardMicChunk(audioio.Chunk{Samples: loud})
	if !s.userSpoke.Load() {
		t.Error("loud frame not marked as speech")
	}
	if s.lastActivity.Load() <= before {
		t.Error("loud frame did not refresh activity")
	}
}

func TestSession_InterruptFlushesAndDeactivates(t *testing.T) {
	stream := newFakeStream()
	s, q, motors, _ := newTestSession(t, stream)

	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.AudioDelta{Audio: pcm(1200)})

	go func() {
		// Interrupt after the first chunk, then feed one more.
		time.Sleep(50 * time.Millisecond)
		s.Interrupt()
		stream.push(realtime.AudioDelta{Audio: pcm(1200)})
	}()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if s.Active() {
		t.Error("session still active after interrupt")
	}
	if s.interrupted.Load() {
		t.Error("interrupt flag not cleared")
	}
	if q.Len() != 0 {
		t.Errorf("queue still holds %d items", q.Len())
	}
	if motors.stopCount() == 0 {
		t.Error("motors not stopped on interrupt exit")
	}
}

func TestSession_FollowUpContinuation(t *testing.T) {
	stream := newFakeStream()
	s, _, _, pub := newTestSession(t, stream)

	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.TranscriptDelta{Text: "Is that so?"})

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.userSpoke.Store(true)
		stream.push(realtime.TurnDone{})

		// Second cycle: a statement ends the session.
		time.Sleep(50 * time.Millisecond)
		stream.push(realtime.TranscriptDelta{Text: "Okay, done."})
		stream.push(realtime.TurnDone{})
	}()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// One connection, configured once, across both cycles.
	configures, _, _, _ := stream.counts()
	if configures != 1 {
		t.Errorf("configures = %d across follow-up, want 1", configures)
	}

	// listening published once per cycle.
	listens := 0
	for _, st := range pub.seen() {
		if st == "listening" {
			listens++
		}
	}
	if listens != 2 {
		t.Errorf("listening published %d times, want 2", listens)
	}
}

func TestSession_QuestionWithoutUserSpeechEnds(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.TranscriptDelta{Text: "Anything else?"})
	stream.push(realtime.TurnDone{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Error("session still active")
	}
}

func TestShouldContinue(t *testing.T) {
	tests := []struct {
		transcript string
		userSpoke  bool
		want       bool
	}{
		{"...is that so?", true, true},
		{"Okay, done.", true, false},
		{"Anything else?", false, false},
		{"Is that so?   ", true, true},
		{"100%?", true, false}, // needs a letter before the question mark
		{"", true, false},
	}

	for _, tt := range tests {
		s := &Session{}
		s.transcript.WriteString(tt.transcript)
		s.userSpoke.Store(tt.userSpoke)
		if got := s.shouldContinue(); got != tt.want {
			t.Errorf("shouldContinue(%q, spoke=%v) = %v, want %v",
				tt.transcript, tt.userSpoke, got, tt.want)
		}
	}
}

func TestSession_StopIdempotent(t *testing.T) {
	stream := newFakeStream()
	s, _, motors, _ := newTestSession(t, stream)

	// Stop before start: nothing to do.
	s.Stop()
	if motors.stopCount() != 0 {
		t.Error("stop on idle session touched motors")
	}

	s.active.Store(true)
	s.stream = stream
	s.Stop()
	if motors.stopCount() != 1 {
		t.Errorf("stopAlls = %d, want 1", motors.stopCount())
	}

	s.Stop() // second call is a no-op
	if motors.stopCount() != 1 {
		t.Errorf("stopAlls = %d after repeat stop, want 1", motors.stopCount())
	}
}

func TestSession_AudioDeltaAfterStopDoesNotCrash(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	// Simulate Stop winning the race between the read loop pulling an
	// event and the handler touching the connection.
	s.active.Store(true)
	s.initialized.Store(true)
	s.micEnabled.Store(true)
	s.stream = stream
	s.closeStream()

	if err := s.handleAudioDelta(realtime.AudioDelta{Audio: pcm(1200)}); err != nil {
		t.Fatalf("handleAudioDelta after close: %v", err)
	}
	if _, commits, _, _ := stream.counts(); commits != 0 {
		t.Errorf("commits = %d on a closed session, want 0", commits)
	}
}

func TestSession_IdleWatchdogStops(t *testing.T) {
	stream := newFakeStream()
	s, _, motors, _ := newTestSession(t, stream)

	base := time.Now()
	var mu sync.Mutex
	current := base
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	s.poll = 500 * time.Millisecond
	s.sleep = func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}

	s.active.Store(true)
	s.stream = stream
	s.lastActivity.Store(base.UnixNano())

	s.idleWatchdog()

	if s.Active() {
		t.Error("watchdog did not stop the idle session")
	}
	if motors.stopCount() == 0 {
		t.Error("watchdog stop did not halt motors")
	}
	motors.mu.Lock()
	tails := motors.tails
	motors.mu.Unlock()
	if tails == 0 {
		t.Error("no impatient tail cue during countdown")
	}
}

func TestSession_WatchdogRespectsPlaybackActivity(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	playback := &fakePlayback{last: time.Now()}
	s.cfg.Playback = playback

	base := time.Now()
	var mu sync.Mutex
	current := base
	elapsedTotal := time.Duration(0)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	s.poll = 500 * time.Millisecond
	s.sleep = func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		elapsedTotal += d
		// Keep playback fresh for the first 3 simulated seconds.
		if elapsedTotal < 3*time.Second {
			playback.mu.Lock()
			playback.last = current
			playback.mu.Unlock()
		}
		mu.Unlock()
	}

	s.active.Store(true)
	s.stream = stream
	s.lastActivity.Store(base.Add(-time.Hour).UnixNano())

	s.idleWatchdog()

	// The session must have survived at least the playback window plus
	// offset plus timeout before stopping.
	mu.Lock()
	total := elapsedTotal
	mu.Unlock()
	if total < 3*time.Second+idleOffset+s.cfg.MicTimeout {
		t.Errorf("watchdog fired after %v, too early", total)
	}
}

func TestSession_TurnErrorEndsCycle(t *testing.T) {
	stream := newFakeStream()
	s, _, _, _ := newTestSession(t, stream)

	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.TurnDone{Err: &realtime.APIError{Code: "rate_limit_exceeded", Message: "slow down"}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Error("session still active after turn error")
	}
}

func TestSession_TextOnlySkipsAudio(t *testing.T) {
	stream := newFakeStream()
	s, q, _, _ := newTestSession(t, stream)
	s.cfg.TextOnly = true

	stream.push(realtime.SessionUpdated{})
	stream.push(realtime.AudioDelta{Audio: pcm(1200)})
	stream.push(realtime.TextDelta{Text: "Hello."})
	stream.push(realtime.TurnDone{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, commits, _, _ := stream.counts()
	if commits != 0 {
		t.Error("text-only session committed audio")
	}
	if q.Unfinished() != 0 {
		t.Error("text-only session enqueued playback")
	}
	if got := strings.TrimSpace(s.transcript.String()); got != "Hello." {
		t.Errorf("transcript = %q", got)
	}
}
