// Package session runs live voice conversations: it owns the duplex
// stream to the speech service, gates the microphone, feeds the
// playback pipeline, and enforces the lifecycle rules around commits,
// idle timeout, barge-in, and follow-up continuation.
package session

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/audioio"
	"billy-bassistant/pkg/bus"
	"billy-bassistant/pkg/metrics"
	"billy-bassistant/pkg/personality"
	"billy-bassistant/pkg/realtime"
)

const (
	watchdogPoll = 500 * time.Millisecond
	// idleOffset gives the user a grace window before the timeout
	// countdown (and the impatient tail) begins.
	idleOffset = 2 * time.Second
	// settleDelay lets motors and the speaker wind down after a stop.
	settleDelay = 200 * time.Millisecond
	// tailCueInterval paces the impatient tail flicks while waiting.
	tailCueInterval = time.Second
)

// followUpRE matches a response that ends on a question to the user.
var followUpRE = regexp.MustCompile(`[a-zA-Z]\?\s*$`)

// Playback is the slice of the playback worker the session reads.
type Playback interface {
	LastPlayed() time.Time
	Speaking() bool
}

// Motors is the actuator surface the session touches directly.
type Motors interface {
	MoveHead(on bool)
	TailAsync(d time.Duration)
	StopAll()
}

// Recorder persists the finished response audio.
type Recorder interface {
	Save(pcm []byte) error
}

// SmartHome forwards natural-language commands to the home automation
// bridge.
type SmartHome interface {
	Configured() bool
	Send(ctx context.Context, prompt string) (string, error)
}

// SongPlayer plays a named song end to end. Invoked after the session
// has shut down, so it owns the playback pipeline for its duration.
type SongPlayer func(ctx context.Context, name string) error

// Config carries everything a session needs. The zero value is not
// usable; the controller fills it from application config.
type Config struct {
	APIKey string
	Model  string
	Voice  string

	TextOnly         bool
	ChunkMS          int
	SilenceThreshold float64
	MicTimeout       time.Duration
	SoundsDir        string

	// Instructions builds the system prompt; called when the session
	// (re)configures so personality edits take effect on reconnect.
	Instructions func() string

	// AllowPersonaPersist gates writing trait updates back to disk.
	AllowPersonaPersist bool

	Dialer    realtime.Dialer
	Mic       audioio.Source
	Queue     *audio.Queue
	Playback  Playback
	History   Recorder
	Motors    Motors
	Publish   bus.Publisher
	Profile   *personality.Profile
	SaveTrait func(trait string, value int) error
	SmartHome SmartHome
	PlaySong  SongPlayer
}

// Session is one conversation. Create with NewSession; a Session is
// never reused after Start returns (follow-up turns re-enter the same
// instance internally).
type Session struct {
	cfg Config
	id  string

	streamMu sync.Mutex
	stream   realtime.Stream

	active      atomic.Bool
	initialized atomic.Bool
	micEnabled  atomic.Bool
	userSpoke   atomic.Bool
	interrupted atomic.Bool

	lastActivity atomic.Int64 // unix nanos

	// Turn-local state, touched only by the read loop.
	committed    bool
	firstText    bool
	skipTurnEval bool
	transcript   strings.Builder
	audioBuf     []byte
	firstDelta   time.Time

	pumpCancel context.CancelFunc
	pumpOnce   sync.Once

	// Test seams.
	now    func() time.Time
	poll   time.Duration
	settle time.Duration
	sleep  func(d time.Duration)
}

// NewSession builds a session with a fresh interrupt flag. The id
// correlates log lines across one conversation.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:    cfg,
		id:     uuid.NewString()[:8],
		now:    time.Now,
		poll:   watchdogPoll,
		settle: settleDelay,
		sleep:  time.Sleep,
	}
}

// Interrupt flags the in-flight response for abort. The read loop
// flushes playback and deactivates the session on the next audio chunk.
func (s *Session) Interrupt() {
	s.interrupted.Store(true)
}

// Active reports whether the session is running.
func (s *Session) Active() bool {
	return s.active.Load()
}

// touch refreshes the last-activity timestamp.
func (s *Session) touch() {
	s.lastActivity.Store(s.now().UnixNano())
}

// Start runs the conversation until it ends: by idle timeout, barge-in,
// transport failure, or a completed turn with no follow-up. Follow-up
// turns (assistant asked a question and the user already spoke) restart
// internally without reconnecting.
func (s *Session) Start(ctx context.Context) error {
	for {
		followUp, err := s.runTurnCycle(ctx)
		if err != nil {
			s.endSession()
			return err
		}
		if !followUp {
			return nil
		}
		log.Info("follow-up detected, continuing session")
	}
}

// runTurnCycle resets per-turn state, connects if needed, and drives
// the read loop until the turn completes or the session goes inactive.
// Returns whether a follow-up turn should run.
func (s *Session) runTurnCycle(ctx context.Context) (bool, error) {
	s.committed = false
	s.firstText = true
	s.skipTurnEval = false
	s.transcript.Reset()
	s.audioBuf = nil
	s.userSpoke.Store(false)
	s.micEnabled.Store(true)
	s.touch()
	s.active.Store(true)

	if err := s.ensureStream(ctx); err != nil {
		return false, err
	}

	log.Info("session listening", "session", s.id)
	s.cfg.Publish.PublishState("listening")

	s.startMicPump(ctx)
	go s.idleWatchdog()

	turnComplete := false
	for s.active.Load() {
		stream := s.currentStream()
		if stream == nil {
			break
		}
		ev, err := stream.ReadEvent(ctx)
		if err != nil {
			if !s.active.Load() || errors.Is(err, realtime.ErrClosed) {
				break
			}
			log.Error("stream read failed", "error", err)
			s.active.Store(false)
			break
		}
		done, err := s.handleEvent(ctx, ev)
		if err != nil {
			log.Error("event handling failed", "error", err)
		}
		if done {
			turnComplete = true
			break
		}
	}

	if !s.active.Load() {
		s.endSession()
		return false, nil
	}

	if turnComplete && s.shouldContinue() {
		return true, nil
	}

	log.Info("no follow-up, ending session")
	s.endSession()
	return false, nil
}

// shouldContinue applies the follow-up rule: the assistant ended on a
// question and the user actually said something this session.
func (s *Session) shouldContinue() bool {
	text := strings.TrimSpace(s.transcript.String())
	return followUpRE.MatchString(text) && s.userSpoke.Load()
}

// ensureStream dials and configures the connection if none is open.
// Configuration is sent once per connection.
func (s *Session) ensureStream(ctx context.Context) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream != nil {
		return nil
	}

	stream, err := s.cfg.Dialer(ctx, s.cfg.APIKey, s.cfg.Model)
	if err != nil {
		return err
	}

	s.initialized.Store(false)
	cfg := realtime.SessionConfig{
		Instructions:  s.cfg.Instructions(),
		Voice:         s.cfg.Voice,
		TurnDetection: realtime.ServerVAD,
		Tools:         toolSchema(s.cfg.Profile),
		TextOnly:      s.cfg.TextOnly,
	}
	if err := stream.Configure(cfg); err != nil {
		stream.Close()
		return err
	}
	s.stream = stream
	return nil
}

func (s *Session) currentStream() realtime.Stream {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream
}

// closeStream tears down the connection, swallowing close errors.
func (s *Session) closeStream() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream != nil {
		if err := s.stream.Close(); err != nil && !errors.Is(err, realtime.ErrClosed) {
			log.Debug("stream close", "error", err)
		}
		s.stream = nil
	}
}

// startMicPump forwards mic chunks to the stream. Runs once per
// session; the pump gates every chunk on the current session state so
// it never blocks the capture path.
func (s *Session) startMicPump(ctx context.Context) {
	s.pumpOnce.Do(func() {
		pumpCtx, cancel := context.WithCancel(ctx)
		s.pumpCancel = cancel

		if err := s.cfg.Mic.Start(pumpCtx); err != nil {
			log.Error("mic start failed", "error", err)
			return
		}

		go func() {
			for {
				select {
				case <-pumpCtx.Done():
					return
				case chunk, ok := <-s.cfg.Mic.Stream():
					if !ok {
						return
					}
					s.forwardMicChunk(chunk)
				}
			}
		}()
	})
}

// forwardMicChunk applies the mic-gating policy to one capture frame.
// Frames that arrive before the session is initialized are dropped,
// not queued; the server VAD recovers.
func (s *Session) forwardMicChunk(chunk audioio.Chunk) {
	if !s.active.Load() || !s.micEnabled.Load() || !s.initialized.Load() || s.interrupted.Load() {
		return
	}

	rms := audioio.RMS(chunk.Samples)
	if rms > s.cfg.SilenceThreshold {
		s.touch()
		s.userSpoke.Store(true)
	}

	stream := s.currentStream()
	if stream == nil {
		return
	}
	if err := stream.AppendAudio(chunk.Bytes()); err != nil {
		log.Warn("mic forward failed", "error", err)
		return
	}
	metrics.AudioChunksIn.Inc()
}

// handleEvent is the per-event state machine. The bool result marks a
// completed turn, breaking the read loop for continuation evaluation.
func (s *Session) handleEvent(ctx context.Context, ev realtime.Event) (bool, error) {
	switch ev := ev.(type) {
	case realtime.SessionCreated:
		log.Debug("session created", "id", ev.SessionID)

	case realtime.SessionUpdated:
		s.initialized.Store(true)

	case realtime.AudioDelta:
		return false, s.handleAudioDelta(ev)

	case realtime.TranscriptDelta:
		s.handleTextDelta(ev.Text)

	case realtime.TextDelta:
		s.handleTextDelta(ev.Text)

	case realtime.InputTranscription:
		log.Info("user said", "text", ev.Text)

	case realtime.FunctionCallDone:
		s.dispatchTool(ctx, ev)

	case realtime.TurnDone:
		return s.handleTurnDone(ev)

	case realtime.ErrorEvent:
		log.Error("server error", "code", ev.Err.Code, "message", ev.Err.Message)

	case realtime.SpeechStarted, realtime.SpeechStopped, realtime.AudioDone:
		// VAD markers and audio-done need no local action.

	case realtime.Unknown:
		log.Debug("ignoring event", "type", ev.Type)
	}
	return false, nil
}

// handleAudioDelta implements the audio-chunk arm: commit once per turn
// after initialization, enqueue in arrival order, and honor a pending
// interrupt by flushing everything and deactivating.
func (s *Session) handleAudioDelta(ev realtime.AudioDelta) error {
	if s.cfg.TextOnly {
		return nil
	}

	// A concurrent Stop may have torn the connection down between the
	// read and this handler.
	stream := s.currentStream()
	if stream == nil {
		return nil
	}

	if !s.committed && s.initialized.Load() {
		if err := stream.CommitAudio(); err != nil {
			return err
		}
		s.committed = true
		s.firstDelta = s.now()
		metrics.Commits.Inc()
	}

	s.audioBuf = append(s.audioBuf, ev.Audio...)
	s.touch()
	s.cfg.Queue.Put(&audio.Item{Kind: audio.KindSpeech, PCM: ev.Audio})
	metrics.AudioChunksOut.Inc()

	if s.interrupted.Load() {
		log.Info("assistant turn interrupted, flushing playback")
		s.cfg.Queue.Flush()
		s.active.Store(false)
		s.interrupted.Store(false)
		metrics.Interrupts.Inc()
	}
	return nil
}

// handleTextDelta implements the text-delta arm: the first delta of a
// turn mutes the mic so the fish does not hear itself.
func (s *Session) handleTextDelta(delta string) {
	s.micEnabled.Store(false)
	if s.firstText {
		s.cfg.Publish.PublishState("speaking")
		s.firstText = false
		if !s.firstDelta.IsZero() {
			metrics.TurnLatency.Observe(float64(s.now().Sub(s.firstDelta).Milliseconds()))
			s.firstDelta = time.Time{}
		}
	}
	s.transcript.WriteString(delta)
}

// handleTurnDone implements the turn-complete arm: drain playback, save
// the response clip, and re-open the mic. Turns belonging to a tool
// call do not end the cycle; the injected follow-up response does.
func (s *Session) handleTurnDone(ev realtime.TurnDone) (bool, error) {
	if ev.Err != nil {
		log.Error("turn failed", "code", ev.Err.Code, "message", ev.Err.Message)
		s.queueErrorSound(ev.Err)
		return true, nil
	}

	if !s.cfg.TextOnly {
		s.cfg.Queue.Join()
		if len(s.audioBuf) > 0 && s.cfg.History != nil {
			if err := s.cfg.History.Save(s.audioBuf); err != nil {
				log.Warn("response save failed", "error", err)
			}
		}
	}
	s.micEnabled.Store(true)
	s.audioBuf = nil
	s.touch()
	metrics.Turns.Inc()

	if s.skipTurnEval {
		s.skipTurnEval = false
		return false, nil
	}
	return true, nil
}

// queueErrorSound makes failure audible: a dedicated clip for bad
// credentials, a generic one otherwise. Missing clips degrade to
// silence.
func (s *Session) queueErrorSound(apiErr *realtime.APIError) {
	if s.cfg.TextOnly {
		return
	}
	name := "error.wav"
	if strings.Contains(apiErr.Code, "invalid_api_key") || strings.Contains(apiErr.Message, "API key") {
		name = "noapikey.wav"
	}
	path := filepath.Join(s.cfg.SoundsDir, name)
	if err := audio.EnqueueWAV(path, s.cfg.Queue, s.cfg.ChunkMS); err != nil {
		log.Warn("error sound unavailable", "path", path, "error", err)
	}
}

// idleWatchdog ends the session when nobody has said or played
// anything for the configured timeout. It is the sole timeout
// authority; barge-in is the sole abrupt-cancel authority. Both funnel
// into Stop.
func (s *Session) idleWatchdog() {
	var lastTail time.Time
	for s.active.Load() {
		s.sleep(s.poll)

		now := s.now()
		last := time.Unix(0, s.lastActivity.Load())
		if played := s.cfg.Playback.LastPlayed(); played.After(last) {
			last = played
		}
		idle := now.Sub(last)
		elapsed := idle - idleOffset
		if elapsed <= watchdogPoll {
			continue
		}

		log.Debug("idle countdown", "elapsed", elapsed.Round(100*time.Millisecond).String(),
			"timeout", s.cfg.MicTimeout.String())

		if now.Sub(lastTail) > tailCueInterval {
			s.cfg.Motors.TailAsync(200 * time.Millisecond)
			lastTail = now
		}

		if elapsed > s.cfg.MicTimeout {
			log.Info("mic idle timeout, ending session", "timeout", s.cfg.MicTimeout.String())
			metrics.TimeoutStops.Inc()
			s.Stop()
			return
		}
	}
}

// Stop shuts the session down: mic off, connection closed, motors
// stopped, short settle. Idempotent; a second concurrent caller
// observes a no-op.
func (s *Session) Stop() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	log.Info("stopping session", "session", s.id)

	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	s.cfg.Mic.Stop()
	s.closeStream()
	s.cfg.Motors.StopAll()
	s.sleep(s.settle)
}

// endSession is the common exit path: publish idle, stop hardware,
// close the connection. Reached from timeout, interrupt, error, and
// the no-follow-up case alike.
func (s *Session) endSession() {
	s.active.Store(false)
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	s.cfg.Mic.Stop()
	s.cfg.Publish.PublishState("idle")
	s.cfg.Motors.StopAll()
	s.closeStream()
}
