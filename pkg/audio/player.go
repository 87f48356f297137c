package audio

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audioio"
)

// Flapper drives the mouth from outgoing speech.
type Flapper interface {
	Process(samples []int16)
}

// BodyMover is the slice of the motor controller the player needs for
// song choreography and idle interludes.
type BodyMover interface {
	MoveHead(on bool)
	TailAsync(d time.Duration)
	Interlude()
}

// HeadMove is one scheduled head extension during a song.
type HeadMove struct {
	At       time.Duration
	Duration time.Duration
}

// SongParams configures body choreography for one song.
type SongParams struct {
	// BeatLength is the time between tail-flick opportunities.
	BeatLength time.Duration
	// CompensateTailBeats shifts the tail schedule forward to cover
	// the motor's mechanical lag, in beats.
	CompensateTailBeats float64
	// TailThreshold is the drum stem level that earns a flick.
	TailThreshold float64
	HeadMoves     []HeadMove
}

// Player is the playback worker. It drains the queue, writes audio to
// the sink, and keeps the mouth, head and tail in sync with what is
// heard. One Run loop per process.
type Player struct {
	queue   *Queue
	sink    audioio.Sink
	flapper Flapper
	motors  BodyMover
	chunkMS int
	gain    float64

	lastPlayed atomic.Int64 // unix nanos

	interludeCounter int
	interludeTarget  int

	mu        sync.Mutex
	song      SongParams
	songOn    bool
	songStart time.Time
	nextBeat  time.Duration
	drumsPeak float64
	headMoves []HeadMove
	headOn    bool
	headEnd   time.Time

	now func() time.Time
}

// NewPlayer wires the playback worker. gain scales output amplitude;
// 1.0 is unity.
func NewPlayer(q *Queue, sink audioio.Sink, flapper Flapper, motors BodyMover, chunkMS int, gain float64) *Player {
	if gain <= 0 {
		gain = 1.0
	}
	p := &Player{
		queue:           q,
		sink:            sink,
		flapper:         flapper,
		motors:          motors,
		chunkMS:         chunkMS,
		gain:            gain,
		interludeTarget: 150000 + rand.Intn(150001),
		now:             time.Now,
	}
	p.lastPlayed.Store(time.Now().UnixNano())
	return p
}

// Run consumes the queue until it dequeues the nil sentinel or the
// context is cancelled. Intended to run in its own goroutine.
func (p *Player) Run(ctx context.Context) {
	log.Info("playback worker started", "chunk_ms", p.chunkMS)
	for {
		item := p.queue.Get()
		now := p.now()

		p.tickHeadChoreo(now)

		if item == nil {
			p.queue.TaskDone()
			log.Info("playback worker stopping")
			return
		}
		if ctx.Err() != nil {
			p.queue.TaskDone()
			return
		}

		switch item.Kind {
		case KindSong:
			p.playSongChunk(ctx, item, now)
		default:
			p.playSpeech(ctx, item.PCM)
		}

		p.queue.TaskDone()
		p.lastPlayed.Store(p.now().UnixNano())
	}
}

// LastPlayed reports when the worker last finished a queue item.
func (p *Player) LastPlayed() time.Time {
	return time.Unix(0, p.lastPlayed.Load())
}

// Speaking reports whether playback work is queued or in flight.
func (p *Player) Speaking() bool {
	return p.queue.Unfinished() > 0
}

// BeginSong resets choreography state for a new song.
func (p *Player) BeginSong(params SongParams) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.song = params
	p.songOn = true
	p.songStart = p.now()
	p.nextBeat = 0
	p.drumsPeak = 0
	p.headMoves = append([]HeadMove(nil), params.HeadMoves...)
	p.headOn = false
	p.lastPlayed.Store(p.now().UnixNano())
}

// EndSong clears song mode.
func (p *Player) EndSong() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.songOn = false
	p.headMoves = nil
}

// playSpeech splits a response delta into playback-sized chunks, flaps
// the mouth per chunk, and writes each to the sink. Long quiet replies
// occasionally earn an interlude so the fish does not freeze.
func (p *Player) playSpeech(ctx context.Context, pcm []byte) {
	samples := audioio.BytesToSamples(pcm)
	chunkLen := 24000 * p.chunkMS / 1000

	for i := 0; i < len(samples); i += chunkLen {
		end := i + chunkLen
		if end > len(samples) {
			end = len(samples)
		}
		sub := samples[i:end]
		if len(sub) == 0 {
			continue
		}

		p.flapper.Process(sub)
		if err := p.writeOut(ctx, sub); err != nil {
			log.Warn("playback write failed", "error", err)
			return
		}

		p.interludeCounter += len(sub)
		if p.interludeCounter >= p.interludeTarget {
			p.motors.Interlude()
			p.interludeCounter = 0
			p.interludeTarget = 80000 + rand.Intn(80001)
		}
	}
}

// playSongChunk plays one pre-chunked song item: the full mix goes to
// the speaker, the vocal stem drives the mouth, and the drum stem level
// is pooled per beat to decide tail flicks.
func (p *Player) playSongChunk(ctx context.Context, item *Item, now time.Time) {
	p.flapper.Process(audioio.BytesToSamples(item.Vocals))

	p.mu.Lock()
	if p.songOn {
		if item.DrumsRMS > p.drumsPeak {
			p.drumsPeak = item.DrumsRMS
		}
		elapsed := now.Sub(p.songStart)
		adjusted := elapsed + time.Duration(p.song.CompensateTailBeats*float64(p.song.BeatLength))
		if adjusted >= p.nextBeat && p.song.BeatLength > 0 {
			if p.drumsPeak > p.song.TailThreshold && !p.headOn {
				p.motors.TailAsync(200 * time.Millisecond)
			}
			p.drumsPeak = 0
			p.nextBeat += p.song.BeatLength
		}
	}
	p.mu.Unlock()

	if err := p.writeOut(ctx, audioio.BytesToSamples(item.PCM)); err != nil {
		log.Warn("song playback write failed", "error", err)
	}
}

// tickHeadChoreo starts and ends scheduled head moves during a song.
func (p *Player) tickHeadChoreo(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.headOn && !now.Before(p.headEnd) {
		p.motors.MoveHead(false)
		p.headOn = false
	}

	if !p.songOn || p.headOn || len(p.headMoves) == 0 {
		return
	}
	next := p.headMoves[0]
	if now.Sub(p.songStart) >= next.At {
		p.headMoves = p.headMoves[1:]
		p.motors.MoveHead(true)
		p.headOn = true
		p.headEnd = now.Add(next.Duration)
	}
}

// writeOut applies gain and hands samples to the sink.
func (p *Player) writeOut(ctx context.Context, samples []int16) error {
	out := samples
	if p.gain != 1.0 {
		out = make([]int16, len(samples))
		for i, s := range samples {
			v := float64(s) * p.gain
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			out[i] = int16(v)
		}
	}
	return p.sink.Write(ctx, audioio.Chunk{Samples: out, SampleRate: 24000})
}
