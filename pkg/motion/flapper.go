// Package motion maps assistant speech onto fish body movement. The
// flapper listens to the outgoing PCM stream and schedules mouth flaps
// that track the loudness envelope.
package motion

import (
	"sync"
	"time"

	"billy-bassistant/pkg/audioio"
	"billy-bassistant/pkg/metrics"
)

const (
	// flapThreshold is the RMS level (raw PCM16 units) above which a
	// chunk counts as voiced. Below half of it the mouth is forced shut.
	flapThreshold = 1500

	// minFlapGap keeps flaps at least this far apart so the motor has
	// time to return before the next stroke.
	minFlapGap = 150 * time.Millisecond
)

// MouthMover is the slice of the motor controller the flapper needs.
type MouthMover interface {
	MoveMouth(speedPercent float64, d time.Duration, brake bool)
	StopMouth()
}

// Flapper converts PCM chunks into mouth moves. One instance per fish;
// safe for use from the single playback goroutine plus test callers.
type Flapper struct {
	motors       MouthMover
	chunkMS      int
	articulation float64
	smoothing    float64

	mu        sync.Mutex
	lastFlap  time.Time
	openUntil time.Time
	lastRMS   float64

	now func() time.Time
}

// FlapperOption configures a Flapper.
type FlapperOption func(*Flapper)

// WithSmoothing sets the RMS smoothing factor, clamped to [0, 1].
// Each chunk's level becomes alpha*current + (1-alpha)*previous, so
// values below 1 damp transients before they reach the mouth. 1 means
// no smoothing.
func WithSmoothing(alpha float64) FlapperOption {
	return func(f *Flapper) {
		if alpha < 0 {
			alpha = 0
		} else if alpha > 1 {
			alpha = 1
		}
		f.smoothing = alpha
	}
}

// NewFlapper builds a flapper for the given chunk size. The articulation
// multiplier stretches flap durations; it is clamped to [0, 10] so a
// typo in the environment cannot pin the mouth open.
func NewFlapper(motors MouthMover, chunkMS int, articulation float64, opts ...FlapperOption) *Flapper {
	if articulation < 0 {
		articulation = 0
	} else if articulation > 10 {
		articulation = 10
	}
	f := &Flapper{
		motors:       motors,
		chunkMS:      chunkMS,
		articulation: articulation,
		smoothing:    1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Process inspects one chunk of outgoing speech and moves the mouth.
// Quiet chunks close the mouth once any scheduled flap has elapsed;
// loud chunks trigger a flap whose speed and length scale with volume.
func (f *Flapper) Process(samples []int16) {
	if len(samples) == 0 {
		return
	}
	raw := audioio.RMS(samples)
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	rms := f.smoothing*raw + (1-f.smoothing)*f.lastRMS
	f.lastRMS = rms

	if rms < flapThreshold/2 && !now.Before(f.openUntil) {
		f.motors.StopMouth()
		return
	}
	if rms <= flapThreshold || now.Sub(f.lastFlap) < minFlapGap {
		return
	}

	normalized := rms / 32768.0
	if normalized > 1 {
		normalized = 1
	}

	speed := interp(normalized, 0.005, 0.15, 25, 100)
	durationMS := interp(normalized, 0.005, 0.15, 15, 70)
	if durationMS < 15 {
		durationMS = 15
	} else if durationMS > float64(f.chunkMS) {
		durationMS = float64(f.chunkMS)
	}

	duration := time.Duration(durationMS * f.articulation * float64(time.Millisecond))

	f.lastFlap = now
	f.openUntil = now.Add(duration)
	f.motors.MoveMouth(speed, duration, false)
	metrics.Flaps.Inc()
}

// interp linearly maps x from [x0, x1] onto [y0, y1], clamping at the
// ends like numpy's interp.
func interp(x, x0, x1, y0, y1 float64) float64 {
	if x <= x0 {
		return y0
	}
	if x >= x1 {
		return y1
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}
