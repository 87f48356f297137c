// Package motor drives the three DC motors of the fish: mouth, head, and
// tail. A Driver abstracts the H-bridge backend so the rest of the code
// can run without hardware attached.
package motor

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"billy-bassistant/internal/log"
)

// Channel identifies one motor output.
type Channel int

const (
	Mouth Channel = 1
	Head  Channel = 2
	Tail  Channel = 3
)

func (c Channel) String() string {
	switch c {
	case Mouth:
		return "mouth"
	case Head:
		return "head"
	case Tail:
		return "tail"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Channels lists all driven outputs.
var Channels = []Channel{Mouth, Head, Tail}

// Driver is the hardware abstraction for a motor backend.
// Throttle is in [-1, 1]; zero stops the channel.
type Driver interface {
	SetThrottle(ch Channel, throttle float64) error
	Close() error
}

// Profile describes how a fish variant is wired: which physical outputs
// the logical channels map to and which directions are inverted.
type Profile struct {
	Name string

	// Direction flips, determined by how the stock motors are soldered.
	FlipMouth bool
	FlipHead  bool
	FlipTail  bool

	// SharedBody is set when head and tail share a single body motor
	// driven in opposite directions.
	SharedBody bool
}

// ProfileFor resolves a wiring profile by name. Unknown names fall back
// to the modern profile.
func ProfileFor(name string) Profile {
	switch strings.ToLower(name) {
	case "classic":
		return Profile{Name: "classic", FlipMouth: true, FlipTail: true}
	case "legacy":
		return Profile{Name: "legacy", FlipMouth: true, FlipTail: true, SharedBody: true}
	default:
		return Profile{Name: "modern", FlipMouth: true, FlipTail: true}
	}
}

// NullDriver discards every command. Used in text-only mode.
type NullDriver struct{}

func (NullDriver) SetThrottle(Channel, float64) error { return nil }
func (NullDriver) Close() error                       { return nil }

// LogDriver logs every throttle change at debug level. Useful on dev
// machines where no motor HAT is present.
type LogDriver struct{}

func (LogDriver) SetThrottle(ch Channel, throttle float64) error {
	log.Debug("motor throttle", "channel", ch.String(), "throttle", throttle)
	return nil
}

func (LogDriver) Close() error { return nil }

// NewDriver selects a backend by name.
func NewDriver(backend string) Driver {
	switch strings.ToLower(backend) {
	case "null", "none":
		return NullDriver{}
	default:
		return LogDriver{}
	}
}

// Controller issues timed moves on top of a Driver and tracks which
// channels are active so the watchdog can brake runaways.
type Controller struct {
	driver  Driver
	profile Profile

	mu      sync.Mutex
	since   map[Channel]time.Time
	headOut bool

	interluding atomic.Bool

	now func() time.Time
}

// NewController wires a driver with a wiring profile.
func NewController(d Driver, p Profile) *Controller {
	return &Controller{
		driver:  d,
		profile: p,
		since:   make(map[Channel]time.Time),
		now:     time.Now,
	}
}

// setThrottle converts a speed percentage to a driver throttle, applying
// the profile's direction flip, and records activity for the watchdog.
func (c *Controller) setThrottle(ch Channel, speedPercent float64) {
	throttle := speedPercent / 100.0
	if throttle > 1 {
		throttle = 1
	} else if throttle < -1 {
		throttle = -1
	}

	switch {
	case ch == Mouth && c.profile.FlipMouth:
		throttle = -throttle
	case ch == Head && c.profile.FlipHead:
		throttle = -throttle
	case ch == Tail && c.profile.FlipTail:
		throttle = -throttle
	}

	if err := c.driver.SetThrottle(ch, throttle); err != nil {
		log.Warn("motor command failed", "channel", ch.String(), "error", err)
		return
	}

	c.mu.Lock()
	if throttle != 0 {
		if _, ok := c.since[ch]; !ok {
			c.since[ch] = c.now()
		}
	} else {
		delete(c.since, ch)
	}
	c.mu.Unlock()
}

// stopChannel zeroes one channel and clears its activity record.
func (c *Controller) stopChannel(ch Channel) {
	if err := c.driver.SetThrottle(ch, 0); err != nil {
		log.Warn("motor stop failed", "channel", ch.String(), "error", err)
	}
	c.mu.Lock()
	delete(c.since, ch)
	c.mu.Unlock()
}

// runTimed drives a channel for a fixed duration and then releases it.
// Overlapping calls on the same channel each arm their own stop timer;
// the earliest timer wins, mirroring how short mouth flaps behave.
func (c *Controller) runTimed(ch Channel, speedPercent float64, d time.Duration) {
	c.setThrottle(ch, speedPercent)
	time.AfterFunc(d, func() { c.stopChannel(ch) })
}

// MoveMouth opens the mouth at the given speed for the given duration.
// The brake flag requests an active stop at the end of the move; both
// paths zero the throttle on the backends we support.
func (c *Controller) MoveMouth(speedPercent float64, d time.Duration, brake bool) {
	_ = brake
	c.runTimed(Mouth, speedPercent, d)
}

// StopMouth brakes the mouth immediately.
func (c *Controller) StopMouth() {
	c.stopChannel(Mouth)
}

// MoveHead extends the head out (on) or releases it (off). Extending
// ramps briefly before holding, which keeps the gearbox from slamming.
func (c *Controller) MoveHead(on bool) {
	c.mu.Lock()
	wasOut := c.headOut
	c.headOut = on
	c.mu.Unlock()

	if on {
		if wasOut {
			return
		}
		go func() {
			c.setThrottle(Head, 80)
			time.Sleep(500 * time.Millisecond)
			c.setThrottle(Head, 100)
		}()
		return
	}
	c.stopChannel(Head)
}

// HeadOut reports whether the head is currently extended.
func (c *Controller) HeadOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headOut
}

// MoveTail flicks the tail for the given duration.
func (c *Controller) MoveTail(d time.Duration) {
	c.runTimed(Tail, 80, d)
}

// TailAsync flicks the tail without waiting for the timer setup.
func (c *Controller) TailAsync(d time.Duration) {
	go c.MoveTail(d)
}

// StopAll brakes every channel. Safe to call repeatedly.
func (c *Controller) StopAll() {
	log.Info("stopping all motors")
	for _, ch := range Channels {
		c.stopChannel(ch)
	}
	c.mu.Lock()
	c.headOut = false
	c.mu.Unlock()
}

// Active reports whether any channel is currently driven.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.since) > 0
}

// activeSince returns when a channel went continuously active, or the
// zero time if it is idle.
func (c *Controller) activeSince(ch Channel) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.since[ch]
}
