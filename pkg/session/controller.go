package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/metrics"
)

// ErrBusy is returned when a say request arrives while a conversation
// is running. Interrupting a session mid-turn for an announcement has
// no sensible semantics, so concurrent requests are rejected outright.
var ErrBusy = errors.New("session: a conversation is already active")

const triggerDebounce = 500 * time.Millisecond

// Controller owns session lifecycle around the physical trigger: a
// press starts a conversation, a press during one is a barge-in. It
// also serializes programmatic say requests against conversations.
type Controller struct {
	cfg Config

	mu          sync.Mutex
	session     *Session
	busy        bool
	lastTrigger time.Time

	debounce time.Duration
	now      func() time.Time

	// WakeClip, when set, plays before the first turn of a session.
	WakeClip func() error
}

// NewController wires a controller over the shared session config.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		debounce: triggerDebounce,
		now:      time.Now,
	}
}

// Busy reports whether a conversation or announcement is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Trigger handles one physical press. Rapid repeats inside the
// debounce window collapse into one action.
func (c *Controller) Trigger(ctx context.Context) {
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastTrigger) < c.debounce {
		c.mu.Unlock()
		return
	}
	c.lastTrigger = now

	if c.busy {
		sess := c.session
		c.mu.Unlock()
		c.bargeIn(sess)
		return
	}

	c.busy = true
	c.mu.Unlock()

	go c.runConversation(ctx)
}

// bargeIn aborts the running session: set the interrupt flag, dump
// queued playback, then stop and wait for the session to settle. The
// busy flag always clears, whatever the stop path did.
func (c *Controller) bargeIn(sess *Session) {
	log.Info("barge-in requested")
	if sess != nil {
		sess.Interrupt()
	}
	c.cfg.Queue.Flush()
	if sess != nil {
		sess.Stop()
	}

	c.mu.Lock()
	c.busy = false
	c.session = nil
	c.mu.Unlock()
}

// runConversation plays the wake-up clip and runs a full session. Each
// conversation gets a fresh Session so no interrupt or state leaks
// across.
func (c *Controller) runConversation(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.session = nil
		c.mu.Unlock()
		log.Info("waiting for next trigger")
	}()

	c.cfg.Motors.MoveHead(true)
	defer c.cfg.Motors.MoveHead(false)

	if c.WakeClip != nil {
		if err := c.WakeClip(); err != nil && !errors.Is(err, audio.ErrNoClips) {
			log.Warn("wake-up clip failed", "error", err)
		}
	}

	sess := NewSession(c.cfg)
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	metrics.Sessions.Inc()
	if err := sess.Start(ctx); err != nil {
		log.Error("session failed", "error", err)
	}
}

// Say speaks a one-shot announcement, rejecting the request if a
// conversation is active.
func (c *Controller) Say(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	return Say(ctx, c.cfg, text)
}
