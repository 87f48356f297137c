package motor

import (
	"context"
	"time"

	"billy-bassistant/internal/log"
)

const (
	// watchdogTimeout is the longest any single channel may stay
	// continuously driven before it is braked. A stuck mouth motor
	// burns out the gearbox well under a minute.
	watchdogTimeout = 30 * time.Second
	watchdogPoll    = 1 * time.Second
)

// Watchdog brakes any channel that stays continuously active for longer
// than the timeout. It covers bugs in the flap scheduling as well as a
// missed stop after a crashed session.
type Watchdog struct {
	ctrl    *Controller
	timeout time.Duration
	poll    time.Duration
}

// NewWatchdog creates a watchdog with production timings.
func NewWatchdog(ctrl *Controller) *Watchdog {
	return &Watchdog{ctrl: ctrl, timeout: watchdogTimeout, poll: watchdogPoll}
}

// Run polls channel activity until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	now := w.ctrl.now()
	for _, ch := range Channels {
		since := w.ctrl.activeSince(ch)
		if since.IsZero() {
			continue
		}
		if now.Sub(since) >= w.timeout {
			log.Warn("watchdog braking runaway motor",
				"channel", ch.String(), "active", now.Sub(since).String())
			w.ctrl.stopChannel(ch)
		}
	}
}
