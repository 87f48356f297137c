// Package bus publishes the fish's state over MQTT and accepts remote
// commands. It also announces itself to Home Assistant via MQTT
// discovery so the fish shows up as a device without manual setup.
package bus

import "sync"

// Publisher is the state-reporting surface used by the session layer.
type Publisher interface {
	// PublishState reports the current activity ("idle", "listening",
	// "speaking", "playing_song"). Retained so late subscribers see
	// the latest state.
	PublishState(state string)
}

// Nop is the publisher used when MQTT is not configured.
type Nop struct{}

func (Nop) PublishState(string) {}

// Fanout replicates state updates to several publishers, typically the
// MQTT bus and the web UI stream. Targets may be added after wiring,
// which breaks the construction cycle between the session config and
// the consumers of its state.
type Fanout struct {
	mu      sync.RWMutex
	targets []Publisher
}

// NewFanout returns an empty fan-out.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add attaches another target.
func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, p)
}

// PublishState forwards the state to every target.
func (f *Fanout) PublishState(state string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.targets {
		p.PublishState(state)
	}
}
