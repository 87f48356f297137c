// Package personality models the assistant's adjustable character.
//
// Each trait is an integer percentage. The percentage never reaches the
// prompt directly: it is bucketed into one of five levels, and each level
// maps to a hard behavior rule. The system prompt is regenerated from those
// rules whenever a trait changes.
package personality

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Trait names, in prompt order.
var TraitOrder = []string{
	"honesty",
	"humor",
	"sarcasm",
	"respectfulness",
	"optimism",
	"confidence",
	"warmth",
	"curiosity",
	"verbosity",
	"formality",
}

// Bucket is a discrete behavior level derived from a trait percentage.
type Bucket string

const (
	BucketMin  Bucket = "min"
	BucketLow  Bucket = "low"
	BucketMed  Bucket = "med"
	BucketHigh Bucket = "high"
	BucketMax  Bucket = "max"
)

// BucketFor maps a percentage to its behavior bucket.
// Boundaries are exclusive on the upper bound:
// 0-9 min, 10-29 low, 30-69 med, 70-89 high, 90-100 max.
func BucketFor(v int) Bucket {
	switch {
	case v < 10:
		return BucketMin
	case v < 30:
		return BucketLow
	case v < 70:
		return BucketMed
	case v < 90:
		return BucketHigh
	default:
		return BucketMax
	}
}

// Profile holds the current trait percentages.
// Safe for concurrent use: tool calls mutate it while the web UI reads it.
type Profile struct {
	mu     sync.RWMutex
	traits map[string]int
}

// Default trait values for a factory-fresh fish.
func defaultTraits() map[string]int {
	return map[string]int{
		"humor":          70,
		"sarcasm":        60,
		"honesty":        100,
		"respectfulness": 80,
		"optimism":       50,
		"confidence":     40,
		"warmth":         60,
		"curiosity":      50,
		"verbosity":      20,
		"formality":      50,
	}
}

// NewProfile returns a profile with default trait values.
func NewProfile() *Profile {
	return &Profile{traits: defaultTraits()}
}

// NewProfileWith returns a profile seeded from the given values.
// Unknown trait names are ignored; missing traits keep their defaults.
func NewProfileWith(values map[string]int) *Profile {
	p := NewProfile()
	for name, v := range values {
		p.Set(name, v)
	}
	return p
}

// Get returns the value of a trait. The second return is false for
// unknown trait names.
func (p *Profile) Get(name string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.traits[strings.ToLower(name)]
	return v, ok
}

// Set updates a trait, clamping to [0, 100].
// Returns false if the trait name is unknown.
func (p *Profile) Set(name string, value int) bool {
	name = strings.ToLower(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.traits[name]; !ok {
		return false
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	p.traits[name] = value
	return true
}

// Snapshot returns a copy of all trait values.
func (p *Profile) Snapshot() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(p.traits))
	for k, v := range p.traits {
		out[k] = v
	}
	return out
}

// Names returns the known trait names, sorted.
func (p *Profile) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.traits))
	for k := range p.traits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GeneratePrompt emits the personality section of the system prompt:
// one hard behavior rule per trait, derived from the current bucket.
func (p *Profile) GeneratePrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lines := []string{
		"Your behavior is governed by personality traits, each set between 0% and 100%.",
		"The lower the percentage, the more subdued or absent that trait is.",
		"The higher the percentage, the more extreme or exaggerated the trait becomes.",
		"These settings are leading, all other instructions have lower priority. Speak with the following personality traits:",
	}
	for _, trait := range TraitOrder {
		val := p.traits[trait]
		bucket := BucketFor(val)
		rule := traitRules[trait][bucket]
		lines = append(lines, fmt.Sprintf("- %s (%d%% → %s): %s",
			capitalize(trait), val, strings.ToUpper(string(bucket)), rule))
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
