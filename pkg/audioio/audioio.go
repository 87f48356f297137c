// Package audioio defines the audio capture and playback surface for the
// assistant. Real hardware backends (ALSA on the fish's Pi, CoreAudio during
// development) live behind the Source and Sink interfaces; this package ships
// the interfaces, PCM helpers, and mock backends for tests and CI.
package audioio

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Config holds audio stream configuration.
type Config struct {
	// SampleRate is the audio sample rate in Hz.
	// Default: 24000 (required by the realtime speech service).
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels. Default: 1 (mono).
	Channels int `json:"channels"`

	// ChunkDuration is the size of capture/playback buffers.
	// Default: 50ms (1200 samples at 24kHz).
	ChunkDuration time.Duration `json:"chunk_duration"`

	// Device is the platform-specific device identifier,
	// e.g. "hw:0,0" for ALSA. Empty selects the system default.
	Device string `json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		ChunkDuration: 50 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %v", c.ChunkDuration)
	}
	return nil
}

// ChunkSize returns the number of samples per chunk.
func (c *Config) ChunkSize() int {
	return int(float64(c.SampleRate) * c.ChunkDuration.Seconds())
}

// Chunk represents one buffer of PCM16 audio.
type Chunk struct {
	// Samples contains PCM16 audio samples (little-endian on the wire).
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the play time of this chunk.
func (c *Chunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Source captures audio from a microphone.
//
// The capture thread must never be blocked by consumers: implementations
// deliver chunks on a bounded channel and drop the oldest data on overrun.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture. Safe to call multiple times.
	Stop() error

	// Stream returns the channel chunks are delivered on.
	// The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g. "alsa", "mock").
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

// Sink plays audio to a speaker.
type Sink interface {
	// Start begins audio playback.
	Start(ctx context.Context) error

	// Stop halts audio playback. Safe to call multiple times.
	Stop() error

	// Write sends one chunk to the output device. Write blocks while the
	// device buffer is full; this is the pacing mechanism that keeps the
	// playback worker in lockstep with what the user hears.
	Write(ctx context.Context, chunk Chunk) error

	// Drain waits for all buffered audio to be played.
	Drain(ctx context.Context) error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources. The sink cannot be restarted.
	io.Closer
}
