package audioio

import (
	"context"
	"io"
	"math"
	"sync"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or a sine wave) at the configured
// chunk cadence, dropping chunks when the consumer falls behind.
type MockSource struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Chunk
	stopCh   chan struct{}

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, opts ...MockSourceOption) *MockSource {
	m := &MockSource{
		cfg:       cfg,
		streamCh:  make(chan Chunk, 10),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Chunk, 10)

	go m.generateLoop(ctx, m.stopCh, m.streamCh)
	return nil
}

// generateLoop is the only writer to out and the only goroutine that
// closes it, so Stop never races a send against the close. The channels
// are captured per Start; a restarted source gets a fresh pair.
func (m *MockSource) generateLoop(ctx context.Context, stop <-chan struct{}, out chan<- Chunk) {
	defer close(out)

	ticker := time.NewTicker(m.cfg.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			chunk := m.generateChunk()
			select {
			case out <- chunk:
			default:
				// Consumer is behind; drop rather than block capture.
			}
		}
	}
}

func (m *MockSource) generateChunk() Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.cfg.ChunkSize()
	samples := make([]int16, n)

	if m.frequency > 0 {
		step := 2 * math.Pi * m.frequency / float64(m.cfg.SampleRate)
		for i := range samples {
			samples[i] = int16(m.amplitude * 32767 * math.Sin(m.phase))
			m.phase += step
		}
	}

	return Chunk{Samples: samples, SampleRate: m.cfg.SampleRate}
}

// Stop halts audio capture. The generator goroutine closes the stream
// channel on its way out.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	return nil
}

// Stream returns the chunk delivery channel.
func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the source configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Close stops the source permanently.
func (m *MockSource) Close() error {
	m.Stop()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// MockSink is a mock audio sink that records every chunk written to it.
// Write paces itself to real time when realtime pacing is enabled;
// otherwise it returns immediately, which keeps tests fast.
type MockSink struct {
	cfg      Config
	realtime bool

	mu      sync.Mutex
	running bool
	chunks  []Chunk
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithRealtimePacing makes Write block for each chunk's play time,
// matching the backpressure of a real output device.
func WithRealtimePacing() MockSinkOption {
	return func(m *MockSink) { m.realtime = true }
}

// NewMockSink creates a new mock sink.
func NewMockSink(cfg Config, opts ...MockSinkOption) *MockSink {
	m := &MockSink{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start marks the sink as running.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

// Stop marks the sink as stopped.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write records the chunk.
func (m *MockSink) Write(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	m.chunks = append(m.chunks, chunk)
	m.mu.Unlock()

	if m.realtime {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunk.Duration()):
		}
	}
	return nil
}

// Drain is a no-op for the mock; all writes complete synchronously.
func (m *MockSink) Drain(ctx context.Context) error { return nil }

// Config returns the sink configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Close stops the sink.
func (m *MockSink) Close() error { return m.Stop() }

// Written returns a copy of all chunks written so far.
func (m *MockSink) Written() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}
