// Package metrics holds the Prometheus instruments for the assistant.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billy-bassistant/internal/log"
)

var (
	Sessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_sessions_total",
		Help: "Voice sessions started",
	})

	Turns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_turns_total",
		Help: "Completed conversation turns",
	})

	Commits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_audio_commits_total",
		Help: "Input audio buffer commits",
	})

	AudioChunksIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_audio_chunks_in_total",
		Help: "Microphone chunks sent upstream",
	})

	AudioChunksOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_audio_chunks_out_total",
		Help: "Assistant audio deltas received",
	})

	Interrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_interrupts_total",
		Help: "Barge-in interruptions",
	})

	TimeoutStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_timeout_stops_total",
		Help: "Sessions ended by the idle watchdog",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billy_tool_calls_total",
		Help: "Function calls dispatched, by tool name",
	}, []string{"tool"})

	SongsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_songs_played_total",
		Help: "Songs played end to end",
	})

	Flaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billy_mouth_flaps_total",
		Help: "Mouth flaps triggered by playback energy",
	})

	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billy_turn_first_audio_ms",
		Help:    "Latency from commit to first audio delta",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)

// Serve exposes /metrics on the given port. Blocks; run in a goroutine.
func Serve(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}
