// Package songs loads pre-split song recordings: a full mix for the
// speaker plus vocal and drum stems that drive the mouth and tail. Each
// song lives in its own directory with an optional metadata.txt tuning
// the choreography.
package songs

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audio"
)

// Metadata tunes playback and choreography for one song.
type Metadata struct {
	// BPM drives the tail-flick beat grid.
	BPM float64
	// HeadMoves schedules head extensions at offsets into the song.
	HeadMoves []audio.HeadMove
	// TailThreshold is the drum stem level that earns a flick.
	TailThreshold float64
	// Gain scales all three stems.
	Gain float64
	// CompensateTail shifts the tail schedule forward, in beats, to
	// cover motor lag.
	CompensateTail float64
	// HalfTempoTailFlap doubles the beat length for fast songs.
	HalfTempoTailFlap bool
}

// DefaultMetadata is used when a song ships without metadata.txt.
func DefaultMetadata() Metadata {
	return Metadata{
		BPM:           120,
		TailThreshold: 1500,
		Gain:          1.0,
	}
}

// BeatLength converts BPM to the interval between tail opportunities.
func (m Metadata) BeatLength() time.Duration {
	bpm := m.BPM
	if bpm <= 0 {
		bpm = 120
	}
	beat := time.Duration(60.0 / bpm * float64(time.Second))
	if m.HalfTempoTailFlap {
		beat *= 2
	}
	return beat
}

// Params renders the metadata as playback choreography parameters.
func (m Metadata) Params() audio.SongParams {
	return audio.SongParams{
		BeatLength:          m.BeatLength(),
		CompensateTailBeats: m.CompensateTail,
		TailThreshold:       m.TailThreshold,
		HeadMoves:           m.HeadMoves,
	}
}

// LoadMetadata reads metadata.txt at path. A missing file is not an
// error; defaults are returned.
func LoadMetadata(path string) Metadata {
	f, err := os.Open(path)
	if err != nil {
		log.Debug("no song metadata", "path", path)
		return DefaultMetadata()
	}
	defer f.Close()
	return ParseMetadata(f)
}

// ParseMetadata reads key=value lines. Unknown keys and malformed
// values are skipped so one typo does not silence a song.
func ParseMetadata(r io.Reader) Metadata {
	m := DefaultMetadata()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "bpm":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				m.BPM = v
			}
		case "tail_threshold":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				m.TailThreshold = v
			}
		case "gain":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				m.Gain = v
			}
		case "compensate_tail":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				m.CompensateTail = v
			}
		case "half_tempo_tail_flap":
			m.HalfTempoTailFlap = strings.EqualFold(value, "true")
		case "head_moves":
			m.HeadMoves = parseHeadMoves(value)
		}
	}
	return m
}

// parseHeadMoves reads "at:duration,at:duration" pairs in seconds.
func parseHeadMoves(value string) []audio.HeadMove {
	var moves []audio.HeadMove
	for _, pair := range strings.Split(value, ",") {
		at, dur, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			continue
		}
		atSec, err1 := strconv.ParseFloat(at, 64)
		durSec, err2 := strconv.ParseFloat(dur, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		moves = append(moves, audio.HeadMove{
			At:       time.Duration(atSec * float64(time.Second)),
			Duration: time.Duration(durSec * float64(time.Second)),
		})
	}
	return moves
}
