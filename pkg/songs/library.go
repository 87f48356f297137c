package songs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-audio/wav"

	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/audioio"
)

// Library is a directory of song folders, each holding full.wav,
// vocals.wav, drums.wav, and optionally metadata.txt.
type Library struct {
	dir string
}

// NewLibrary points at the songs directory, usually sounds/songs.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// List returns the names of songs that have a full mix, sorted.
func (l *Library) List() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.dir, e.Name(), "full.wav")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Song is a fully loaded, pre-chunked song ready to enqueue.
type Song struct {
	Name  string
	Meta  Metadata
	Items []*audio.Item
}

// Load reads all three stems, normalizes them to 24kHz mono with the
// song's gain applied, and slices them into playback items. The vocal
// and drum stems are aligned to the full mix; a short stem just means
// the mouth or tail goes quiet early.
func (l *Library) Load(name string, chunkMS int) (*Song, error) {
	dir := filepath.Join(l.dir, name)
	meta := LoadMetadata(filepath.Join(dir, "metadata.txt"))

	main, err := loadStem(filepath.Join(dir, "full.wav"), meta.Gain)
	if err != nil {
		return nil, fmt.Errorf("song %s: %w", name, err)
	}
	vocals, err := loadStem(filepath.Join(dir, "vocals.wav"), meta.Gain)
	if err != nil {
		return nil, fmt.Errorf("song %s: %w", name, err)
	}
	drums, err := loadStem(filepath.Join(dir, "drums.wav"), meta.Gain)
	if err != nil {
		return nil, fmt.Errorf("song %s: %w", name, err)
	}

	chunkLen := 24000 * chunkMS / 1000
	var items []*audio.Item
	for i := 0; i < len(main); i += chunkLen {
		end := i + chunkLen
		if end > len(main) {
			end = len(main)
		}
		items = append(items, &audio.Item{
			Kind:     audio.KindSong,
			PCM:      audioio.SamplesToBytes(main[i:end]),
			Vocals:   audioio.SamplesToBytes(slice(vocals, i, end)),
			DrumsRMS: audioio.RMS(slice(drums, i, end)),
		})
	}

	return &Song{Name: name, Meta: meta, Items: items}, nil
}

// slice returns s[from:to] clamped to the stem's length.
func slice(s []int16, from, to int) []int16 {
	if from >= len(s) {
		return nil
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// loadStem decodes a WAV stem to 24kHz mono int16 with gain applied.
// Stereo is downmixed and 48kHz input is resampled.
func loadStem(path string, gain float64) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stem: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode stem: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	if buf.Format.NumChannels == 2 {
		samples = audioio.StereoToMono(samples)
	}
	if buf.Format.SampleRate != 24000 {
		samples = audioio.Resample(samples, buf.Format.SampleRate, 24000)
	}

	if gain != 1.0 {
		for i, s := range samples {
			v := float64(s) * gain
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			samples[i] = int16(v)
		}
	}
	return samples, nil
}
