package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audioio"
)

const historyDepth = 3

// History keeps the last few assistant responses on disk as WAV files,
// response-1.wav being the newest. Handy for the web UI and for
// debugging what the fish actually said.
type History struct {
	dir string
}

// NewHistory ensures the history directory exists.
func NewHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &History{dir: dir}, nil
}

// Save rotates the existing files and writes pcm as response-1.wav.
// Empty responses are skipped.
func (h *History) Save(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	for i := historyDepth - 1; i >= 1; i-- {
		src := h.path(i)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, h.path(i+1)); err != nil {
				return fmt.Errorf("rotate %s: %w", src, err)
			}
		}
	}

	if err := writeWAV(h.path(1), pcm); err != nil {
		return err
	}
	log.Debug("saved response audio", "path", h.path(1), "bytes", len(pcm))
	return nil
}

// Path returns the file for the n-th most recent response (1-based).
func (h *History) Path(n int) string { return h.path(n) }

func (h *History) path(n int) string {
	return filepath.Join(h.dir, fmt.Sprintf("response-%d.wav", n))
}

// writeWAV stores 24kHz mono 16-bit PCM as a WAV file.
func writeWAV(path string, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 24000, 16, 1, 1)
	samples := audioio.BytesToSamples(pcm)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 24000},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
