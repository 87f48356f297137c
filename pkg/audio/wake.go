package audio

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audioio"
)

// ErrNoClips means neither the custom nor the default wake-up directory
// held any WAV files.
var ErrNoClips = errors.New("no wake-up clips found")

// PlayWakeClip enqueues a random wake-up clip and blocks until playback
// drains. Custom clips take precedence over the bundled defaults.
// Returns the path of the clip played.
func PlayWakeClip(soundsDir string, q *Queue, chunkMS int) (string, error) {
	clips, _ := filepath.Glob(filepath.Join(soundsDir, "wake-up", "custom", "*.wav"))
	if len(clips) == 0 {
		log.Debug("no custom wake-up clips, using defaults")
		clips, _ = filepath.Glob(filepath.Join(soundsDir, "wake-up", "default", "*.wav"))
	}
	if len(clips) == 0 {
		return "", ErrNoClips
	}

	clip := clips[rand.Intn(len(clips))]
	if err := EnqueueWAV(clip, q, chunkMS); err != nil {
		return "", err
	}
	q.Join()
	return clip, nil
}

// EnqueueWAV splits a 24kHz mono 16-bit WAV file into playback chunks
// and feeds them to the queue as speech, so the mouth flaps along.
func EnqueueWAV(path string, q *Queue, chunkMS int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return fmt.Errorf("read wav header: %w", err)
	}
	if dec.SampleRate != 24000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		return fmt.Errorf("%s: want 24000 Hz mono 16-bit, got %d Hz %d ch %d-bit",
			path, dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	chunkLen := 24000 * chunkMS / 1000
	for i := 0; i < len(samples); i += chunkLen {
		end := i + chunkLen
		if end > len(samples) {
			end = len(samples)
		}
		q.Put(&Item{Kind: KindSpeech, PCM: audioio.SamplesToBytes(samples[i:end])})
	}
	return nil
}
