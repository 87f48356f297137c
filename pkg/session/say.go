package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"billy-bassistant/internal/log"
	"billy-bassistant/pkg/audio"
	"billy-bassistant/pkg/realtime"
)

// literalPreamble forces the model to repeat an announcement verbatim
// instead of improvising around it.
const literalPreamble = "Override for this turn while maintaining your tone and accent:\n" +
	"Say the user's message **verbatim**, word for word, with no additions or reinterpretation.\n" +
	"Maintain personality, but do NOT rephrase or expand.\n\n" +
	"Repeat this literal message sent via MQTT: "

// Say speaks a one-shot announcement outside a conversation. Text
// wrapped in {{...}} is treated as a prompt for the model; anything
// else is repeated verbatim. Blocks until playback drains.
func Say(ctx context.Context, cfg Config, text string) error {
	stream, err := cfg.Dialer(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return fmt.Errorf("say: %w", err)
	}
	defer stream.Close()

	// Semantic VAD: the fish is talking at the room, not listening.
	err = stream.Configure(realtime.SessionConfig{
		Instructions:  cfg.Instructions(),
		Voice:         cfg.Voice,
		TurnDetection: realtime.SemanticVAD,
	})
	if err != nil {
		return fmt.Errorf("say configure: %w", err)
	}

	message := text
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		message = strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		log.Debug("say: prompt message", "prompt", message)
	} else {
		message = literalPreamble + text
	}

	if err := stream.InjectUserText(message); err != nil {
		return fmt.Errorf("say inject: %w", err)
	}
	if err := stream.CreateResponse(); err != nil {
		return fmt.Errorf("say response: %w", err)
	}

	cfg.Motors.MoveHead(true)
	defer cfg.Motors.MoveHead(false)

	var audioBuf []byte
	var transcript strings.Builder
	for {
		ev, err := stream.ReadEvent(ctx)
		if err != nil {
			if errors.Is(err, realtime.ErrClosed) {
				break
			}
			return fmt.Errorf("say read: %w", err)
		}

		switch ev := ev.(type) {
		case realtime.AudioDelta:
			audioBuf = append(audioBuf, ev.Audio...)
			cfg.Queue.Put(&audio.Item{Kind: audio.KindSpeech, PCM: ev.Audio})
		case realtime.TranscriptDelta:
			transcript.WriteString(ev.Text)
		case realtime.TextDelta:
			transcript.WriteString(ev.Text)
		case realtime.TurnDone:
			if ev.Err != nil {
				log.Error("say turn failed", "code", ev.Err.Code, "message", ev.Err.Message)
			}
			stream.End()
			goto drained
		case realtime.ErrorEvent:
			log.Error("say server error", "code", ev.Err.Code, "message", ev.Err.Message)
		}
	}

drained:
	log.Info("say complete", "bytes", len(audioBuf), "transcript", strings.TrimSpace(transcript.String()))

	if len(audioBuf) > 0 && cfg.History != nil {
		if err := cfg.History.Save(audioBuf); err != nil {
			log.Warn("say response save failed", "error", err)
		}
	}
	cfg.Queue.Join()
	return nil
}
