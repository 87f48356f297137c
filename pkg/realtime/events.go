package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event is a decoded server event. The concrete type tells the caller
// what happened; unrecognized event types decode to Unknown so the
// session loop can log and move on when the API grows new events.
type Event interface {
	eventType() string
}

// SessionCreated confirms the connection; the session is not yet
// configured.
type SessionCreated struct {
	SessionID string
}

// SessionUpdated confirms a session.update took effect. Audio may be
// committed from this point on.
type SessionUpdated struct{}

// AudioDelta carries one chunk of assistant speech, already decoded
// from base64 to raw PCM16.
type AudioDelta struct {
	Audio []byte
}

// AudioDone means the audio portion of the response is complete.
type AudioDone struct{}

// TranscriptDelta is a piece of the transcript of assistant speech.
type TranscriptDelta struct {
	Text string
}

// TextDelta is a piece of a text-modality response.
type TextDelta struct {
	Text string
}

// InputTranscription is the completed transcription of what the user
// said.
type InputTranscription struct {
	Text string
}

// SpeechStarted means server VAD detected the user talking.
type SpeechStarted struct{}

// SpeechStopped means server VAD detected the user going quiet.
type SpeechStopped struct{}

// FunctionCallDone delivers a completed tool invocation.
type FunctionCallDone struct {
	Name      string
	CallID    string
	Arguments json.RawMessage
}

// APIError is the error payload attached to failed responses.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// TurnDone means the response finished, successfully or not. Err is nil
// on success.
type TurnDone struct {
	Err *APIError
}

// ErrorEvent is a server-reported protocol error.
type ErrorEvent struct {
	Err APIError
}

// Unknown is any event type this client does not handle.
type Unknown struct {
	Type string
}

func (SessionCreated) eventType() string     { return "session.created" }
func (SessionUpdated) eventType() string     { return "session.updated" }
func (AudioDelta) eventType() string         { return "response.audio.delta" }
func (AudioDone) eventType() string          { return "response.audio.done" }
func (TranscriptDelta) eventType() string    { return "response.audio_transcript.delta" }
func (TextDelta) eventType() string          { return "response.text.delta" }
func (InputTranscription) eventType() string { return "conversation.item.input_audio_transcription.completed" }
func (SpeechStarted) eventType() string      { return "input_audio_buffer.speech_started" }
func (SpeechStopped) eventType() string      { return "input_audio_buffer.speech_stopped" }
func (FunctionCallDone) eventType() string   { return "response.function_call_arguments.done" }
func (TurnDone) eventType() string           { return "response.done" }
func (ErrorEvent) eventType() string         { return "error" }
func (u Unknown) eventType() string          { return u.Type }

// rawEvent covers every field we pull out of server messages.
type rawEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	Arguments  string `json:"arguments"`
	Session    struct {
		ID string `json:"id"`
	} `json:"session"`
	Response struct {
		Status        string `json:"status"`
		StatusDetails struct {
			Error *APIError `json:"error"`
		} `json:"status_details"`
	} `json:"response"`
	Error *APIError `json:"error"`
}

// DecodeEvent parses one server message into a typed Event.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch raw.Type {
	case "session.created":
		return SessionCreated{SessionID: raw.Session.ID}, nil
	case "session.updated":
		return SessionUpdated{}, nil
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return AudioDelta{Audio: audio}, nil
	case "response.audio.done":
		return AudioDone{}, nil
	case "response.audio_transcript.delta":
		return TranscriptDelta{Text: raw.Delta}, nil
	case "response.text.delta":
		return TextDelta{Text: raw.Delta}, nil
	case "conversation.item.input_audio_transcription.completed":
		return InputTranscription{Text: raw.Transcript}, nil
	case "input_audio_buffer.speech_started":
		return SpeechStarted{}, nil
	case "input_audio_buffer.speech_stopped":
		return SpeechStopped{}, nil
	case "response.function_call_arguments.done":
		return FunctionCallDone{
			Name:      raw.Name,
			CallID:    raw.CallID,
			Arguments: json.RawMessage(raw.Arguments),
		}, nil
	case "response.done":
		return TurnDone{Err: raw.Response.StatusDetails.Error}, nil
	case "error":
		if raw.Error != nil {
			return ErrorEvent{Err: *raw.Error}, nil
		}
		return ErrorEvent{}, nil
	default:
		return Unknown{Type: raw.Type}, nil
	}
}
