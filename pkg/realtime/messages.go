package realtime

// Tool describes one function the assistant may call. Parameters is a
// JSON Schema properties map; Required lists which of them must be set.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// apiTool renders the tool in session.update wire format.
func (t Tool) apiTool() map[string]any {
	required := t.Required
	if required == nil {
		required = []string{}
	}
	params := t.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{
		"type":        "function",
		"name":        t.Name,
		"description": t.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": params,
			"required":   required,
		},
	}
}

// TurnDetection selects how the server decides the user finished
// talking. Conversations use server VAD; one-shot announcements use
// semantic VAD so the fish does not listen to itself.
type TurnDetection string

const (
	ServerVAD   TurnDetection = "server_vad"
	SemanticVAD TurnDetection = "semantic_vad"
)

// SessionConfig is everything sent in session.update.
type SessionConfig struct {
	Instructions  string
	Voice         string
	TurnDetection TurnDetection
	Tools         []Tool

	// TextOnly drops the audio modality; used in text-only mode.
	TextOnly bool
}

// updateMessage renders the session.update payload.
func (sc SessionConfig) updateMessage() map[string]any {
	modalities := []string{"text", "audio"}
	if sc.TextOnly {
		modalities = []string{"text"}
	}

	session := map[string]any{
		"modalities":          modalities,
		"instructions":        sc.Instructions,
		"voice":               sc.Voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]any{
			"model": "whisper-1",
		},
		"tool_choice": "auto",
	}

	switch sc.TurnDetection {
	case SemanticVAD:
		session["turn_detection"] = map[string]any{"type": "semantic_vad"}
	default:
		session["turn_detection"] = map[string]any{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": 500,
		}
	}

	tools := make([]map[string]any, len(sc.Tools))
	for i, t := range sc.Tools {
		tools[i] = t.apiTool()
	}
	session["tools"] = tools

	return map[string]any{
		"type":    "session.update",
		"session": session,
	}
}
