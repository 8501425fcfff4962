package upstream

import "github.com/google/uuid"

// Client frame types understood by the upstream realtime service.
const (
	TypeSessionUpdate  = "session.update"
	TypeBufferAppend   = "input_audio_buffer.append"
	TypeBufferClear    = "input_audio_buffer.clear"
	TypeBufferCommit   = "input_audio_buffer.commit"
	TypeItemCreate     = "conversation.item.create"
	TypeResponseCreate = "response.create"
)

// Server acknowledgment for a buffer commit. The commit/response-request pair
// is logically sequential but travels as independent frames; the session
// waits for this ack before requesting a response.
const typeBufferCommitted = "input_audio_buffer.committed"

// IsCommitAck reports whether a server frame acknowledges a buffer commit.
func IsCommitAck(frameType string) bool {
	return frameType == typeBufferCommitted
}

// TurnDetection configures upstream server-side voice activity detection.
type TurnDetection struct {
	Type            string  `json:"type"`
	Threshold       float64 `json:"threshold"`
	PrefixPaddingMS int     `json:"prefix_padding_ms"`
	SilenceDuration int     `json:"silence_duration_ms"`
}

// DefaultTurnDetection returns the engine's fixed server-VAD settings.
func DefaultTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:            "server_vad",
		Threshold:       0.5,
		PrefixPaddingMS: 300,
		SilenceDuration: 500,
	}
}

// Transcription selects the model used for caller-audio transcription.
type Transcription struct {
	Model string `json:"model"`
}

// SessionConfig is the session-level configuration pushed on connect and on
// live reconfiguration.
type SessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
}

type SessionUpdateFrame struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type BufferAppendFrame struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type BufferControlFrame struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type ItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ItemContent `json:"content"`
}

type ItemCreateFrame struct {
	EventID string           `json:"event_id"`
	Type    string           `json:"type"`
	Item    ConversationItem `json:"item"`
}

type ResponseConfig struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions,omitempty"`
}

type ResponseCreateFrame struct {
	EventID  string         `json:"event_id"`
	Type     string         `json:"type"`
	Response ResponseConfig `json:"response"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdateFrame {
	return SessionUpdateFrame{EventID: uuid.NewString(), Type: TypeSessionUpdate, Session: cfg}
}

func NewBufferAppend(encodedAudio string) BufferAppendFrame {
	return BufferAppendFrame{EventID: uuid.NewString(), Type: TypeBufferAppend, Audio: encodedAudio}
}

func NewBufferClear() BufferControlFrame {
	return BufferControlFrame{EventID: uuid.NewString(), Type: TypeBufferClear}
}

func NewBufferCommit() BufferControlFrame {
	return BufferControlFrame{EventID: uuid.NewString(), Type: TypeBufferCommit}
}

func NewUserText(text string) ItemCreateFrame {
	return ItemCreateFrame{
		EventID: uuid.NewString(),
		Type:    TypeItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ItemContent{{Type: "input_text", Text: text}},
		},
	}
}

func NewResponseCreate(instructions string) ResponseCreateFrame {
	return ResponseCreateFrame{
		EventID: uuid.NewString(),
		Type:    TypeResponseCreate,
		Response: ResponseConfig{
			Modalities:   []string{"text", "audio"},
			Instructions: instructions,
		},
	}
}
