// Package events defines the stable internal event union the engine emits.
// The upstream realtime protocol has many historically accumulated spellings
// for the same logical event; everything downstream of the normalizer sees
// only these types.
package events

import "github.com/paperwave/studio/pkg/engine"

// Kind names one event variant. Subscribers filter on kinds.
type Kind string

const (
	KindAudioDelta               Kind = "audio_delta"
	KindAssistantTranscriptDelta Kind = "assistant_transcript_delta"
	KindAssistantTurnDone        Kind = "assistant_turn_done"
	KindUserTranscriptDelta      Kind = "user_transcript_delta"
	KindUserTranscriptComplete   Kind = "user_transcript_complete"
	KindUserSpeechStarted        Kind = "user_speech_started"
	KindUserSpeechStopped        Kind = "user_speech_stopped"
	KindSessionReady             Kind = "session_ready"
	KindSessionClosed            Kind = "session_closed"
	KindSessionError             Kind = "session_error"
)

// AllKinds lists every variant, for subscribers that want the full feed.
func AllKinds() []Kind {
	return []Kind{
		KindAudioDelta,
		KindAssistantTranscriptDelta,
		KindAssistantTurnDone,
		KindUserTranscriptDelta,
		KindUserTranscriptComplete,
		KindUserSpeechStarted,
		KindUserSpeechStopped,
		KindSessionReady,
		KindSessionClosed,
		KindSessionError,
	}
}

// ParseKind validates a kind received from a caller.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	for _, known := range AllKinds() {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Event is the tagged union. Concrete types below are the only
// implementations.
type Event interface {
	Kind() Kind
}

// AudioDelta carries decoded assistant audio. Data is raw PCM16; the wire
// text encoding is stripped at the normalizer boundary.
type AudioDelta struct {
	Data []byte
}

func (AudioDelta) Kind() Kind { return KindAudioDelta }

// AssistantTranscriptDelta is a streaming fragment of the assistant's spoken
// transcript.
type AssistantTranscriptDelta struct {
	Text string
}

func (AssistantTranscriptDelta) Kind() Kind { return KindAssistantTranscriptDelta }

// AssistantTurnDone marks the end of one assistant response.
type AssistantTurnDone struct{}

func (AssistantTurnDone) Kind() Kind { return KindAssistantTurnDone }

// UserTranscriptDelta is a streaming fragment of the caller's transcript.
type UserTranscriptDelta struct {
	Text string
}

func (UserTranscriptDelta) Kind() Kind { return KindUserTranscriptDelta }

// UserTranscriptComplete carries the final transcript of one caller turn.
type UserTranscriptComplete struct {
	Text string
}

func (UserTranscriptComplete) Kind() Kind { return KindUserTranscriptComplete }

// UserSpeechStarted reports upstream voice-activity detection of speech onset.
type UserSpeechStarted struct{}

func (UserSpeechStarted) Kind() Kind { return KindUserSpeechStarted }

// UserSpeechStopped reports upstream voice-activity detection of speech end.
type UserSpeechStopped struct{}

func (UserSpeechStopped) Kind() Kind { return KindUserSpeechStopped }

// SessionReady fires once the upstream session is configured and live.
type SessionReady struct {
	Model string
}

func (SessionReady) Kind() Kind { return KindSessionReady }

// SessionClosed fires when the session tears down, normally or otherwise.
type SessionClosed struct {
	Reason string
}

func (SessionClosed) Kind() Kind { return KindSessionClosed }

// SessionError surfaces a classified upstream failure.
type SessionError struct {
	Err *engine.Error
}

func (SessionError) Kind() Kind { return KindSessionError }
