package upstream

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/audio"
	"github.com/paperwave/studio/pkg/engine/events"
)

// Disposition classifies what the normalizer decided about a raw frame.
type Disposition int

const (
	// Emit means the returned event should be dispatched to subscribers.
	Emit Disposition = iota
	// Ignore means the frame is a known ack/bookkeeping frame with no
	// subscriber-visible meaning.
	Ignore
	// Unknown means the frame type has never been seen; callers log and
	// drop it, since upstream adds diagnostic-only frames at any time.
	Unknown
)

// The upstream protocol accumulated several spellings per logical event
// across API revisions. Every known spelling is reduced here; downstream
// code never branches on wire names.
var (
	audioDeltaTypes = map[string]struct{}{
		"response.audio.delta":        {},
		"response.output_audio.delta": {},
	}
	assistantTextDeltaTypes = map[string]struct{}{
		"response.audio_transcript.delta":        {},
		"response.output_audio_transcript.delta": {},
		"response.text.delta":                    {},
		"response.output_text.delta":             {},
	}
	assistantDoneTypes = map[string]struct{}{
		"response.done":      {},
		"response.completed": {},
	}
	userTranscriptDeltaTypes = map[string]struct{}{
		"conversation.item.input_audio_transcription.delta": {},
	}
	userTranscriptCompleteTypes = map[string]struct{}{
		"conversation.item.input_audio_transcription.completed": {},
	}
	speechStartedTypes = map[string]struct{}{
		"input_audio_buffer.speech_started": {},
	}
	speechStoppedTypes = map[string]struct{}{
		"input_audio_buffer.speech_stopped": {},
	}
	errorTypes = map[string]struct{}{
		"error": {},
		"conversation.item.input_audio_transcription.failed": {},
	}

	// Known bookkeeping frames: lifecycle acks handled by the session state
	// machine, per-segment dones, and flow-control notices.
	ignoredTypes = map[string]struct{}{
		"session.created":                        {},
		"session.updated":                        {},
		"input_audio_buffer.committed":           {},
		"input_audio_buffer.cleared":             {},
		"conversation.created":                   {},
		"conversation.item.created":              {},
		"response.created":                       {},
		"response.output_item.added":             {},
		"response.output_item.done":              {},
		"response.content_part.added":            {},
		"response.content_part.done":             {},
		"response.audio.done":                    {},
		"response.output_audio.done":             {},
		"response.audio_transcript.done":         {},
		"response.output_audio_transcript.done":  {},
		"response.text.done":                     {},
		"response.output_text.done":              {},
		"rate_limits.updated":                    {},
	}
)

// Normalize reduces one raw upstream frame to the internal event union.
func Normalize(f RawFrame) (events.Event, Disposition) {
	switch {
	case member(audioDeltaTypes, f.Type):
		encoded := deltaField(f.Data)
		if encoded == "" {
			return nil, Ignore
		}
		pcm, err := audio.DecodeChunk(encoded)
		if err != nil {
			// A dropped audio frame would silently desynchronize playback,
			// so decode failures surface as session errors.
			decodeErr := engine.Newf(engine.CodeUpstreamFailure, "undecodable audio frame: %v", err)
			return events.SessionError{Err: decodeErr}, Emit
		}
		return events.AudioDelta{Data: pcm}, Emit

	case member(assistantTextDeltaTypes, f.Type):
		text := deltaField(f.Data)
		if text == "" {
			return nil, Ignore
		}
		return events.AssistantTranscriptDelta{Text: text}, Emit

	case member(assistantDoneTypes, f.Type):
		return events.AssistantTurnDone{}, Emit

	case member(userTranscriptDeltaTypes, f.Type):
		text := deltaField(f.Data)
		if text == "" {
			return nil, Ignore
		}
		return events.UserTranscriptDelta{Text: text}, Emit

	case member(userTranscriptCompleteTypes, f.Type):
		text := gjson.GetBytes(f.Data, "transcript").String()
		return events.UserTranscriptComplete{Text: strings.TrimSpace(text)}, Emit

	case member(speechStartedTypes, f.Type):
		return events.UserSpeechStarted{}, Emit

	case member(speechStoppedTypes, f.Type):
		return events.UserSpeechStopped{}, Emit

	case member(errorTypes, f.Type):
		return events.SessionError{Err: classifyErrorFrame(f.Data)}, Emit

	case member(ignoredTypes, f.Type):
		return nil, Ignore

	default:
		return nil, Unknown
	}
}

// deltaField extracts the streaming payload. When both a delta and a
// text/transcript field appear on one frame, delta wins.
func deltaField(data []byte) string {
	if delta := gjson.GetBytes(data, "delta"); delta.Exists() && delta.String() != "" {
		return delta.String()
	}
	if text := gjson.GetBytes(data, "text"); text.Exists() && text.String() != "" {
		return text.String()
	}
	if transcript := gjson.GetBytes(data, "transcript"); transcript.Exists() {
		return transcript.String()
	}
	return ""
}

func classifyErrorFrame(data []byte) *engine.Error {
	message := gjson.GetBytes(data, "error.message").String()
	if message == "" {
		message = gjson.GetBytes(data, "message").String()
	}
	code := gjson.GetBytes(data, "error.code").String()

	kind := engine.CodeUpstreamFailure
	lower := strings.ToLower(message + " " + code)
	switch {
	case strings.Contains(lower, "invalid_api_key"), strings.Contains(lower, "invalid api key"):
		kind = engine.CodeInvalidCredential
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "rate_limit"):
		kind = engine.CodeRateLimited
	case strings.Contains(lower, "invalid_request"), strings.Contains(lower, "invalid value"):
		kind = engine.CodeInvalidRequest
	}

	err := engine.New(kind, "upstream reported an error")
	err.UpstreamDetail = strings.TrimSpace(message)
	return err
}

func member(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
