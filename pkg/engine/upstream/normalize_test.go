package upstream

import (
	"encoding/base64"
	"testing"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/events"
)

func frame(typ, body string) RawFrame {
	return RawFrame{Type: typ, Data: []byte(body)}
}

func TestNormalizeAudioDeltaSpellings(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	encoded := base64.StdEncoding.EncodeToString(pcm)

	for _, typ := range []string{"response.audio.delta", "response.output_audio.delta"} {
		ev, disp := Normalize(frame(typ, `{"type":"`+typ+`","delta":"`+encoded+`"}`))
		if disp != Emit {
			t.Fatalf("%s: disposition = %v, want Emit", typ, disp)
		}
		delta, ok := ev.(events.AudioDelta)
		if !ok {
			t.Fatalf("%s: event = %T, want AudioDelta", typ, ev)
		}
		if string(delta.Data) != string(pcm) {
			t.Fatalf("%s: decoded audio mismatch", typ)
		}
	}
}

func TestNormalizeAudioDecodeFailure(t *testing.T) {
	ev, disp := Normalize(frame("response.audio.delta", `{"delta":"not base64!!"}`))
	if disp != Emit {
		t.Fatalf("disposition = %v, want Emit", disp)
	}
	se, ok := ev.(events.SessionError)
	if !ok {
		t.Fatalf("event = %T, want SessionError", ev)
	}
	if se.Err.Code != engine.CodeUpstreamFailure {
		t.Fatalf("code = %s, want %s", se.Err.Code, engine.CodeUpstreamFailure)
	}
}

func TestNormalizeAssistantTranscriptSpellings(t *testing.T) {
	spellings := []string{
		"response.audio_transcript.delta",
		"response.output_audio_transcript.delta",
		"response.text.delta",
		"response.output_text.delta",
	}
	for _, typ := range spellings {
		ev, disp := Normalize(frame(typ, `{"delta":"hello"}`))
		if disp != Emit {
			t.Fatalf("%s: disposition = %v, want Emit", typ, disp)
		}
		delta, ok := ev.(events.AssistantTranscriptDelta)
		if !ok {
			t.Fatalf("%s: event = %T, want AssistantTranscriptDelta", typ, ev)
		}
		if delta.Text != "hello" {
			t.Fatalf("%s: text = %q", typ, delta.Text)
		}
	}
}

func TestNormalizeDeltaWinsOverText(t *testing.T) {
	ev, disp := Normalize(frame("response.text.delta", `{"delta":"new","text":"stale"}`))
	if disp != Emit {
		t.Fatalf("disposition = %v, want Emit", disp)
	}
	if got := ev.(events.AssistantTranscriptDelta).Text; got != "new" {
		t.Fatalf("text = %q, want %q", got, "new")
	}
}

func TestNormalizeTurnDone(t *testing.T) {
	for _, typ := range []string{"response.done", "response.completed"} {
		ev, disp := Normalize(frame(typ, `{}`))
		if disp != Emit {
			t.Fatalf("%s: disposition = %v, want Emit", typ, disp)
		}
		if _, ok := ev.(events.AssistantTurnDone); !ok {
			t.Fatalf("%s: event = %T, want AssistantTurnDone", typ, ev)
		}
	}
}

func TestNormalizeUserTranscript(t *testing.T) {
	ev, disp := Normalize(frame(
		"conversation.item.input_audio_transcription.delta", `{"delta":"so"}`))
	if disp != Emit {
		t.Fatalf("delta disposition = %v, want Emit", disp)
	}
	if got := ev.(events.UserTranscriptDelta).Text; got != "so" {
		t.Fatalf("delta text = %q", got)
	}

	ev, disp = Normalize(frame(
		"conversation.item.input_audio_transcription.completed", `{"transcript":" so anyway "}`))
	if disp != Emit {
		t.Fatalf("completed disposition = %v, want Emit", disp)
	}
	if got := ev.(events.UserTranscriptComplete).Text; got != "so anyway" {
		t.Fatalf("completed text = %q", got)
	}
}

func TestNormalizeTranscriptionFailed(t *testing.T) {
	ev, disp := Normalize(frame(
		"conversation.item.input_audio_transcription.failed",
		`{"error":{"message":"audio too short"}}`))
	if disp != Emit {
		t.Fatalf("disposition = %v, want Emit", disp)
	}
	se, ok := ev.(events.SessionError)
	if !ok {
		t.Fatalf("event = %T, want SessionError", ev)
	}
	if se.Err.UpstreamDetail != "audio too short" {
		t.Fatalf("detail = %q", se.Err.UpstreamDetail)
	}
}

func TestNormalizeSpeechEvents(t *testing.T) {
	ev, _ := Normalize(frame("input_audio_buffer.speech_started", `{}`))
	if _, ok := ev.(events.UserSpeechStarted); !ok {
		t.Fatalf("event = %T, want UserSpeechStarted", ev)
	}
	ev, _ = Normalize(frame("input_audio_buffer.speech_stopped", `{}`))
	if _, ok := ev.(events.UserSpeechStopped); !ok {
		t.Fatalf("event = %T, want UserSpeechStopped", ev)
	}
}

func TestNormalizeErrorFrameClassification(t *testing.T) {
	cases := []struct {
		body string
		want engine.Code
	}{
		{`{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`, engine.CodeInvalidCredential},
		{`{"error":{"message":"Rate limit reached"}}`, engine.CodeRateLimited},
		{`{"error":{"message":"Invalid value for modalities","code":"invalid_request_error"}}`, engine.CodeInvalidRequest},
		{`{"error":{"message":"internal blowup"}}`, engine.CodeUpstreamFailure},
	}
	for _, tc := range cases {
		ev, disp := Normalize(frame("error", tc.body))
		if disp != Emit {
			t.Fatalf("%s: disposition = %v, want Emit", tc.body, disp)
		}
		se := ev.(events.SessionError)
		if se.Err.Code != tc.want {
			t.Fatalf("%s: code = %s, want %s", tc.body, se.Err.Code, tc.want)
		}
	}
}

func TestNormalizeIgnoredAndUnknown(t *testing.T) {
	ignored := []string{
		"session.created",
		"session.updated",
		"input_audio_buffer.committed",
		"input_audio_buffer.cleared",
		"response.created",
		"response.audio.done",
		"rate_limits.updated",
	}
	for _, typ := range ignored {
		if ev, disp := Normalize(frame(typ, `{}`)); disp != Ignore || ev != nil {
			t.Fatalf("%s: got (%v, %v), want (nil, Ignore)", typ, ev, disp)
		}
	}

	if ev, disp := Normalize(frame("some.future.frame", `{}`)); disp != Unknown || ev != nil {
		t.Fatalf("unknown frame: got (%v, %v), want (nil, Unknown)", ev, disp)
	}
}
