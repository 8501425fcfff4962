package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paperwave/studio/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                ":0",
		AuthMode:            config.AuthModeDisabled,
		MaxBodyBytes:        1 << 20,
		DefaultModel:        "gpt-4o-realtime-preview-2024-10-01",
		DefaultVoice:        "alloy",
		SessionStartTimeout: 2 * time.Second,
		CommitSettleDelay:   50 * time.Millisecond,
		SubscriberBuffer:    64,
		SessionIdleTimeout:  time.Hour,
		SessionReapInterval: time.Hour,
		WSWriteTimeout:      2 * time.Second,
		WSPingInterval:      10 * time.Second,
		ArxivBaseURL:        "http://127.0.0.1:1",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRealtime impersonates the upstream realtime endpoint: it announces the
// session on connect, records every client frame, and acks buffer commits.
type fakeRealtime struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	frames []map[string]any
}

func (f *fakeRealtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"type": "session.created"}); err != nil {
		return
	}
	for {
		var frame map[string]any
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		f.mu.Lock()
		f.frames = append(f.frames, frame)
		f.mu.Unlock()

		if frame["type"] == "input_audio_buffer.commit" {
			if err := ws.WriteJSON(map[string]any{"type": "input_audio_buffer.committed"}); err != nil {
				return
			}
		}
	}
}

func (f *fakeRealtime) frameTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i], _ = fr["type"].(string)
	}
	return out
}

func newTestStack(t *testing.T) (*httptest.Server, *fakeRealtime) {
	t.Helper()
	fake := &fakeRealtime{}
	upstreamSrv := httptest.NewServer(fake)
	t.Cleanup(upstreamSrv.Close)

	cfg := testConfig()
	cfg.UpstreamBaseURL = "ws" + strings.TrimPrefix(upstreamSrv.URL, "http")

	gw := New(cfg, quietLogger())
	t.Cleanup(gw.DrainSessions)
	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(ts.Close)
	return ts, fake
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestStack(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	ts, _ := newTestStack(t)
	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error.Code == "" {
		t.Fatal("404 body is not the error envelope")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts, fake := newTestStack(t)
	base := ts.URL + "/v1/sessions/conv-1"

	// Subscribe before starting so the feed sees session_ready.
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/subscribe"
	feed, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("subscribe dial: %v", err)
	}
	defer feed.Close()

	resp := postJSON(t, base+"/start", map[string]any{
		"provider": "openai",
		"api_key":  "sk-test-abcdef0123456789",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var started struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	decodeBody(t, resp, &started)
	if started.Status != "active" || started.Model == "" {
		t.Fatalf("start response = %+v", started)
	}

	feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type  string `json:"type"`
		Model string `json:"model"`
	}
	if err := feed.ReadJSON(&ev); err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if ev.Type != "session_ready" || ev.Model != started.Model {
		t.Fatalf("first feed event = %+v", ev)
	}

	chunk := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	resp = postJSON(t, base+"/audio", map[string]any{"audio": chunk})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, base+"/commit", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commit status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The upstream must see the full turn protocol in order.
	want := []string{
		"session.update",
		"input_audio_buffer.clear",
		"input_audio_buffer.append",
		"input_audio_buffer.commit",
		"response.create",
	}
	deadline := time.Now().Add(2 * time.Second)
	var types []string
	for {
		types = fake.frameTypes()
		if len(types) >= len(want) || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(types) != len(want) {
		t.Fatalf("upstream frames = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frame %d = %q, want %q (all: %v)", i, types[i], want[i], types)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, base, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	var closedEv struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := feed.ReadJSON(&closedEv); err != nil {
		t.Fatalf("read close event: %v", err)
	}
	if closedEv.Type != "session_closed" || closedEv.Reason != "stopped" {
		t.Fatalf("close event = %+v", closedEv)
	}

	// A repeated delete is still an accepted no-op.
	req, _ = http.NewRequest(http.MethodDelete, base, nil)
	delResp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("second delete status = %d", delResp.StatusCode)
	}
}

func TestAudioBeforeStart(t *testing.T) {
	ts, _ := newTestStack(t)
	chunk := base64.StdEncoding.EncodeToString([]byte{1, 2})
	resp := postJSON(t, ts.URL+"/v1/sessions/conv-x/audio", map[string]any{"audio": chunk})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error.Code != "invalid_request" {
		t.Fatalf("code = %q", body.Error.Code)
	}
}

func TestSubscribeRejectsUnknownKind(t *testing.T) {
	ts, _ := newTestStack(t)
	resp, err := http.Get(ts.URL + "/v1/sessions/conv-1/subscribe?kinds=nope")
	if err != nil {
		t.Fatalf("GET subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStartRejectsUnknownProvider(t *testing.T) {
	ts, _ := newTestStack(t)
	resp := postJSON(t, ts.URL+"/v1/sessions/conv-1/start", map[string]any{
		"provider": "acme",
		"api_key":  "sk-x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error.Code != "unsupported_provider" {
		t.Fatalf("code = %q", body.Error.Code)
	}
}

func TestPapersEndpoint(t *testing.T) {
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2408.01234v1</id>
    <title>A Paper</title>
    <summary>Something new.</summary>
    <published>2024-08-01T00:00:00Z</published>
    <author><name>A One</name></author>
  </entry>
</feed>`))
	}))
	defer arxiv.Close()

	cfg := testConfig()
	cfg.ArxivBaseURL = arxiv.URL
	gw := New(cfg, quietLogger())
	defer gw.DrainSessions()
	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/papers", map[string]any{"topics": []string{"cs.AI"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Papers []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"papers"`
	}
	decodeBody(t, resp, &body)
	if len(body.Papers) != 1 || body.Papers[0].ID != "2408.01234v1" {
		t.Fatalf("papers = %+v", body.Papers)
	}
}
