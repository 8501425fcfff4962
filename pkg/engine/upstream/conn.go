// Package upstream speaks the realtime wire protocol: one persistent
// WebSocket per session, JSON frames out, raw frames in. The normalizer in
// this package reduces the protocol's many frame spellings to the internal
// event union; nothing outside this package touches raw frames.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/paperwave/studio/pkg/engine"
)

const (
	// DefaultBaseURL is the production realtime endpoint.
	DefaultBaseURL = "wss://api.openai.com/v1/realtime"
	// DefaultModel is used when a session does not pick one.
	DefaultModel = "gpt-4o-realtime-preview-2024-10-01"

	defaultConnectTimeout = 10 * time.Second
	writeTimeout          = 5 * time.Second
	maxErrorBodyBytes     = 16 * 1024
)

// Config describes one upstream connection.
type Config struct {
	BaseURL        string
	Model          string
	APIKey         string
	ConnectTimeout time.Duration
}

// RawFrame is one upstream server frame with its envelope type pre-extracted.
type RawFrame struct {
	Type string
	Data []byte
}

// Conn is a live connection to the upstream realtime service. Frames are
// delivered in arrival order on Frames(); the channel closes when the
// connection dies, after which Err reports the terminal cause.
type Conn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	frames    chan RawFrame
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a realtime connection with a bounded handshake. A non-2xx
// handshake response is classified into the engine taxonomy with the
// credential masked out of any echoed detail.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	wsURL, err := buildURL(cfg.BaseURL, cfg.Model)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			return nil, engine.Classify(resp.StatusCode, body, cfg.APIKey)
		}
		return nil, engine.ClassifyTransport(err, cfg.APIKey)
	}

	c := &Conn{
		conn:   ws,
		frames: make(chan RawFrame, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send writes one JSON frame. Writes are serialized and bounded; a failed
// send is reported to the caller and never retried here.
func (c *Conn) Send(frame any) error {
	if c.closed.Load() {
		return engine.New(engine.CodeTransportFailure, "upstream connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(frame); err != nil {
		return engine.ClassifyTransport(err, "")
	}
	return nil
}

// Frames yields server frames in arrival order until the connection dies.
func (c *Conn) Frames() <-chan RawFrame {
	return c.frames
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
		close(c.done)
	})
	return nil
}

// Err returns the terminal read error, nil after a clean close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frameType := strings.TrimSpace(gjson.GetBytes(data, "type").String())
		if frameType == "" {
			continue
		}
		frame := RawFrame{Type: frameType, Data: append([]byte(nil), data...)}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

func buildURL(base, model string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", engine.Newf(engine.CodeInvalidRequest, "invalid upstream base url: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", engine.New(engine.CodeInvalidRequest, fmt.Sprintf("unsupported upstream scheme %q", u.Scheme))
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
