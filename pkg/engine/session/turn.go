package session

import (
	"time"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/audio"
	"github.com/paperwave/studio/pkg/engine/upstream"
)

// AppendAudio pushes one raw PCM16 chunk into the current turn's upstream
// buffer. The first chunk of a turn is preceded by exactly one buffer clear
// so stale audio from an earlier, uncommitted turn never leaks in. Send
// failures are surfaced to the caller and never retried here.
func (s *Session) AppendAudio(chunk []byte) error {
	if err := audio.ValidateChunk(chunk); err != nil {
		return engine.Newf(engine.CodeInvalidRequest, "bad audio chunk: %v", err)
	}

	s.mu.Lock()
	if s.state != StateActive || s.conn == nil {
		s.mu.Unlock()
		return engine.NotReady()
	}
	conn := s.conn
	clearFirst := s.needsClear
	s.needsClear = false
	s.pendingChunks++
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if clearFirst {
		if err := conn.Send(upstream.NewBufferClear()); err != nil {
			s.resetTurn()
			return err
		}
	}
	if err := conn.Send(upstream.NewBufferAppend(audio.EncodeChunk(chunk))); err != nil {
		s.resetTurn()
		return err
	}
	return nil
}

// resetTurn abandons the in-flight turn after a send failure so the next
// append starts from a cleared buffer.
func (s *Session) resetTurn() {
	s.mu.Lock()
	s.needsClear = true
	s.pendingChunks = 0
	s.mu.Unlock()
}

// CommitTurn finalizes the accumulated audio and requests a response. With
// no accumulated chunks it is a no-op, so callers can commit on a timer
// without tripping upstream's empty-buffer error. The response request waits
// for the server's commit acknowledgment, falling back to a short fixed
// delay when the ack does not arrive.
func (s *Session) CommitTurn() error {
	s.mu.Lock()
	if s.state != StateActive || s.conn == nil {
		s.mu.Unlock()
		return engine.NotReady()
	}
	if s.pendingChunks == 0 {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	instructions := Instructions(s.cfg.Paper)
	s.pendingChunks = 0
	s.needsClear = true
	s.lastActivity = time.Now()
	s.mu.Unlock()

	// Drop a stale ack from a previous turn before arming the wait.
	select {
	case <-s.commitAck:
	default:
	}

	if err := conn.Send(upstream.NewBufferCommit()); err != nil {
		return err
	}

	select {
	case <-s.commitAck:
	case <-time.After(s.opts.SettleDelay):
	}

	return conn.Send(upstream.NewResponseCreate(instructions))
}

// SendText injects a typed user message and requests a response. Text turns
// skip the audio buffer protocol entirely.
func (s *Session) SendText(text string) error {
	if text == "" {
		return engine.New(engine.CodeInvalidRequest, "empty text")
	}

	s.mu.Lock()
	if s.state != StateActive || s.conn == nil {
		s.mu.Unlock()
		return engine.NotReady()
	}
	conn := s.conn
	instructions := Instructions(s.cfg.Paper)
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if err := conn.Send(upstream.NewUserText(text)); err != nil {
		return err
	}
	return conn.Send(upstream.NewResponseCreate(instructions))
}
