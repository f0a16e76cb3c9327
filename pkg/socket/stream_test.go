// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/quic-go/quic-go"
)

// fakeIO records what the state machine does to its stream.
type fakeIO struct {
	mutex      sync.Mutex
	replies    [][]byte
	finished   int
	aborts     []quic.StreamErrorCode
	respondErr error
}

func (fio *fakeIO) Respond(reply []byte) error {
	fio.mutex.Lock()
	defer fio.mutex.Unlock()

	if fio.respondErr != nil {
		return fio.respondErr
	}
	fio.replies = append(fio.replies, append([]byte(nil), reply...))
	return nil
}

func (fio *fakeIO) Finish() error {
	fio.mutex.Lock()
	defer fio.mutex.Unlock()

	fio.finished++
	return nil
}

func (fio *fakeIO) Abort(code quic.StreamErrorCode) {
	fio.mutex.Lock()
	defer fio.mutex.Unlock()

	fio.aborts = append(fio.aborts, code)
}

// chunkReader returns its chunks one by one, followed by err.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	if len(cr.chunks) == 0 {
		return 0, cr.err
	}

	n := copy(p, cr.chunks[0])
	if n < len(cr.chunks[0]) {
		cr.chunks[0] = cr.chunks[0][n:]
	} else {
		cr.chunks = cr.chunks[1:]
	}
	return n, nil
}

// recordingHandler counts its calls and answers requests with a fixed reply.
type recordingHandler struct {
	mutex    sync.Mutex
	requests [][]byte
	pushes   [][]byte
	reply    []byte
	panics   bool
}

func (rh *recordingHandler) OnConnect(*Session, bool) {}

func (rh *recordingHandler) OnRequest(_ *Session, request []byte) []byte {
	rh.mutex.Lock()
	defer rh.mutex.Unlock()

	if rh.panics {
		panic("request handler failed")
	}
	rh.requests = append(rh.requests, append([]byte(nil), request...))
	return rh.reply
}

func (rh *recordingHandler) OnReceive(_ *Session, message []byte) {
	rh.mutex.Lock()
	defer rh.mutex.Unlock()

	if rh.panics {
		panic("push handler failed")
	}
	rh.pushes = append(rh.pushes, append([]byte(nil), message...))
}

func (rh *recordingHandler) calls() int {
	rh.mutex.Lock()
	defer rh.mutex.Unlock()

	return len(rh.requests) + len(rh.pushes)
}

func peerAbort() error {
	return &quic.StreamError{StreamID: 0, ErrorCode: 42, Remote: true}
}

func TestStreamRequestReply(t *testing.T) {
	handler := &recordingHandler{reply: []byte("pong")}
	fio := &fakeIO{}
	session := newSession(nil)

	s := newStream(0, session, handler, false, fio, DefaultMaxMessageSize)
	s.run(&chunkReader{chunks: [][]byte{[]byte("pi"), []byte("ng")}, err: io.EOF})

	if len(handler.requests) != 1 || string(handler.requests[0]) != "ping" {
		t.Fatalf("Handler received %q", handler.requests)
	}
	if len(fio.replies) != 1 || string(fio.replies[0]) != "pong" {
		t.Fatalf("Stream replied %q", fio.replies)
	}
	if len(fio.aborts) != 0 {
		t.Fatalf("Stream was aborted: %v", fio.aborts)
	}
	if s.state != streamClosed || s.buffer.Bytes() != nil || s.reply != nil {
		t.Fatalf("Stream was not cleaned up: %v", s.state)
	}
	if stats := session.Stats(); stats.Requests != 1 || stats.Pushes != 0 {
		t.Fatalf("Unexpected session stats: %+v", stats)
	}
}

func TestStreamRequestMaxSize(t *testing.T) {
	payload := bytes.Repeat([]byte{0x23}, DefaultMaxMessageSize)
	handler := HandlerFuncs{Request: func(_ *Session, request []byte) []byte {
		return append([]byte(nil), request...)
	}}
	fio := &fakeIO{}

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.run(&chunkReader{chunks: [][]byte{payload}, err: io.EOF})

	if len(fio.replies) != 1 || !bytes.Equal(fio.replies[0], payload) {
		t.Fatalf("Reply of %d bytes differs from the request", len(fio.replies))
	}
}

func TestStreamPush(t *testing.T) {
	handler := &recordingHandler{reply: []byte("unused")}
	fio := &fakeIO{}
	session := newSession(nil)

	s := newStream(2, session, handler, true, fio, DefaultMaxMessageSize)
	s.run(&chunkReader{chunks: [][]byte{[]byte("event-x")}, err: io.EOF})

	if len(handler.pushes) != 1 || string(handler.pushes[0]) != "event-x" {
		t.Fatalf("Handler received %q", handler.pushes)
	}
	if len(fio.replies) != 0 {
		t.Fatalf("Push stream wrote %q", fio.replies)
	}
	if fio.finished != 1 {
		t.Fatalf("Push stream was finished %d times", fio.finished)
	}
	if stats := session.Stats(); stats.Pushes != 1 || stats.Requests != 0 {
		t.Fatalf("Unexpected session stats: %+v", stats)
	}
}

func TestStreamOverflow(t *testing.T) {
	tests := []struct {
		name           string
		unidirectional bool
		chunks         [][]byte
	}{
		{"bidi single chunk", false, [][]byte{make([]byte, 9000)}},
		{"bidi many chunks", false, [][]byte{make([]byte, 4096), make([]byte, 4096), make([]byte, 808)}},
		{"uni", true, [][]byte{make([]byte, 8193)}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			handler := &recordingHandler{}
			fio := &fakeIO{}
			session := newSession(nil)

			s := newStream(0, session, handler, test.unidirectional, fio, DefaultMaxMessageSize)
			s.run(&chunkReader{chunks: test.chunks, err: io.EOF})

			if c := handler.calls(); c != 0 {
				t.Fatalf("Handler was called %d times", c)
			}
			if len(fio.aborts) != 1 || fio.aborts[0] != StreamOverflowCode {
				t.Fatalf("Expected a single overflow abort, got %v", fio.aborts)
			}
			if len(fio.replies) != 0 {
				t.Fatalf("Aborted stream replied %q", fio.replies)
			}
			if session.Stats().Aborts != 1 {
				t.Fatalf("Abort was not counted")
			}
		})
	}
}

func TestStreamPeerAbort(t *testing.T) {
	for _, uni := range []bool{false, true} {
		handler := &recordingHandler{}
		fio := &fakeIO{}

		s := newStream(0, newSession(nil), handler, uni, fio, DefaultMaxMessageSize)
		s.run(&chunkReader{chunks: [][]byte{[]byte("partial")}, err: peerAbort()})

		if c := handler.calls(); c != 0 {
			t.Fatalf("Handler was called %d times (uni: %t)", c, uni)
		}
		if len(fio.aborts) != 1 || fio.aborts[0] != StreamPeerAbortCode {
			t.Fatalf("Expected a peer abort, got %v (uni: %t)", fio.aborts, uni)
		}
	}
}

func TestStreamHandlerPanic(t *testing.T) {
	handler := &recordingHandler{panics: true}
	fio := &fakeIO{}

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.run(&chunkReader{chunks: [][]byte{[]byte("ping")}, err: io.EOF})

	if len(fio.aborts) != 1 || fio.aborts[0] != StreamInternalCode {
		t.Fatalf("Expected an internal abort, got %v", fio.aborts)
	}
	if len(fio.replies) != 0 {
		t.Fatalf("Failed handler produced a reply: %q", fio.replies)
	}
}

func TestStreamRespondFailure(t *testing.T) {
	handler := &recordingHandler{reply: []byte("pong")}
	fio := &fakeIO{respondErr: errors.New("connection lost")}

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.run(&chunkReader{chunks: [][]byte{[]byte("ping")}, err: io.EOF})

	if len(fio.aborts) != 1 || fio.aborts[0] != StreamTransmissionCode {
		t.Fatalf("Expected a transmission abort, got %v", fio.aborts)
	}
}

func TestStreamDispatcherBusy(t *testing.T) {
	handler := &recordingHandler{reply: []byte("pong")}
	fio := &fakeIO{}

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.dispatch = func(job) error { return ErrDispatcherBusy }
	s.run(&chunkReader{chunks: [][]byte{[]byte("ping")}, err: io.EOF})

	if c := handler.calls(); c != 0 {
		t.Fatalf("Handler was called %d times", c)
	}
	if len(fio.aborts) != 1 || fio.aborts[0] != StreamBusyCode {
		t.Fatalf("Expected a busy abort, got %v", fio.aborts)
	}
}

func TestStreamDispatchedAfterShutdown(t *testing.T) {
	handler := &recordingHandler{reply: []byte("pong")}
	fio := &fakeIO{}

	d := newDispatcher(1, 1)
	defer d.Stop()

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.dispatch = d.Submit
	s.alive = func() bool { return false }
	s.run(&chunkReader{chunks: [][]byte{[]byte("ping")}, err: io.EOF})

	if c := handler.calls(); c != 0 {
		t.Fatalf("Handler was called %d times for a closed connection", c)
	}
	if len(fio.replies) != 0 {
		t.Fatalf("Closed connection got a reply: %q", fio.replies)
	}
}

func TestStreamDispatched(t *testing.T) {
	handler := &recordingHandler{reply: []byte("pong")}
	fio := &fakeIO{}

	d := newDispatcher(2, 4)
	defer d.Stop()

	s := newStream(0, newSession(nil), handler, false, fio, DefaultMaxMessageSize)
	s.dispatch = d.Submit
	s.run(&chunkReader{chunks: [][]byte{[]byte("ping")}, err: io.EOF})

	if len(fio.replies) != 1 || string(fio.replies[0]) != "pong" {
		t.Fatalf("Stream replied %q", fio.replies)
	}
}
