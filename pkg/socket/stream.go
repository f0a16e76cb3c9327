// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// readChunkSize is the size of a single read from a QUIC stream.
const readChunkSize = 4096

// streamState is a stream's position in its lifecycle.
type streamState uint

const (
	streamOpen streamState = iota
	streamReceiving
	streamDispatching
	streamCompleted
	streamAborted
	streamClosed
)

func (state streamState) String() string {
	switch state {
	case streamOpen:
		return "open"
	case streamReceiving:
		return "receiving"
	case streamDispatching:
		return "dispatching"
	case streamCompleted:
		return "completed"
	case streamAborted:
		return "aborted"
	case streamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// streamIO is the transport side of a stream, as used by the state machine.
type streamIO interface {
	// Respond writes the reply and closes the local sending side.
	Respond(reply []byte) error
	// Finish closes the local side gracefully.
	Finish() error
	// Abort the stream abruptly in every direction still open.
	Abort(code quic.StreamErrorCode)
}

// bidiIO adapts a bidirectional quic.Stream.
type bidiIO struct {
	stream quic.Stream
}

func (bio bidiIO) Respond(reply []byte) error {
	if _, err := bio.stream.Write(reply); err != nil {
		return err
	}
	return bio.stream.Close()
}

func (bio bidiIO) Finish() error {
	return bio.stream.Close()
}

func (bio bidiIO) Abort(code quic.StreamErrorCode) {
	bio.stream.CancelRead(code)
	bio.stream.CancelWrite(code)
}

// uniIO adapts a unidirectional quic.ReceiveStream, which has no sending side.
type uniIO struct {
	stream quic.ReceiveStream
}

func (uio uniIO) Respond(_ []byte) error {
	return fmt.Errorf("unidirectional stream %d cannot be written", uio.stream.StreamID())
}

func (uio uniIO) Finish() error {
	return nil
}

func (uio uniIO) Abort(code quic.StreamErrorCode) {
	uio.stream.CancelRead(code)
}

// dispatchResult is the outcome of one handler invocation.
type dispatchResult struct {
	reply   []byte
	skipped bool
	err     error
}

// stream is the state machine of a single peer-initiated stream. All of its
// events are delivered sequentially by the goroutine running it.
type stream struct {
	id             quic.StreamID
	session        *Session
	handler        Handler
	unidirectional bool

	io     streamIO
	buffer *streamBuffer
	reply  []byte
	state  streamState

	// dispatch hands a handler call to a worker; nil calls it directly.
	dispatch func(job) error
	// alive reports whether callbacks may still be delivered for the session.
	alive func() bool
}

func newStream(id quic.StreamID, session *Session, handler Handler, unidirectional bool, sio streamIO, maxSize int) *stream {
	return &stream{
		id:             id,
		session:        session,
		handler:        handler,
		unidirectional: unidirectional,
		io:             sio,
		buffer:         newStreamBuffer(maxSize),
		state:          streamOpen,
		alive:          func() bool { return true },
	}
}

func (s *stream) String() string {
	direction := "bidi"
	if s.unidirectional {
		direction = "uni"
	}
	return fmt.Sprintf("Stream{%d, %s, %v}", s.id, direction, s.session)
}

// run reads from r until the peer finished or aborted the stream and drives
// the state machine accordingly.
func (s *stream) run(r io.Reader) {
	defer s.onShutdownComplete()

	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 && !s.onReceive(chunk[:n]) {
			return
		}

		if err == nil {
			continue
		}

		var streamErr *quic.StreamError
		switch {
		case errors.Is(err, io.EOF):
			s.onPeerSendShutdown()

		case errors.As(err, &streamErr) && streamErr.Remote:
			s.onPeerSendAborted(streamErr.ErrorCode)

		default:
			log.WithFields(log.Fields{
				"stream": s,
				"error":  err,
			}).Debug("Stream failed while receiving")
			s.abort(StreamPeerAbortCode)
		}
		return
	}
}

// onReceive appends data to the buffer. If the buffer would overflow, the
// stream is aborted and false is returned.
func (s *stream) onReceive(data []byte) bool {
	if s.state != streamOpen && s.state != streamReceiving {
		return false
	}
	s.state = streamReceiving

	if err := s.buffer.Append(data); err != nil {
		log.WithFields(log.Fields{
			"stream":   s,
			"buffered": s.buffer.Len(),
			"received": len(data),
			"maximum":  s.buffer.max,
		}).Warn("Stream exceeded its maximum size, aborting")

		s.abort(StreamOverflowCode)
		return false
	}
	return true
}

// onPeerSendShutdown dispatches the complete message to the handler.
func (s *stream) onPeerSendShutdown() {
	if s.state != streamOpen && s.state != streamReceiving {
		return
	}
	s.state = streamDispatching

	log.WithFields(log.Fields{
		"stream": s,
		"size":   s.buffer.Len(),
	}).Debug("Peer finished sending, dispatching message")

	res := s.dispatchHandler()
	switch {
	case res.skipped:
		s.abort(StreamInternalCode)
		return

	case errors.Is(res.err, ErrDispatcherBusy), errors.Is(res.err, ErrDispatcherStopped):
		log.WithFields(log.Fields{
			"stream": s,
			"error":  res.err,
		}).Warn("Dispatcher rejected message, aborting stream")
		s.abort(StreamBusyCode)
		return

	case res.err != nil:
		s.abort(StreamInternalCode)
		return
	}

	if s.unidirectional {
		if err := s.io.Finish(); err != nil {
			log.WithFields(log.Fields{
				"stream": s,
				"error":  err,
			}).Debug("Closing pushed stream errored")
		}
		s.state = streamCompleted
		return
	}

	s.reply = res.reply
	if err := s.io.Respond(s.reply); err != nil {
		log.WithFields(log.Fields{
			"stream": s,
			"error":  err,
		}).Warn("Sending reply failed")
		s.abort(StreamTransmissionCode)
		return
	}
	s.onSendComplete()
}

// onPeerSendAborted aborts this stream without calling any handler.
func (s *stream) onPeerSendAborted(code quic.StreamErrorCode) {
	log.WithFields(log.Fields{
		"stream": s,
		"code":   code,
	}).Debug("Peer aborted stream")

	s.abort(StreamPeerAbortCode)
}

// onSendComplete drops the reply which was sent.
func (s *stream) onSendComplete() {
	s.reply = nil
	s.state = streamCompleted
}

// onShutdownComplete drops the receive buffer.
func (s *stream) onShutdownComplete() {
	s.buffer.Release()
	s.reply = nil

	log.WithFields(log.Fields{
		"stream": s,
		"state":  s.state,
	}).Debug("Stream shut down")
	s.state = streamClosed
}

func (s *stream) abort(code quic.StreamErrorCode) {
	if s.state == streamAborted || s.state == streamClosed {
		return
	}

	s.io.Abort(code)
	s.state = streamAborted
	s.session.aborts.Add(1)
}

// dispatchHandler runs the handler, through the dispatcher if one is set,
// and waits for its result.
func (s *stream) dispatchHandler() dispatchResult {
	if s.dispatch == nil {
		return s.invoke()
	}

	done := make(chan dispatchResult, 1)
	err := s.dispatch(func() {
		if !s.alive() {
			done <- dispatchResult{skipped: true}
			return
		}
		done <- s.invoke()
	})
	if err != nil {
		return dispatchResult{err: err}
	}
	return <-done
}

// invoke calls the matching handler and recovers from its panics.
func (s *stream) invoke() (res dispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"stream": s,
				"panic":  r,
			}).Error("Handler panicked")
			res = dispatchResult{err: fmt.Errorf("handler panicked: %v", r)}
		}
	}()

	message := s.buffer.Bytes()
	if s.unidirectional {
		s.session.pushes.Add(1)
		s.handler.OnReceive(s.session, message)
		return
	}

	s.session.requests.Add(1)
	res.reply = s.handler.OnRequest(s.session, message)
	return
}
