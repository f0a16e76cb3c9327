// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

// Handler is the set of callbacks a Listener drives.
//
// OnConnect is called with true once a connection's handshake completed and,
// eventually, with false after the connection was closed. No other callback
// for that Session happens before the first or after the second call.
//
// OnRequest is called for every bidirectional stream once the peer finished
// sending. The returned bytes are sent back as the reply on the same stream.
//
// OnReceive is called for every unidirectional stream once the peer finished
// sending. Nothing is sent back.
//
// Callbacks for different streams may run concurrently. The message slices
// must not be retained after the callback returns.
type Handler interface {
	OnConnect(session *Session, connected bool)
	OnRequest(session *Session, request []byte) []byte
	OnReceive(session *Session, message []byte)
}

// HandlerFuncs implements Handler with optional functions. A nil function
// ignores the event; a nil Request function replies with an empty message.
type HandlerFuncs struct {
	Connect func(session *Session, connected bool)
	Request func(session *Session, request []byte) []byte
	Receive func(session *Session, message []byte)
}

func (h HandlerFuncs) OnConnect(session *Session, connected bool) {
	if h.Connect != nil {
		h.Connect(session, connected)
	}
}

func (h HandlerFuncs) OnRequest(session *Session, request []byte) []byte {
	if h.Request != nil {
		return h.Request(session, request)
	}
	return nil
}

func (h HandlerFuncs) OnReceive(session *Session, message []byte) {
	if h.Receive != nil {
		h.Receive(session, message)
	}
}
