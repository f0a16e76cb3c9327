// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package socket implements a message exchange layer on top of QUIC.

QUIC already brings everything a message transport needs: a TLS 1.3
handshake, congestion control, loss recovery and, most importantly, cheap
multiplexed streams. This package only adds the glue between those streams and
the application.


Messaging patterns

A single stream always carries exactly one message per direction. There is no
length prefix or framing; a message ends when its sender closes the sending
side of the stream.

A bidirectional stream is a request. Once the peer finished sending, the
Handler's OnRequest is called with the received bytes and its return value is
sent back on the same stream, which is closed afterwards.

A unidirectional stream is a push. Once the peer finished sending, the
Handler's OnReceive is called. Nothing is sent back.

Every stream buffers at most Config.MaxMessageSize bytes (8192 by default).
A peer sending more gets its stream aborted with StreamOverflowCode and no
handler is called. Peer aborts are answered in kind. Neither affects the
connection or its other streams.


Lifecycle

An Engine is created once per process and owns the worker pool executing the
handlers. Contexts are acquired from the Engine; the first acquisition starts
the pool and releasing the last Context stops it. Bind creates a Listener for a
Context.

For each connection, OnConnect(session, true) is called after the handshake and
before any of its streams is handled. OnConnect(session, false) is called after
the connection was closed, e.g., by the peer or after the idle timeout, and
after every handler call for its streams returned.

Handlers are executed by the Engine's workers. If every worker is busy and the
queue of waiting calls is full, new messages are rejected by aborting their
stream with StreamBusyCode instead of stalling the connection.
*/
package socket
