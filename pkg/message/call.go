// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// Conn is the sending side of a socket, e.g., a *client.Client.
type Conn interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
	Push(ctx context.Context, payload []byte) error
}

// Call sends a request Envelope and decodes its reply. A ContentError reply
// is returned as a *RemoteError.
func Call(ctx context.Context, conn Conn, env Envelope) (Envelope, error) {
	data, err := Marshal(env)
	if err != nil {
		return Envelope{}, err
	}

	replyData, err := conn.Request(ctx, data)
	if err != nil {
		return Envelope{}, err
	}

	reply, err := Unmarshal(replyData)
	if err != nil {
		return Envelope{}, err
	}
	if reply.Body, err = reply.Payload(DefaultMaxBodySize); err != nil {
		return Envelope{}, err
	}
	reply.Flags &^= FlagXZ

	return reply, reply.Err()
}

// Send pushes an Envelope.
func Send(ctx context.Context, conn Conn, env Envelope) error {
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	return conn.Push(ctx, data)
}

// Ping the peer's Router and measure the round trip.
func Ping(ctx context.Context, conn Conn) (time.Duration, error) {
	nonce := []byte(time.Now().Format(time.RFC3339Nano))

	start := time.Now()
	reply, err := Call(ctx, conn, NewEnvelope(DomainControl, ContentPing, nonce))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if reply.Domain != DomainControl || reply.ContentType != ContentPing || !bytes.Equal(reply.Body, nonce) {
		return 0, fmt.Errorf("unexpected ping reply %v", reply)
	}
	return rtt, nil
}
