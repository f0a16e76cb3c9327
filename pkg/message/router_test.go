// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dtn7/quicsock/pkg/socket"
)

// loopConn hands messages directly to a Router.
type loopConn struct {
	router *Router
}

func (lc loopConn) Request(_ context.Context, payload []byte) ([]byte, error) {
	return lc.router.OnRequest(nil, payload), nil
}

func (lc loopConn) Push(_ context.Context, payload []byte) error {
	lc.router.OnReceive(nil, payload)
	return nil
}

func newEchoRouter(pushed *[][]byte) *Router {
	router := NewRouter()
	router.HandleRequest(1, 1, func(_ *socket.Session, env Envelope) (Envelope, error) {
		return NewEnvelope(env.Domain, env.ContentType, env.Body), nil
	})
	router.HandleRequest(1, 2, func(*socket.Session, Envelope) (Envelope, error) {
		return Envelope{}, errors.New("failed on purpose")
	})
	router.HandlePush(1, 3, func(_ *socket.Session, env Envelope) error {
		*pushed = append(*pushed, env.Body)
		return nil
	})
	return router
}

func TestRouterRequest(t *testing.T) {
	router := newEchoRouter(nil)
	conn := loopConn{router}

	reply, err := Call(context.Background(), conn, NewEnvelope(1, 1, []byte("hello")))
	if err != nil {
		t.Fatal(err)
	}
	if string(reply.Body) != "hello" || reply.Domain != 1 || reply.ContentType != 1 {
		t.Fatalf("Unexpected reply %v", reply)
	}
}

func TestRouterCompressedRequest(t *testing.T) {
	router := newEchoRouter(nil)
	conn := loopConn{router}

	body := bytes.Repeat([]byte("abc"), 2000)
	env := NewEnvelope(1, 1, body)
	if err := env.Compress(); err != nil {
		t.Fatal(err)
	}

	reply, err := Call(context.Background(), conn, env)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reply.Body, body) {
		t.Fatalf("Compressed request was not decompressed before routing")
	}

	router.SetMaxBodySize(len(body) - 1)
	if _, err := Call(context.Background(), conn, env); err == nil {
		t.Fatalf("Oversized decompressed body was accepted")
	}
}

func TestRouterRequestErrors(t *testing.T) {
	router := newEchoRouter(nil)
	conn := loopConn{router}

	tests := []struct {
		name string
		env  Envelope
	}{
		{"unknown domain", NewEnvelope(7, 1, nil)},
		{"unknown content type", NewEnvelope(1, 9, nil)},
		{"push route", NewEnvelope(1, 3, nil)},
		{"failing function", NewEnvelope(1, 2, nil)},
	}

	for _, test := range tests {
		var remoteErr *RemoteError
		if _, err := Call(context.Background(), conn, test.env); !errors.As(err, &remoteErr) {
			t.Fatalf("%s: expected RemoteError, got %v", test.name, err)
		}
	}

	reply, err := Unmarshal(router.OnRequest(nil, []byte("garbage")))
	if err != nil {
		t.Fatal(err)
	}
	if !reply.IsError() {
		t.Fatalf("Malformed request got reply %v", reply)
	}
}

func TestRouterPush(t *testing.T) {
	var pushed [][]byte
	router := newEchoRouter(&pushed)
	conn := loopConn{router}

	if err := Send(context.Background(), conn, NewEnvelope(1, 3, []byte("event-x"))); err != nil {
		t.Fatal(err)
	}
	// Neither of these may reach the push function.
	_ = Send(context.Background(), conn, NewEnvelope(1, 1, []byte("request route")))
	_ = conn.Push(context.Background(), []byte("garbage"))

	if len(pushed) != 1 || string(pushed[0]) != "event-x" {
		t.Fatalf("Push function received %q", pushed)
	}
}

func TestRouterConnect(t *testing.T) {
	router := NewRouter()
	router.OnConnect(nil, true)

	var events []bool
	router.OnConnectFunc(func(_ *socket.Session, connected bool) {
		events = append(events, connected)
	})
	router.OnConnect(nil, true)
	router.OnConnect(nil, false)

	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("Unexpected connect events %v", events)
	}
}

func TestRouterPing(t *testing.T) {
	conn := loopConn{NewRouter()}

	if rtt, err := Ping(context.Background(), conn); err != nil {
		t.Fatal(err)
	} else if rtt < 0 {
		t.Fatalf("Negative round trip time %v", rtt)
	}
}
