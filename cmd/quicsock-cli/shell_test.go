// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dtn7/quicsock/pkg/kvstore"
	"github.com/dtn7/quicsock/pkg/message"
)

// routerConn hands messages directly to a message.Router.
type routerConn struct {
	router *message.Router
}

func (rc routerConn) Request(_ context.Context, payload []byte) ([]byte, error) {
	return rc.router.OnRequest(nil, payload), nil
}

func (rc routerConn) Push(_ context.Context, payload []byte) error {
	rc.router.OnReceive(nil, payload)
	return nil
}

func newTestShell() *shell {
	router := message.NewRouter()
	kvstore.NewService(kvstore.NewMemoryStore()).Register(router)
	return newShell(routerConn{router})
}

func TestShellCommands(t *testing.T) {
	sh := newTestShell()
	ctx := context.Background()

	tests := []struct {
		line string
		out  string
	}{
		{"", ""},
		{"get foo", "(not found)"},
		{"set foo bar", "OK"},
		{"get foo", "bar"},
		{"  set   s   hello  world ", "OK"},
		{"get s", "hello  world"},
		{"del foo", "OK"},
		{"get foo", "(not found)"},
	}

	for _, test := range tests {
		out, err := sh.execute(ctx, test.line)
		if err != nil {
			t.Fatalf("%q errored: %v", test.line, err)
		}
		if out != test.out {
			t.Fatalf("%q returned %q, expected %q", test.line, out, test.out)
		}
	}
}

func TestShellPingAndHelp(t *testing.T) {
	sh := newTestShell()
	ctx := context.Background()

	if out, err := sh.execute(ctx, "ping"); err != nil || !strings.HasPrefix(out, "pong after") {
		t.Fatalf("ping returned %q, %v", out, err)
	}
	if out, err := sh.execute(ctx, "help"); err != nil || out != helpText {
		t.Fatalf("help returned %q, %v", out, err)
	}
	if _, err := sh.execute(ctx, "exit"); !errors.Is(err, errExit) {
		t.Fatalf("exit returned %v", err)
	}
}

func TestShellInvalidCommands(t *testing.T) {
	sh := newTestShell()

	for _, line := range []string{"get", "get a b", "set a", "del", "frobnicate"} {
		if _, err := sh.execute(context.Background(), line); err == nil {
			t.Fatalf("%q did not error", line)
		}
	}
}
