// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtn7/quicsock/pkg/socket"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestParseConfigExample(t *testing.T) {
	conf, err := parseConfig(filepath.Join("data", "config.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if conf.socket.IdleTimeout != 180*time.Second {
		t.Fatalf("Idle timeout is %v", conf.socket.IdleTimeout)
	}
	if conf.socket.MaxMessageSize != socket.DefaultMaxMessageSize {
		t.Fatalf("Maximum message size is %d", conf.socket.MaxMessageSize)
	}
	if conf.storeBackend != "memory" || conf.adminListen != "127.0.0.1:8080" {
		t.Fatalf("Unexpected configuration %+v", conf)
	}
	if !conf.generateCredentials {
		t.Fatalf("Credential generation is disabled")
	}
}

func TestParseConfigMissing(t *testing.T) {
	conf, err := parseConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if conf.socket != socket.DefaultConfig() {
		t.Fatalf("Missing file does not result in defaults: %+v", conf.socket)
	}
	if conf.storeBackend != "memory" || conf.discovery.Interval != 10 {
		t.Fatalf("Unexpected defaults %+v", conf)
	}
}

func TestParseConfigYAML(t *testing.T) {
	filename := writeConfig(t, "config.yaml", `
socket:
  idle-timeout: 5s
  max-uni-streams: 0
  allow-0rtt: false
store:
  backend: badger
  path: /tmp/store
discovery:
  ipv4: true
  interval: 3
`)

	conf, err := parseConfig(filename)
	if err != nil {
		t.Fatal(err)
	}

	if conf.socket.IdleTimeout != 5*time.Second {
		t.Fatalf("Idle timeout is %v", conf.socket.IdleTimeout)
	}
	if conf.socket.MaxUniStreams != 0 || conf.socket.MaxBidiStreams != socket.DefaultStreamCount {
		t.Fatalf("Stream limits are %d/%d", conf.socket.MaxBidiStreams, conf.socket.MaxUniStreams)
	}
	if conf.socket.Allow0RTT {
		t.Fatalf("0-RTT was not disabled")
	}
	if conf.storeBackend != "badger" || conf.storePath != "/tmp/store" {
		t.Fatalf("Unexpected store %s at %s", conf.storeBackend, conf.storePath)
	}
	if !conf.discovery.IPv4 || conf.discovery.Interval != 3 {
		t.Fatalf("Unexpected discovery %+v", conf.discovery)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":          "[socket\n",
		"duration":        "[socket]\nidle-timeout = \"soon\"\n",
		"invalid socket":  "[socket]\nmax-message-size = -1\n",
		"no streams":      "[socket]\nmax-bidi-streams = 0\nmax-uni-streams = 0\n",
		"unknown backend": "[store]\nbackend = \"floppy\"\n",
		"badger no path":  "[store]\nbackend = \"badger\"\n",
	}

	for name, content := range tests {
		if _, err := parseConfig(writeConfig(t, "config.toml", content)); err == nil {
			t.Fatalf("Configuration %q was accepted", name)
		}
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		arg   string
		port  uint16
		valid bool
	}{
		{"4433", 4433, true},
		{"0", 0, true},
		{"65535", 65535, true},
		{"65536", 0, false},
		{"-1", 0, false},
		{"port", 0, false},
		{"", 0, false},
	}

	for _, test := range tests {
		port, err := parsePort(test.arg)
		if (err == nil) != test.valid {
			t.Fatalf("Port %q: unexpected error state %v", test.arg, err)
		}
		if test.valid && port != test.port {
			t.Fatalf("Port %q parsed as %d", test.arg, port)
		}
	}
}

func TestStartDaemon(t *testing.T) {
	dir := t.TempDir()
	filename := writeConfig(t, "config.toml", `
[socket]
cert-file = "`+filepath.Join(dir, "server.cert")+`"
key-file = "`+filepath.Join(dir, "server.key")+`"
generate-credentials = true

[store]
backend = "badger"
path = "`+filepath.Join(dir, "store")+`"

[admin]
listen = "127.0.0.1:0"
`)

	conf, err := parseConfig(filename)
	if err != nil {
		t.Fatal(err)
	}

	d, err := startDaemon(conf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.listener.Port() == 0 {
		t.Fatalf("Listener has no port")
	}
	if err := d.close(); err != nil {
		t.Fatal(err)
	}
}
