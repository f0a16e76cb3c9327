// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()

	if err := conf.Validate(); err != nil {
		t.Fatalf("Default configuration is invalid: %v", err)
	}

	qconf := conf.QUICConfig()
	if qconf.MaxIdleTimeout != 180*time.Second {
		t.Fatalf("Idle timeout is %v", qconf.MaxIdleTimeout)
	}
	if qconf.MaxIncomingStreams != 8 || qconf.MaxIncomingUniStreams != 8 {
		t.Fatalf("Stream limits are %d/%d", qconf.MaxIncomingStreams, qconf.MaxIncomingUniStreams)
	}
	if !qconf.Allow0RTT {
		t.Fatal("0-RTT is disabled")
	}
	if conf.ALPN != "quic-socket" || conf.MaxMessageSize != 8192 {
		t.Fatalf("Unexpected defaults: %+v", conf)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"no alpn", func(c *Config) { c.ALPN = "" }, false},
		{"no idle timeout", func(c *Config) { c.IdleTimeout = 0 }, false},
		{"negative streams", func(c *Config) { c.MaxBidiStreams = -1 }, false},
		{"no streams", func(c *Config) { c.MaxBidiStreams, c.MaxUniStreams = 0, 0 }, false},
		{"push only", func(c *Config) { c.MaxBidiStreams = 0 }, true},
		{"no message size", func(c *Config) { c.MaxMessageSize = 0 }, false},
		{"no key", func(c *Config) { c.KeyFile = "" }, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := DefaultConfig()
			test.modify(&conf)

			if err := conf.Validate(); (err == nil) != test.valid {
				t.Fatalf("Validate returned %v, expected valid: %t", err, test.valid)
			}
		})
	}
}

func TestConfigDisabledStreamType(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxBidiStreams = 0

	if n := conf.QUICConfig().MaxIncomingStreams; n != -1 {
		t.Fatalf("Disabled bidirectional streams map to %d", n)
	}
}
