// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"reflect"
	"strings"
	"testing"

	"github.com/schollz/peerdiscovery"
)

func TestAnnouncementCbor(t *testing.T) {
	var tests = [][]Announcement{
		{},
		{{ALPN: "quic-socket", Port: 4433}},
		{{ALPN: "quic-socket", Port: 1}, {ALPN: "other", Port: 65535}},
	}

	for _, dmsIn := range tests {
		buff, err := MarshalAnnouncements(dmsIn)
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		dmsOut, err := UnmarshalAnnouncements(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if len(dmsIn) != len(dmsOut) {
			t.Fatalf("Length of decoded Announcements is %d != %d", len(dmsOut), len(dmsIn))
		}
		for i := range dmsIn {
			if !reflect.DeepEqual(dmsIn[i], dmsOut[i]) {
				t.Fatalf("Decoded Announcement differs: %v became %v", dmsIn[i], dmsOut[i])
			}
		}
	}
}

func TestAnnouncementInvalid(t *testing.T) {
	if _, err := MarshalAnnouncements([]Announcement{{ALPN: strings.Repeat("a", 256), Port: 1}}); err == nil {
		t.Fatalf("Overlong ALPN was marshalled")
	}

	tests := map[string][]byte{
		"empty":         {},
		"no array":      {0x01},
		"huge array":    {0x9a, 0xff, 0xff, 0xff, 0xff},
		"port zero":     {0x81, 0x82, 0x41, 0x61, 0x00},
		"port too high": {0x81, 0x82, 0x41, 0x61, 0x1a, 0x00, 0x01, 0x00, 0x00},
		"truncated":     {0x81, 0x82, 0x45, 0x61},
	}

	for name, data := range tests {
		if _, err := UnmarshalAnnouncements(data); err == nil {
			t.Fatalf("Decoding %s message did not fail", name)
		}
	}
}

func TestParseDiscovered(t *testing.T) {
	payload, err := MarshalAnnouncements([]Announcement{{ALPN: "quic-socket", Port: 4433}})
	if err != nil {
		t.Fatal(err)
	}

	for address, expected := range map[string]string{
		"192.168.1.2": "192.168.1.2:4433",
		"fe80::1":     "[fe80::1]:4433",
	} {
		peers, err := parseDiscovered(peerdiscovery.Discovered{Address: address, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 1 {
			t.Fatalf("Parsed %d peers instead of 1", len(peers))
		}
		if addr := peers[0].Addr(); addr != expected {
			t.Fatalf("Peer address is %s instead of %s", addr, expected)
		}
	}
}

func TestNewManagerNeedsIPVersion(t *testing.T) {
	if _, err := NewManager(nil, nil, 0, false, false); err == nil {
		t.Fatalf("Manager without IP version was created")
	}
}
