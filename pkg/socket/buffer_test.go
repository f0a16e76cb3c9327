// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"bytes"
	"errors"
	"testing"
)

func TestStreamBufferAppend(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		chunks  [][]byte
		wantLen int
		wantErr bool
	}{
		{"empty", 8, nil, 0, false},
		{"single", 8, [][]byte{[]byte("ping")}, 4, false},
		{"exactly max", 8, [][]byte{[]byte("ping"), []byte("pong")}, 8, false},
		{"overflow", 8, [][]byte{[]byte("ping"), []byte("pong!")}, 4, true},
		{"overflow first", 2, [][]byte{[]byte("abc")}, 0, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buff := newStreamBuffer(test.max)

			var err error
			for _, chunk := range test.chunks {
				if err = buff.Append(chunk); err != nil {
					break
				}
			}

			if (err != nil) != test.wantErr {
				t.Fatalf("Append errored with %v, expected error: %t", err, test.wantErr)
			}
			if err != nil && !errors.Is(err, ErrStreamOverflow) {
				t.Fatalf("Append errored with %v instead of ErrStreamOverflow", err)
			}
			if l := buff.Len(); l != test.wantLen {
				t.Fatalf("Buffer has length %d, expected %d", l, test.wantLen)
			}
		})
	}
}

func TestStreamBufferRelease(t *testing.T) {
	buff := newStreamBuffer(16)
	if err := buff.Append([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buff.Bytes(), []byte("hello")) {
		t.Fatalf("Buffer contains %q", buff.Bytes())
	}

	buff.Release()
	if buff.Len() != 0 || buff.Bytes() != nil {
		t.Fatalf("Buffer was not released: %q", buff.Bytes())
	}
}
