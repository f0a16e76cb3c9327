// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

// streamBuffer accumulates the bytes a peer sent on one stream. It is owned
// by exactly one stream and never shared.
type streamBuffer struct {
	data []byte
	max  int
}

func newStreamBuffer(max int) *streamBuffer {
	return &streamBuffer{max: max}
}

// Append p or fail with ErrStreamOverflow, leaving the buffer untouched.
func (buff *streamBuffer) Append(p []byte) error {
	if len(buff.data)+len(p) > buff.max {
		return ErrStreamOverflow
	}

	buff.data = append(buff.data, p...)
	return nil
}

// Bytes returns the accumulated data; it is valid until Release.
func (buff *streamBuffer) Bytes() []byte {
	return buff.data
}

func (buff *streamBuffer) Len() int {
	return len(buff.data)
}

// Release the buffered data.
func (buff *streamBuffer) Release() {
	buff.data = nil
}
