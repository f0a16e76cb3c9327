// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// maxALPNLength is the longest ALPN allowed by TLS.
const maxALPNLength = 255

// Announcement of some node's listener.
type Announcement struct {
	ALPN string
	Port uint
}

// UnmarshalAnnouncements creates a new array of Announcement based on a CBOR byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	l, err := cboring.ReadArrayLength(buff)
	if err != nil {
		return
	} else if l > uint64(buff.Len()) {
		err = fmt.Errorf("array length %d exceeds message", l)
		return
	}
	announcements = make([]Announcement, l)

	for i := 0; i < len(announcements); i++ {
		if cErr := cboring.Unmarshal(&announcements[i], buff); cErr != nil {
			err = fmt.Errorf("unmarshalling Announcement %d failed: %v", i, cErr)
			return
		}
	}

	return
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) (data []byte, err error) {
	buff := new(bytes.Buffer)

	if cErr := cboring.WriteArrayLength(uint64(len(announcements)), buff); cErr != nil {
		err = cErr
		return
	}

	for i := range announcements {
		announcement := announcements[i]
		if cErr := cboring.Marshal(&announcement, buff); cErr != nil {
			err = fmt.Errorf("marshalling Announcement %d (%v) failed: %v", i, announcement, cErr)
			return
		}
	}

	data = buff.Bytes()
	return
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (announcement *Announcement) MarshalCbor(w io.Writer) error {
	if len(announcement.ALPN) > maxALPNLength {
		return fmt.Errorf("ALPN of %d bytes is too long", len(announcement.ALPN))
	}

	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteByteString([]byte(announcement.ALPN), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(announcement.Port), w); err != nil {
		return err
	}

	return nil
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (announcement *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("wrong array length: %d instead of 2", l)
	}

	if n, err := cboring.ReadByteStringLen(r); err != nil {
		return err
	} else if n > maxALPNLength {
		return fmt.Errorf("ALPN of %d bytes is too long", n)
	} else {
		alpn := make([]byte, n)
		if _, err := io.ReadFull(r, alpn); err != nil {
			return err
		}
		announcement.ALPN = string(alpn)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if n == 0 || n > 65535 {
		return fmt.Errorf("invalid port %d", n)
	} else {
		announcement.Port = uint(n)
	}

	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%s,%d)", announcement.ALPN, announcement.Port)
}
