// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/ulikunitz/xz"
)

// Domain groups the content types of one application.
type Domain uint64

// ContentType identifies the kind of message within a Domain.
type ContentType uint64

// ContentError is reserved in every Domain for error replies. Its body is a
// human readable message.
const ContentError ContentType = 0

// DomainControl is handled by every Router itself.
const DomainControl Domain = 0

// ContentPing requests are answered with their own body.
const ContentPing ContentType = 1

// Flags modify how an Envelope's body is to be read.
type Flags uint64

const (
	// FlagXZ marks an xz compressed body.
	FlagXZ Flags = 1 << iota
)

// DefaultMaxBodySize bounds a decompressed body.
const DefaultMaxBodySize = 1 << 20

// maxWireBodySize bounds the body of an Envelope read from a stream.
const maxWireBodySize = 16 << 20

// ErrBodyTooLarge is returned if a decompressed body exceeds its limit.
var ErrBodyTooLarge = errors.New("decompressed body exceeds limit")

// Envelope wraps every message exchanged over a socket. It is encoded as the
// CBOR array [domain, content type, flags, body].
type Envelope struct {
	Domain      Domain
	ContentType ContentType
	Flags       Flags
	Body        []byte
}

// NewEnvelope with an uncompressed body.
func NewEnvelope(domain Domain, contentType ContentType, body []byte) Envelope {
	return Envelope{
		Domain:      domain,
		ContentType: contentType,
		Body:        body,
	}
}

// ErrorEnvelope creates a ContentError reply for the given Domain.
func ErrorEnvelope(domain Domain, err error) Envelope {
	return NewEnvelope(domain, ContentError, []byte(err.Error()))
}

// MarshalCbor writes this Envelope's CBOR representation.
func (env *Envelope) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	fields := []uint64{uint64(env.Domain), uint64(env.ContentType), uint64(env.Flags)}
	for _, field := range fields {
		if err := cboring.WriteUInt(field, w); err != nil {
			return err
		}
	}

	return cboring.WriteByteString(env.Body, w)
}

// UnmarshalCbor reads an Envelope from its CBOR representation.
func (env *Envelope) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("wrong array length: %d instead of 4", l)
	}

	fields := []*uint64{(*uint64)(&env.Domain), (*uint64)(&env.ContentType), (*uint64)(&env.Flags)}
	for _, field := range fields {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*field = n
		}
	}

	n, err := cboring.ReadByteStringLen(r)
	if err != nil {
		return fmt.Errorf("unmarshalling body failed: %v", err)
	}
	// A length prefix must not claim more than is left to be read.
	if lr, ok := r.(interface{ Len() int }); ok && n > uint64(lr.Len()) {
		return fmt.Errorf("body length %d exceeds the %d remaining bytes", n, lr.Len())
	} else if n > maxWireBodySize {
		return fmt.Errorf("body length %d exceeds %d", n, maxWireBodySize)
	}

	env.Body = make([]byte, n)
	if _, err := io.ReadFull(r, env.Body); err != nil {
		return fmt.Errorf("reading body failed: %v", err)
	}

	return nil
}

// Marshal an Envelope into its CBOR byte string.
func Marshal(env Envelope) ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(&env, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// Unmarshal an Envelope from a received message. Trailing data is an error.
func Unmarshal(data []byte) (env Envelope, err error) {
	if len(data) == 0 {
		err = fmt.Errorf("empty message")
		return
	}

	buff := bytes.NewReader(data)
	if err = cboring.Unmarshal(&env, buff); err != nil {
		return
	}
	if buff.Len() != 0 {
		err = fmt.Errorf("%d trailing bytes after envelope", buff.Len())
	}
	return
}

// String describes the Envelope without its body.
func (env Envelope) String() string {
	return fmt.Sprintf("Envelope(%d,%d,%#x,%d bytes)", env.Domain, env.ContentType, env.Flags, len(env.Body))
}

// IsError reports whether this is a ContentError reply.
func (env Envelope) IsError() bool {
	return env.ContentType == ContentError
}

// Err returns the error carried by a ContentError reply, nil otherwise.
func (env Envelope) Err() error {
	if !env.IsError() {
		return nil
	}
	return &RemoteError{Domain: env.Domain, Msg: string(env.Body)}
}

// Compress the body with xz, unless it already is.
func (env *Envelope) Compress() error {
	if env.Flags&FlagXZ != 0 {
		return nil
	}

	var buff bytes.Buffer
	if xzW, err := xz.NewWriter(&buff); err != nil {
		return err
	} else if _, err := xzW.Write(env.Body); err != nil {
		return err
	} else if err := xzW.Close(); err != nil {
		return err
	}

	env.Body = buff.Bytes()
	env.Flags |= FlagXZ
	return nil
}

// Payload returns the plain body, decompressing it if necessary. A
// decompressed body larger than limit bytes results in ErrBodyTooLarge.
func (env Envelope) Payload(limit int) ([]byte, error) {
	if env.Flags&FlagXZ == 0 {
		return env.Body, nil
	}

	xzR, err := xz.NewReader(bytes.NewReader(env.Body))
	if err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(io.LimitReader(xzR, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > limit {
		return nil, ErrBodyTooLarge
	}
	return payload, nil
}

// RemoteError is an error reported by the peer through a ContentError reply.
type RemoteError struct {
	Domain Domain
	Msg    string
}

func (err *RemoteError) Error() string {
	return fmt.Sprintf("remote error in domain %d: %s", err.Domain, err.Msg)
}
