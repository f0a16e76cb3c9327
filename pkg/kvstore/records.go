// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvstore

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dtn7/quicsock/pkg/message"
)

// Domain of the key/value messages.
const Domain message.Domain = 1

const (
	// ContentGet is a request for a GetRequest, answered by a GetReply.
	ContentGet message.ContentType = 1
	// ContentSet is a pushed SetRequest.
	ContentSet message.ContentType = 2
	// ContentDelete is a pushed DeleteRequest.
	ContentDelete message.ContentType = 3
)

// ErrEmptyKey is returned for records without a key.
var ErrEmptyKey = errors.New("key is empty")

// GetRequest asks for a key's value.
type GetRequest struct {
	Key string `cbor:"1,keyasint"`
}

// GetReply answers a GetRequest. Value is only set if Found.
type GetReply struct {
	Key   string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint,omitempty"`
	Found bool   `cbor:"3,keyasint"`
}

// SetRequest stores a value under a key.
type SetRequest struct {
	Key   string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// DeleteRequest removes a key.
type DeleteRequest struct {
	Key string `cbor:"1,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 4,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// encodeRecord into an Envelope of the given content type.
func encodeRecord(contentType message.ContentType, record interface{}) (message.Envelope, error) {
	body, err := encMode.Marshal(record)
	if err != nil {
		return message.Envelope{}, err
	}
	return message.NewEnvelope(Domain, contentType, body), nil
}

func decodeRecord(env message.Envelope, record interface{}) error {
	if err := decMode.Unmarshal(env.Body, record); err != nil {
		return fmt.Errorf("decoding %v failed: %w", env, err)
	}
	return nil
}
