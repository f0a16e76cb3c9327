// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"
)

const (
	// NoError closes a connection without any fault, e.g., an idle peer.
	NoError quic.ApplicationErrorCode = 0
	// UnknownError is the catchall code for things nobody anticipated.
	UnknownError quic.ApplicationErrorCode = 1
	// ApplicationShutdown is sent when the listener is closed and terminates its connections.
	ApplicationShutdown quic.ApplicationErrorCode = 2
	// SessionClosed is sent when a single session was closed locally, e.g., through the admin API.
	SessionClosed quic.ApplicationErrorCode = 3
)

const (
	// StreamOverflowCode aborts a stream whose peer sent more than the configured maximum.
	StreamOverflowCode quic.StreamErrorCode = 1
	// StreamPeerAbortCode answers a peer which aborted its sending side.
	StreamPeerAbortCode quic.StreamErrorCode = 2
	// StreamBusyCode is used if the dispatcher rejected the handler call.
	StreamBusyCode quic.StreamErrorCode = 3
	// StreamInternalCode is used if the handler failed, e.g., by panicking.
	StreamInternalCode quic.StreamErrorCode = 4
	// StreamTransmissionCode is used if writing the reply failed.
	StreamTransmissionCode quic.StreamErrorCode = 5
)

var (
	// ErrStreamOverflow is returned when a stream's buffer would exceed its maximum size.
	ErrStreamOverflow = errors.New("stream buffer exceeds maximum size")

	// ErrPeerAbort signals that the peer aborted its sending side of a stream.
	ErrPeerAbort = errors.New("peer aborted the stream")

	// ErrDispatcherBusy is returned if the dispatcher's queue is full.
	ErrDispatcherBusy = errors.New("dispatcher queue is full")

	// ErrDispatcherStopped is returned when submitting to a stopped dispatcher.
	ErrDispatcherStopped = errors.New("dispatcher is stopped")

	// ErrContextReleased is returned when a released Context is used.
	ErrContextReleased = errors.New("transport context was released")
)

// CredentialLoadError is returned by Bind if the TLS credentials cannot be loaded.
type CredentialLoadError struct {
	CertFile string
	KeyFile  string
	Cause    error
}

func (err *CredentialLoadError) Error() string {
	return fmt.Sprintf("loading credentials %s / %s failed: %v", err.CertFile, err.KeyFile, err.Cause)
}

func (err *CredentialLoadError) Unwrap() error {
	return err.Cause
}

// ListenerStartError is returned by Bind if the listener could not be constructed.
type ListenerStartError struct {
	Msg   string
	Cause error
}

func (err *ListenerStartError) Error() string {
	if err.Cause == nil {
		return fmt.Sprintf("listener not started: %s", err.Msg)
	}
	return fmt.Sprintf("listener not started: %s: %v", err.Msg, err.Cause)
}

func (err *ListenerStartError) Unwrap() error {
	return err.Cause
}

// PortBindError is returned by Bind if the listener could not start accepting on its address.
type PortBindError struct {
	Address string
	Cause   error
}

func (err *PortBindError) Error() string {
	return fmt.Sprintf("opening %s failed: %v", err.Address, err.Cause)
}

func (err *PortBindError) Unwrap() error {
	return err.Cause
}
