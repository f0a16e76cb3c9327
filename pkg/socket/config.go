// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPN is the application protocol negotiated during the handshake.
	ALPN = "quic-socket"

	// DefaultIdleTimeout after which an inactive connection is closed.
	DefaultIdleTimeout = 180_000 * time.Millisecond

	// DefaultStreamCount limits the concurrent streams a peer may open, per direction.
	DefaultStreamCount = 8

	// DefaultMaxMessageSize is the largest message a stream may carry towards us.
	DefaultMaxMessageSize = 8192

	// DefaultCertFile and DefaultKeyFile are the server's credential paths.
	DefaultCertFile = "server.cert"
	DefaultKeyFile  = "server.key"

	// DefaultHandshakeTimeout bounds the TLS handshake of a new connection.
	DefaultHandshakeTimeout = 5 * time.Second
)

// Config holds the transport settings shared by every connection of a Context.
type Config struct {
	// ALPN is the application protocol identifier.
	ALPN string

	// IdleTimeout closes connections without activity.
	IdleTimeout time.Duration

	// HandshakeTimeout bounds the handshake of new connections.
	HandshakeTimeout time.Duration

	// KeepAlivePeriod sends keep-alive packets if non-zero. A server normally
	// leaves this zero, so that idle peers will be dropped.
	KeepAlivePeriod time.Duration

	// MaxBidiStreams and MaxUniStreams limit the peer-initiated streams.
	MaxBidiStreams int64
	MaxUniStreams  int64

	// Allow0RTT enables session resumption with early data.
	Allow0RTT bool

	// MaxMessageSize is the maximum number of bytes buffered per stream.
	MaxMessageSize int

	// CertFile and KeyFile point to the PEM encoded server credentials.
	CertFile string
	KeyFile  string

	// WatchCredentials reloads the certificate if one of the files changes.
	WatchCredentials bool

	// ReusePort sets SO_REUSEPORT on the listening socket, where supported.
	ReusePort bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ALPN:             ALPN,
		IdleTimeout:      DefaultIdleTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxBidiStreams:   DefaultStreamCount,
		MaxUniStreams:    DefaultStreamCount,
		Allow0RTT:        true,
		MaxMessageSize:   DefaultMaxMessageSize,
		CertFile:         DefaultCertFile,
		KeyFile:          DefaultKeyFile,
	}
}

// Validate checks the Config for unusable values.
func (conf Config) Validate() error {
	switch {
	case conf.ALPN == "":
		return fmt.Errorf("ALPN is empty")
	case conf.IdleTimeout <= 0:
		return fmt.Errorf("idle timeout %v is not positive", conf.IdleTimeout)
	case conf.HandshakeTimeout < 0:
		return fmt.Errorf("handshake timeout %v is negative", conf.HandshakeTimeout)
	case conf.MaxBidiStreams < 0 || conf.MaxUniStreams < 0:
		return fmt.Errorf("stream limits %d/%d must not be negative", conf.MaxBidiStreams, conf.MaxUniStreams)
	case conf.MaxBidiStreams == 0 && conf.MaxUniStreams == 0:
		return fmt.Errorf("neither bidirectional nor unidirectional streams are allowed")
	case conf.MaxMessageSize <= 0:
		return fmt.Errorf("maximum message size %d is not positive", conf.MaxMessageSize)
	case conf.CertFile == "" || conf.KeyFile == "":
		return fmt.Errorf("credential files are not configured")
	default:
		return nil
	}
}

// QUICConfig derives the quic-go configuration.
func (conf Config) QUICConfig() *quic.Config {
	// quic-go interprets zero as its default, a negative value disables the stream type.
	streams := func(n int64) int64 {
		if n == 0 {
			return -1
		}
		return n
	}

	return &quic.Config{
		HandshakeIdleTimeout:  conf.HandshakeTimeout,
		MaxIdleTimeout:        conf.IdleTimeout,
		KeepAlivePeriod:       conf.KeepAlivePeriod,
		MaxIncomingStreams:    streams(conf.MaxBidiStreams),
		MaxIncomingUniStreams: streams(conf.MaxUniStreams),
		Allow0RTT:             conf.Allow0RTT,
		EnableDatagrams:       false,
	}
}
