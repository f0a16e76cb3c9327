// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package client dials a quicsock listener and exchanges requests and pushes
// with it. Each call opens its own stream, so a single Client may be used by
// many goroutines at once.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/socket"
)

const (
	// DefaultMaxReplySize bounds the replies read by Request.
	DefaultMaxReplySize = 1 << 20

	// DefaultIdleTimeout of the client's side of the connection.
	DefaultIdleTimeout = 30 * time.Second
)

// ErrReplyTooLarge is returned if a reply exceeds Options.MaxReplySize.
var ErrReplyTooLarge = errors.New("reply exceeds maximum size")

// Options for Dial. The zero value is usable against a listener with a
// certificate trusted by the system.
type Options struct {
	// TLSConfig replaces the generated TLS configuration if set.
	TLSConfig *tls.Config

	// InsecureSkipVerify accepts any server certificate, e.g., self-signed ones.
	InsecureSkipVerify bool

	// ALPN defaults to socket.ALPN.
	ALPN string

	IdleTimeout     time.Duration
	KeepAlivePeriod time.Duration

	// MaxReplySize defaults to DefaultMaxReplySize.
	MaxReplySize int
}

func (opts Options) withDefaults() Options {
	if opts.ALPN == "" {
		opts.ALPN = socket.ALPN
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxReplySize <= 0 {
		opts.MaxReplySize = DefaultMaxReplySize
	}
	return opts
}

func (opts Options) tlsConfig() *tls.Config {
	if opts.TLSConfig != nil {
		conf := opts.TLSConfig.Clone()
		if len(conf.NextProtos) == 0 {
			conf.NextProtos = []string{opts.ALPN}
		}
		return conf
	}

	return &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify,
		NextProtos:         []string{opts.ALPN},
		MinVersion:         tls.VersionTLS13,
		ClientSessionCache: tls.NewLRUClientSessionCache(8),
	}
}

// StreamAbortError is returned if the listener aborted a stream.
type StreamAbortError struct {
	Code  quic.StreamErrorCode
	Cause error
}

func (err *StreamAbortError) Error() string {
	switch err.Code {
	case socket.StreamOverflowCode:
		return "stream aborted by peer: message too large"
	case socket.StreamBusyCode:
		return "stream aborted by peer: busy"
	case socket.StreamInternalCode:
		return "stream aborted by peer: internal error"
	default:
		return fmt.Sprintf("stream aborted by peer with code %d", err.Code)
	}
}

func (err *StreamAbortError) Unwrap() error {
	return err.Cause
}

// IsOverflow reports whether the message was rejected for its size.
func (err *StreamAbortError) IsOverflow() bool {
	return err.Code == socket.StreamOverflowCode
}

// IsBusy reports whether the listener was too busy to handle the message.
func (err *StreamAbortError) IsBusy() bool {
	return err.Code == socket.StreamBusyCode
}

func wrapStreamError(err error) error {
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) && streamErr.Remote {
		return &StreamAbortError{Code: streamErr.ErrorCode, Cause: err}
	}
	return err
}

// Client is a connection to a quicsock listener.
type Client struct {
	opts Options
	conn quic.Connection
}

// Dial connects to address, e.g., "localhost:4433".
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	conn, err := quic.DialAddr(ctx, address, opts.tlsConfig(), &quic.Config{
		MaxIdleTimeout:  opts.IdleTimeout,
		KeepAlivePeriod: opts.KeepAlivePeriod,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"peer":  conn.RemoteAddr(),
		"local": conn.LocalAddr(),
	}).Debug("Client connected")

	return &Client{opts: opts, conn: conn}, nil
}

// Request sends payload on a new bidirectional stream and returns the reply.
func (c *Client) Request(ctx context.Context, payload []byte) ([]byte, error) {
	qs, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		qs.CancelRead(quic.StreamErrorCode(0))
		qs.CancelWrite(quic.StreamErrorCode(0))
	})
	defer stop()

	if _, err := qs.Write(payload); err != nil {
		qs.CancelRead(0)
		return nil, c.streamErr(ctx, err)
	}
	if err := qs.Close(); err != nil {
		qs.CancelRead(0)
		return nil, c.streamErr(ctx, err)
	}

	reply, err := io.ReadAll(io.LimitReader(qs, int64(c.opts.MaxReplySize)+1))
	if err != nil {
		return nil, c.streamErr(ctx, err)
	}
	if len(reply) > c.opts.MaxReplySize {
		qs.CancelRead(0)
		return nil, ErrReplyTooLarge
	}
	return reply, nil
}

// Push sends payload on a new unidirectional stream. It returns after the
// whole payload was handed to the transport; nothing is sent back.
func (c *Client) Push(ctx context.Context, payload []byte) error {
	qs, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		qs.CancelWrite(quic.StreamErrorCode(0))
	})
	defer stop()

	if _, err := qs.Write(payload); err != nil {
		return c.streamErr(ctx, err)
	}
	if err := qs.Close(); err != nil {
		return c.streamErr(ctx, err)
	}
	return nil
}

func (c *Client) streamErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return wrapStreamError(err)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Context().Done()
}

// RemoteAddr of the listener.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close the connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(socket.NoError, "client closing")
}
