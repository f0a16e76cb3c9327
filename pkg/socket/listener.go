// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// Listener accepts QUIC connections on a port and drives a Handler for each
// of their streams.
type Listener struct {
	ctx     *Context
	conf    Config
	handler Handler
	address string

	creds     *credentials
	udpConn   net.PacketConn
	transport *quic.Transport
	listener  *quic.EarlyListener

	registry *registry

	connsMutex sync.Mutex
	conns      map[*connection]struct{}
	connsWg    sync.WaitGroup

	acceptDone chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// Bind a new Listener to the given port on all IPv4 addresses and start
// accepting connections. The returned errors are *CredentialLoadError,
// *ListenerStartError or *PortBindError.
//
// Sessions are handed to the Handler's OnConnect and can be looked up by
// their ID through the Listener afterwards.
func Bind(ctx *Context, port uint16, handler Handler) (*Listener, error) {
	if ctx == nil {
		return nil, &ListenerStartError{Msg: "no transport context"}
	}
	conf := ctx.Config()

	creds, err := loadCredentials(conf.CertFile, conf.KeyFile)
	if err != nil {
		return nil, err
	}

	l, err := newListener(ctx, conf, handler, creds)
	if err != nil {
		_ = creds.Close()
		return nil, err
	}

	if err := l.start(port); err != nil {
		_ = creds.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"address": l.Addr(),
		"alpn":    conf.ALPN,
	}).Info("Started listener")

	go l.handle()
	return l, nil
}

func newListener(ctx *Context, conf Config, handler Handler, creds *credentials) (*Listener, error) {
	switch {
	case handler == nil:
		return nil, &ListenerStartError{Msg: "no handler"}
	case ctx.Released():
		return nil, &ListenerStartError{Msg: "unusable transport context", Cause: ErrContextReleased}
	}

	if conf.WatchCredentials {
		if err := creds.watch(); err != nil {
			return nil, &ListenerStartError{Msg: "watching credentials failed", Cause: err}
		}
	}

	return &Listener{
		ctx:        ctx,
		conf:       conf,
		handler:    handler,
		creds:      creds,
		registry:   newRegistry(),
		conns:      make(map[*connection]struct{}),
		acceptDone: make(chan struct{}),
	}, nil
}

// start opens the UDP socket and the QUIC listener on top of it.
func (l *Listener) start(port uint16) error {
	l.address = fmt.Sprintf("0.0.0.0:%d", port)

	lc := net.ListenConfig{}
	if l.conf.ReusePort {
		lc.Control = reusePortControl
	}

	udpConn, err := lc.ListenPacket(context.Background(), "udp4", l.address)
	if err != nil {
		return &PortBindError{Address: l.address, Cause: err}
	}

	transport := &quic.Transport{Conn: udpConn}
	listener, err := transport.ListenEarly(l.creds.tlsConfig(l.conf.ALPN), l.conf.QUICConfig())
	if err != nil {
		_ = transport.Close()
		_ = udpConn.Close()
		return &PortBindError{Address: l.address, Cause: err}
	}

	l.udpConn = udpConn
	l.transport = transport
	l.listener = listener
	return nil
}

func (l *Listener) handle() {
	defer close(l.acceptDone)

	for {
		conn, err := l.listener.Accept(context.Background())
		if err != nil {
			if l.closed.Load() || errors.Is(err, quic.ErrServerClosed) {
				log.WithField("address", l.Addr()).Debug("Stopped accepting connections")
				return
			}

			log.WithFields(log.Fields{
				"address": l.Addr(),
				"error":   err,
			}).Error("Unknown error accepting QUIC connection")
			continue
		}

		log.WithFields(log.Fields{
			"address": l.Addr(),
			"peer":    conn.RemoteAddr(),
		}).Debug("Listener accepted new connection")

		c := newConnection(l, conn)
		l.connsMutex.Lock()
		l.conns[c] = struct{}{}
		l.connsWg.Add(1)
		l.connsMutex.Unlock()

		go func() {
			defer l.connsWg.Done()
			c.serve()

			l.connsMutex.Lock()
			delete(l.conns, c)
			l.connsMutex.Unlock()
		}()
	}
}

// Addr is the local address this Listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Port this Listener is bound to, useful after binding port 0.
func (l *Listener) Port() uint16 {
	if addr, ok := l.Addr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// Context returns the transport Context this Listener was bound with.
func (l *Listener) Context() *Context {
	return l.ctx
}

// Session looks up a connected Session by its ID.
func (l *Listener) Session(id uuid.UUID) (*Session, bool) {
	return l.registry.get(id)
}

// Sessions lists all connected Sessions, oldest first.
func (l *Listener) Sessions() []*Session {
	return l.registry.list()
}

// SessionCount is the number of connected Sessions.
func (l *Listener) SessionCount() int {
	return l.registry.len()
}

// Close stops accepting, closes every connection and waits until all of
// their handlers returned. The transport Context is not released.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		log.WithField("address", l.Addr()).Info("Shutting listener down")

		var result *multierror.Error
		if err := l.listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		<-l.acceptDone

		l.connsMutex.Lock()
		for c := range l.conns {
			if err := c.conn.CloseWithError(ApplicationShutdown, "listener shutting down"); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing %v: %w", c, err))
			}
		}
		l.connsMutex.Unlock()
		l.connsWg.Wait()

		if err := l.transport.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := l.udpConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		if err := l.creds.Close(); err != nil {
			result = multierror.Append(result, err)
		}

		l.closeErr = result.ErrorOrNil()
	})
	return l.closeErr
}
