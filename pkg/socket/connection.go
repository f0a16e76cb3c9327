// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// connState is a connection's position in its lifecycle.
type connState uint32

const (
	connConnecting connState = iota
	connConnected
	connActive
	connShuttingDown
	connClosed
)

func (state connState) String() string {
	switch state {
	case connConnecting:
		return "connecting"
	case connConnected:
		return "connected"
	case connActive:
		return "active"
	case connShuttingDown:
		return "shutting down"
	case connClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connection is the state machine of one accepted QUIC connection.
type connection struct {
	listener *Listener
	conn     quic.EarlyConnection
	session  *Session

	state   atomic.Uint32
	streams sync.WaitGroup
}

func newConnection(listener *Listener, conn quic.EarlyConnection) *connection {
	return &connection{
		listener: listener,
		conn:     conn,
		session:  newSession(conn),
	}
}

func (c *connection) String() string {
	return c.session.String()
}

func (c *connection) setState(state connState) {
	c.state.Store(uint32(state))
}

func (c *connection) getState() connState {
	return connState(c.state.Load())
}

// alive is false as soon as the underlying connection is gone.
func (c *connection) alive() bool {
	return c.conn.Context().Err() == nil
}

// serve drives the connection from the handshake until it is closed.
func (c *connection) serve() {
	handler := c.listener.handler

	select {
	case <-c.conn.HandshakeComplete():
	case <-c.conn.Context().Done():
		log.WithFields(log.Fields{
			"session": c,
			"error":   context.Cause(c.conn.Context()),
		}).Debug("Connection closed during handshake")

		c.setState(connClosed)
		return
	}

	c.setState(connConnected)
	c.listener.registry.add(c.session)

	log.WithField("session", c).Info("Connection established")
	handler.OnConnect(c.session, true)

	c.setState(connActive)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		c.acceptStreams()
	}()
	go func() {
		defer loops.Done()
		c.acceptUniStreams()
	}()
	loops.Wait()

	c.setState(connShuttingDown)
	c.streams.Wait()

	c.setState(connClosed)
	log.WithFields(log.Fields{
		"session": c,
		"stats":   c.session.Stats(),
		"reason":  context.Cause(c.conn.Context()),
	}).Info("Connection closed")

	handler.OnConnect(c.session, false)
	c.listener.registry.remove(c.session)
}

func (c *connection) acceptStreams() {
	for {
		qs, err := c.conn.AcceptStream(context.Background())
		if err != nil {
			c.logAcceptError(err)
			return
		}

		c.startStream(qs.StreamID(), false, bidiIO{stream: qs}, qs)
	}
}

func (c *connection) acceptUniStreams() {
	for {
		qs, err := c.conn.AcceptUniStream(context.Background())
		if err != nil {
			c.logAcceptError(err)
			return
		}

		c.startStream(qs.StreamID(), true, uniIO{stream: qs}, qs)
	}
}

func (c *connection) startStream(id quic.StreamID, unidirectional bool, sio streamIO, r io.Reader) {
	s := newStream(id, c.session, c.listener.handler, unidirectional, sio, c.listener.conf.MaxMessageSize)
	s.dispatch = c.listener.ctx.engine.submit
	s.alive = c.alive

	log.WithField("stream", s).Debug("Peer opened stream")

	c.streams.Add(1)
	go func() {
		defer c.streams.Done()
		s.run(r)
	}()
}

func (c *connection) logAcceptError(err error) {
	var (
		netErr  net.Error
		appErr  *quic.ApplicationError
		idleErr *quic.IdleTimeoutError
	)

	switch {
	case errors.As(err, &idleErr):
		log.WithField("session", c).Debug("Peer timed out")

	case errors.As(err, &appErr):
		log.WithFields(log.Fields{
			"session":    c,
			"remote":     appErr.Remote,
			"error code": appErr.ErrorCode,
			"error msg":  appErr.ErrorMessage,
		}).Debug("Connection to peer closed")

	case errors.As(err, &netErr) && netErr.Timeout():
		log.WithFields(log.Fields{
			"session": c,
			"error":   netErr,
		}).Debug("Connection timed out")

	default:
		log.WithFields(log.Fields{
			"session": c,
			"error":   err,
		}).Debug("Stopped accepting streams")
	}
}
