// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// SessionStats are the per-session stream counters.
type SessionStats struct {
	Requests uint64 `json:"requests"`
	Pushes   uint64 `json:"pushes"`
	Aborts   uint64 `json:"aborts"`
}

// Session represents one accepted peer connection. Apart from its counters it
// is immutable and may be shared between concurrently running callbacks.
type Session struct {
	id         uuid.UUID
	remoteAddr net.Addr
	localAddr  net.Addr
	acceptedAt time.Time

	conn quic.Connection

	requests atomic.Uint64
	pushes   atomic.Uint64
	aborts   atomic.Uint64
}

func newSession(conn quic.Connection) *Session {
	session := &Session{
		id:         uuid.New(),
		acceptedAt: time.Now(),
		conn:       conn,
	}
	if conn != nil {
		session.remoteAddr = conn.RemoteAddr()
		session.localAddr = conn.LocalAddr()
	}
	return session
}

// ID uniquely identifies this Session.
func (session *Session) ID() uuid.UUID {
	return session.id
}

// RemoteAddr is the peer's address at the time the connection was accepted.
func (session *Session) RemoteAddr() net.Addr {
	return session.remoteAddr
}

// LocalAddr is our address for this connection.
func (session *Session) LocalAddr() net.Addr {
	return session.localAddr
}

// AcceptedAt is the time the connection was accepted.
func (session *Session) AcceptedAt() time.Time {
	return session.acceptedAt
}

// Stats returns a snapshot of this Session's counters.
func (session *Session) Stats() SessionStats {
	return SessionStats{
		Requests: session.requests.Load(),
		Pushes:   session.pushes.Load(),
		Aborts:   session.aborts.Load(),
	}
}

// Close the underlying connection. OnConnect(session, false) follows.
func (session *Session) Close() error {
	if session.conn == nil {
		return fmt.Errorf("session %v has no connection", session.id)
	}
	return session.conn.CloseWithError(SessionClosed, "session closed")
}

func (session *Session) String() string {
	return fmt.Sprintf("Session{%v, %v}", session.id, session.remoteAddr)
}

// registry maps session IDs to the live Sessions of one Listener.
type registry struct {
	mutex    sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[uuid.UUID]*Session)}
}

func (reg *registry) add(session *Session) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	reg.sessions[session.id] = session
}

func (reg *registry) remove(session *Session) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	delete(reg.sessions, session.id)
}

func (reg *registry) get(id uuid.UUID) (session *Session, ok bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()

	session, ok = reg.sessions[id]
	return
}

// list all Sessions, oldest first.
func (reg *registry) list() []*Session {
	reg.mutex.RLock()
	sessions := make([]*Session, 0, len(reg.sessions))
	for _, session := range reg.sessions {
		sessions = append(sessions, session)
	}
	reg.mutex.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].acceptedAt.Before(sessions[j].acceptedAt)
	})
	return sessions
}

func (reg *registry) len() int {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()

	return len(reg.sessions)
}
