// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package admin serves a small HTTP API to inspect and manage the sessions of
// a quicsock listener.
//
//	GET    /sessions       all connected sessions
//	GET    /sessions/{id}  a single session
//	DELETE /sessions/{id}  close a session's connection
//	GET    /stats          engine and registered statistics
//	GET    /events         WebSocket feed of connect and disconnect events
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/socket"
)

// Sessions is implemented by *socket.Listener.
type Sessions interface {
	Session(id uuid.UUID) (*socket.Session, bool)
	Sessions() []*socket.Session
	SessionCount() int
}

// SessionInfo is the JSON representation of a socket.Session.
type SessionInfo struct {
	ID         string              `json:"id"`
	Remote     string              `json:"remote"`
	Local      string              `json:"local"`
	AcceptedAt time.Time           `json:"accepted_at"`
	Stats      socket.SessionStats `json:"stats"`
}

func newSessionInfo(session *socket.Session) SessionInfo {
	info := SessionInfo{
		ID:         session.ID().String(),
		AcceptedAt: session.AcceptedAt(),
		Stats:      session.Stats(),
	}
	if addr := session.RemoteAddr(); addr != nil {
		info.Remote = addr.String()
	}
	if addr := session.LocalAddr(); addr != nil {
		info.Local = addr.String()
	}
	return info
}

// errorResponse is sent for every failed API call.
type errorResponse struct {
	Error string `json:"error"`
}

// Server is the admin API's http.Handler.
type Server struct {
	router   *mux.Router
	upgrader websocket.Upgrader

	sessions Sessions
	engine   *socket.Engine
	observer *Observer

	statsMutex sync.RWMutex
	stats      map[string]func() interface{}

	httpServer *http.Server
}

// NewServer for the given sessions. The engine and observer are optional; the
// /events endpoint is only available with an Observer.
func NewServer(sessions Sessions, engine *socket.Engine, observer *Observer) *Server {
	server := &Server{
		router:   mux.NewRouter(),
		sessions: sessions,
		engine:   engine,
		observer: observer,
		stats:    make(map[string]func() interface{}),
	}

	server.router.HandleFunc("/sessions", server.handleSessions).Methods(http.MethodGet)
	server.router.HandleFunc("/sessions/{id}", server.handleSession).Methods(http.MethodGet)
	server.router.HandleFunc("/sessions/{id}", server.handleCloseSession).Methods(http.MethodDelete)
	server.router.HandleFunc("/stats", server.handleStats).Methods(http.MethodGet)
	if observer != nil {
		server.router.HandleFunc("/events", server.handleEvents).Methods(http.MethodGet)
	}

	return server
}

// AddStats registers f to be reported under name by /stats.
func (server *Server) AddStats(name string, f func() interface{}) {
	server.statsMutex.Lock()
	defer server.statsMutex.Unlock()

	server.stats[name] = f
}

// ServeHTTP makes the Server a http.Handler.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.router.ServeHTTP(w, r)
}

// ListenAndServe binds the given address and serves the API in the background.
func (server *Server) ListenAndServe(address string) (net.Addr, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	server.httpServer = &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Admin API server errored")
		}
	}()

	log.WithField("address", ln.Addr()).Info("Started admin API")
	return ln.Addr(), nil
}

// Close a server started by ListenAndServe.
func (server *Server) Close() error {
	if server.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked WebSocket connections.
	return server.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write admin API response")
	}
}

func (server *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*socket.Session, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}

	session, ok := server.sessions.Session(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session"})
		return nil, false
	}
	return session, true
}

func (server *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := server.sessions.Sessions()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, newSessionInfo(session))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (server *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if session, ok := server.lookupSession(w, r); ok {
		writeJSON(w, http.StatusOK, newSessionInfo(session))
	}
}

func (server *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	session, ok := server.lookupSession(w, r)
	if !ok {
		return
	}

	log.WithField("session", session).Info("Admin API closes session")

	if err := session.Close(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"sessions": server.sessions.SessionCount(),
	}
	if server.engine != nil {
		resp["engine"] = server.engine.Stats()
	}
	if server.observer != nil {
		resp["subscribers"] = server.observer.Subscribers()
	}

	server.statsMutex.RLock()
	for name, f := range server.stats {
		resp[name] = f()
	}
	server.statsMutex.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (server *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe first, so no Event after the upgrade gets lost.
	events, cancel := server.observer.Subscribe()
	defer cancel()

	conn, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer conn.Close()

	logger := log.WithField("admin client", conn.RemoteAddr().String())
	logger.Debug("Admin client subscribed to events")

	// The client is not expected to send anything; reading detects its close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Debug("Writing event errored")
				return
			}

		case <-closed:
			logger.Debug("Admin client closed event feed")
			return
		}
	}
}
