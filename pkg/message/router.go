// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/socket"
)

// ErrUnknownRoute is reported for messages without a registered function.
var ErrUnknownRoute = errors.New("no route for message")

// RequestFunc answers a request Envelope. Its error is sent back as a
// ContentError Envelope.
type RequestFunc func(session *socket.Session, env Envelope) (Envelope, error)

// PushFunc consumes a pushed Envelope.
type PushFunc func(session *socket.Session, env Envelope) error

type route struct {
	domain      Domain
	contentType ContentType
}

func (r route) String() string {
	return fmt.Sprintf("%d/%d", r.domain, r.contentType)
}

// Router implements a socket.Handler decoding Envelopes and passing them to
// the function registered for their domain and content type.
type Router struct {
	mutex    sync.RWMutex
	requests map[route]RequestFunc
	pushes   map[route]PushFunc

	// maxBodySize bounds decompressed bodies.
	maxBodySize int

	// connect is called for every OnConnect, if set.
	connect func(session *socket.Session, connected bool)
}

// NewRouter answering only pings.
func NewRouter() *Router {
	router := &Router{
		requests:    make(map[route]RequestFunc),
		pushes:      make(map[route]PushFunc),
		maxBodySize: DefaultMaxBodySize,
	}
	router.HandleRequest(DomainControl, ContentPing, handlePing)
	return router
}

func handlePing(_ *socket.Session, env Envelope) (Envelope, error) {
	return NewEnvelope(DomainControl, ContentPing, env.Body), nil
}

// HandleRequest registers f for requests of the given domain and content type.
func (router *Router) HandleRequest(domain Domain, contentType ContentType, f RequestFunc) {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	router.requests[route{domain, contentType}] = f
}

// HandlePush registers f for pushes of the given domain and content type.
func (router *Router) HandlePush(domain Domain, contentType ContentType, f PushFunc) {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	router.pushes[route{domain, contentType}] = f
}

// OnConnectFunc sets a function to be informed about connection changes.
func (router *Router) OnConnectFunc(f func(session *socket.Session, connected bool)) {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	router.connect = f
}

// SetMaxBodySize changes the limit for decompressed bodies.
func (router *Router) SetMaxBodySize(size int) {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	router.maxBodySize = size
}

// decode the message and make its body plain.
func (router *Router) decode(data []byte) (env Envelope, err error) {
	if env, err = Unmarshal(data); err != nil {
		return
	}

	router.mutex.RLock()
	limit := router.maxBodySize
	router.mutex.RUnlock()

	if env.Body, err = env.Payload(limit); err != nil {
		return
	}
	env.Flags &^= FlagXZ
	return
}

func (router *Router) OnConnect(session *socket.Session, connected bool) {
	router.mutex.RLock()
	f := router.connect
	router.mutex.RUnlock()

	if f != nil {
		f(session, connected)
	}
}

func (router *Router) OnRequest(session *socket.Session, request []byte) []byte {
	env, err := router.decode(request)
	if err != nil {
		log.WithFields(log.Fields{
			"session": session,
			"error":   err,
		}).Warn("Received malformed request")

		return router.reply(session, ErrorEnvelope(0, fmt.Errorf("malformed request: %v", err)))
	}

	r := route{env.Domain, env.ContentType}
	router.mutex.RLock()
	f, ok := router.requests[r]
	router.mutex.RUnlock()

	if !ok {
		log.WithFields(log.Fields{
			"session": session,
			"route":   r,
		}).Debug("Received request without route")

		return router.reply(session, ErrorEnvelope(env.Domain, fmt.Errorf("%w %v", ErrUnknownRoute, r)))
	}

	reply, err := f(session, env)
	if err != nil {
		log.WithFields(log.Fields{
			"session": session,
			"route":   r,
			"error":   err,
		}).Debug("Request function errored")

		reply = ErrorEnvelope(env.Domain, err)
	}
	return router.reply(session, reply)
}

func (router *Router) reply(session *socket.Session, env Envelope) []byte {
	data, err := Marshal(env)
	if err != nil {
		log.WithFields(log.Fields{
			"session":  session,
			"envelope": env,
			"error":    err,
		}).Error("Marshalling reply failed")
		return nil
	}
	return data
}

func (router *Router) OnReceive(session *socket.Session, message []byte) {
	env, err := router.decode(message)
	if err != nil {
		log.WithFields(log.Fields{
			"session": session,
			"error":   err,
		}).Warn("Dropping malformed push")
		return
	}

	r := route{env.Domain, env.ContentType}
	router.mutex.RLock()
	f, ok := router.pushes[r]
	router.mutex.RUnlock()

	if !ok {
		log.WithFields(log.Fields{
			"session": session,
			"route":   r,
		}).Warn("Dropping push without route")
		return
	}

	if err := f(session, env); err != nil {
		log.WithFields(log.Fields{
			"session": session,
			"route":   r,
			"error":   err,
		}).Warn("Push function errored")
	}
}
