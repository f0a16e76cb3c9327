// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package admin

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/socket"
)

// EventType distinguishes connects from disconnects.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

// subscriberBuffer is the number of Events queued per subscriber before
// further Events are dropped for it.
const subscriberBuffer = 64

// Event describes a session's connection change.
type Event struct {
	Type    EventType `json:"type"`
	Session string    `json:"session"`
	Remote  string    `json:"remote"`
	Time    time.Time `json:"time"`
}

// Observer wraps a socket.Handler and publishes an Event for each of its
// OnConnect calls. Requests and pushes are passed through.
type Observer struct {
	socket.Handler

	mutex       sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewObserver wrapping the given Handler.
func NewObserver(handler socket.Handler) *Observer {
	return &Observer{
		Handler:     handler,
		subscribers: make(map[chan Event]struct{}),
	}
}

func (obs *Observer) OnConnect(session *socket.Session, connected bool) {
	ev := Event{
		Type:    EventDisconnect,
		Session: session.ID().String(),
		Time:    time.Now(),
	}
	if connected {
		ev.Type = EventConnect
	}
	if addr := session.RemoteAddr(); addr != nil {
		ev.Remote = addr.String()
	}

	// Disconnects are published after the wrapped Handler saw them.
	if connected {
		obs.publish(ev)
		obs.Handler.OnConnect(session, connected)
	} else {
		obs.Handler.OnConnect(session, connected)
		obs.publish(ev)
	}
}

func (obs *Observer) publish(ev Event) {
	obs.mutex.Lock()
	defer obs.mutex.Unlock()

	for sub := range obs.subscribers {
		select {
		case sub <- ev:
		default:
			log.WithField("event", ev).Warn("Subscriber is too slow, dropping event")
		}
	}
}

// Subscribe to future Events. The returned function cancels the subscription
// and closes the channel.
func (obs *Observer) Subscribe() (<-chan Event, func()) {
	sub := make(chan Event, subscriberBuffer)

	obs.mutex.Lock()
	obs.subscribers[sub] = struct{}{}
	obs.mutex.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			obs.mutex.Lock()
			delete(obs.subscribers, sub)
			obs.mutex.Unlock()
			close(sub)
		})
	}
}

// Subscribers is the number of active subscriptions.
func (obs *Observer) Subscribers() int {
	obs.mutex.Lock()
	defer obs.mutex.Unlock()

	return len(obs.subscribers)
}
