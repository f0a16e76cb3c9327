// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultQueueSize is the number of handler calls which may wait for a worker.
	DefaultQueueSize = 1024
)

// EngineStats are counters describing an Engine's lifecycle.
type EngineStats struct {
	// References is the number of currently acquired Contexts.
	References int `json:"references"`
	// Starts and Stops count how often the shared dispatcher was created and torn down.
	Starts uint64 `json:"starts"`
	Stops  uint64 `json:"stops"`
	// Pending handler calls waiting for a worker.
	Pending int `json:"pending"`
}

// Engine is the process-scoped owner of the resources shared by all
// listeners, most notably the dispatcher executing the handlers. It is created
// once at startup and passed to everything using it.
//
// Contexts are acquired from an Engine. The first acquisition starts the
// dispatcher, releasing the last Context stops it again.
type Engine struct {
	workers   int
	queueSize int

	mutex      sync.Mutex
	refs       int
	dispatcher *dispatcher
	closed     bool

	starts uint64
	stops  uint64
}

// NewEngine creates an Engine. A non-positive workers or queueSize selects a default.
func NewEngine(workers, queueSize int) *Engine {
	if workers <= 0 {
		workers = 4 * runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Engine{
		workers:   workers,
		queueSize: queueSize,
	}
}

// Acquire a new Context with the given Config.
func (engine *Engine) Acquire(conf Config) (*Context, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.closed {
		return nil, fmt.Errorf("engine is shut down")
	}

	if engine.refs == 0 {
		engine.dispatcher = newDispatcher(engine.workers, engine.queueSize)
		engine.starts++

		log.WithFields(log.Fields{
			"workers": engine.workers,
			"queue":   engine.queueSize,
		}).Debug("Engine started its dispatcher")
	}
	engine.refs++

	return &Context{engine: engine, conf: conf}, nil
}

// release drops one reference and stops the dispatcher with the last one.
func (engine *Engine) release() {
	engine.mutex.Lock()
	if engine.refs == 0 {
		engine.mutex.Unlock()
		return
	}

	engine.refs--
	if engine.refs > 0 {
		engine.mutex.Unlock()
		return
	}

	d := engine.dispatcher
	engine.dispatcher = nil
	engine.stops++
	engine.mutex.Unlock()

	// Stopping waits for running handlers, which must not hold our lock.
	d.Stop()
	log.Debug("Engine stopped its dispatcher")
}

// Shutdown stops the dispatcher independently of outstanding Contexts.
// Afterwards, no more Contexts can be acquired.
func (engine *Engine) Shutdown() {
	engine.mutex.Lock()
	engine.closed = true
	d := engine.dispatcher
	engine.dispatcher = nil
	if d != nil {
		engine.stops++
	}
	engine.refs = 0
	engine.mutex.Unlock()

	if d != nil {
		d.Stop()
	}
}

// Running reports whether the shared dispatcher exists.
func (engine *Engine) Running() bool {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	return engine.dispatcher != nil
}

// Stats returns a snapshot of the Engine's counters.
func (engine *Engine) Stats() EngineStats {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	stats := EngineStats{
		References: engine.refs,
		Starts:     engine.starts,
		Stops:      engine.stops,
	}
	if engine.dispatcher != nil {
		stats.Pending = engine.dispatcher.Pending()
	}
	return stats
}

func (engine *Engine) submit(j job) error {
	engine.mutex.Lock()
	d := engine.dispatcher
	engine.mutex.Unlock()

	if d == nil {
		return ErrDispatcherStopped
	}
	return d.Submit(j)
}

// Context is one acquisition of an Engine, carrying the transport Config for
// everything bound through it.
type Context struct {
	engine   *Engine
	conf     Config
	released atomic.Bool
}

// Config returns a copy of this Context's configuration.
func (ctx *Context) Config() Config {
	return ctx.conf
}

// Engine returns the Engine this Context was acquired from.
func (ctx *Context) Engine() *Engine {
	return ctx.engine
}

// Released reports whether Release was called.
func (ctx *Context) Released() bool {
	return ctx.released.Load()
}

// Release this Context. Subsequent calls are no-ops.
func (ctx *Context) Release() {
	if ctx.released.CompareAndSwap(false, true) {
		ctx.engine.release()
	}
}
