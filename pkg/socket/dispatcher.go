// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/someonegg/gox/syncx"
)

// job is a single handler invocation.
type job func()

// dispatcher runs jobs on a fixed number of worker goroutines. Jobs which
// cannot be started immediately wait in a bounded FIFO; if it is full,
// Submit rejects the job instead of blocking the stream.
type dispatcher struct {
	workers  int
	capacity int

	mutex   sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue

	stopOnce sync.Once
	stopD    syncx.DoneChan
	wg       sync.WaitGroup
}

func newDispatcher(workers, capacity int) *dispatcher {
	d := &dispatcher{
		workers:  workers,
		capacity: capacity,
		pending:  queue.New(),
		stopD:    syncx.NewDoneChan(),
	}
	d.cond = sync.NewCond(&d.mutex)

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}

	return d
}

func (d *dispatcher) stopped() bool {
	select {
	case <-d.stopD:
		return true
	default:
		return false
	}
}

// Submit enqueues a job. It fails with ErrDispatcherBusy if the queue is full.
func (d *dispatcher) Submit(j job) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped() {
		return ErrDispatcherStopped
	}
	if d.pending.Length() >= d.capacity {
		return ErrDispatcherBusy
	}

	d.pending.Add(j)
	d.cond.Signal()
	return nil
}

// Pending jobs which are not picked up by a worker yet.
func (d *dispatcher) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.pending.Length()
}

func (d *dispatcher) worker() {
	defer d.wg.Done()

	for {
		d.mutex.Lock()
		for d.pending.Length() == 0 && !d.stopped() {
			d.cond.Wait()
		}
		if d.pending.Length() == 0 {
			d.mutex.Unlock()
			return
		}
		j := d.pending.Remove().(job)
		d.mutex.Unlock()

		j()
	}
}

// Stop rejects new jobs, lets the workers drain the queue and waits for them.
func (d *dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mutex.Lock()
		d.stopD.SetDone()
		d.cond.Broadcast()
		d.mutex.Unlock()

		d.wg.Wait()
	})
}
