// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package dispatcher implements the single-consumer task queue of the daemon. All state of the daemon
// server is owned by the goroutine running Dispatcher.Run; every other goroutine, including stack and IPC
// callbacks, hands work to it through Post or PostDelayed.
package dispatcher

import (
	"sync"
	"time"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/progctx"
)

type Counters struct {
	TasksPosted   uint64
	TasksHandled  uint64
	TasksFailed   uint64
	AlarmsPosted  uint64
	AlarmsFired   uint64
	TasksDropped  uint64
	MaxQueueDepth int
}

type Dispatcher struct {
	ctx      *progctx.ProgCtx
	cfg      Config
	lock     sync.Mutex
	tasks    []func()
	wakeChan chan struct{}
	alarmMgr *alarmMgr
	counters Counters
	stopped  bool
}

func NewDispatcher(ctx *progctx.ProgCtx, cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	d := &Dispatcher{
		ctx:      ctx,
		cfg:      *cfg,
		wakeChan: make(chan struct{}, 1),
		alarmMgr: newAlarmMgr(),
	}
	logger.Debugf("dispatcher created: cfg=%+v", *cfg)
	return d
}

// Post appends task to the queue. It never blocks; tasks run in posting order.
func (d *Dispatcher) Post(task func()) {
	d.lock.Lock()
	if d.stopped {
		d.counters.TasksDropped++
		d.lock.Unlock()
		logger.Debugf("%s stopped, task dropped", d.cfg.Name)
		return
	}
	d.tasks = append(d.tasks, task)
	d.counters.TasksPosted++
	depth := len(d.tasks)
	if depth > d.counters.MaxQueueDepth {
		d.counters.MaxQueueDepth = depth
	}
	d.lock.Unlock()

	if d.cfg.QueueWarnLength > 0 && depth == d.cfg.QueueWarnLength {
		logger.Warnf("%s queue length reached %d", d.cfg.Name, depth)
	}
	d.wake()
}

// PostDelayed queues task to be posted once delay has passed. The returned id can be used to cancel it.
func (d *Dispatcher) PostDelayed(delay time.Duration, task func()) AlarmId {
	d.lock.Lock()
	if d.stopped {
		d.counters.TasksDropped++
		d.lock.Unlock()
		return 0
	}
	id := d.alarmMgr.Add(time.Now().Add(delay), task)
	d.counters.AlarmsPosted++
	d.lock.Unlock()

	d.wake()
	return id
}

// CancelDelayed cancels a task posted with PostDelayed. Returns false if it already fired or is unknown.
func (d *Dispatcher) CancelDelayed(id AlarmId) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.alarmMgr.Remove(id)
}

func (d *Dispatcher) wake() {
	select {
	case d.wakeChan <- struct{}{}:
	default:
	}
}

// Run handles posted tasks until the program context is done. It must be called exactly once.
func (d *Dispatcher) Run() {
	d.ctx.WaitAdd(d.cfg.Name, 1)
	defer d.ctx.WaitDone(d.cfg.Name)
	defer logger.Debugf("%s exit.", d.cfg.Name)

	defer d.Stop()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	done := d.ctx.Done()
	for {
		d.fireAlarms()
		d.handleTasks()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next := d.nextAlarmDeadline(); !next.IsZero() {
			timer.Reset(time.Until(next))
		}

		select {
		case <-d.wakeChan:
		case <-timer.C:
		case <-done:
			return
		}
	}
}

func (d *Dispatcher) nextAlarmDeadline() time.Time {
	d.lock.Lock()
	defer d.lock.Unlock()
	if e := d.alarmMgr.NextAlarm(); e != nil {
		return e.Deadline
	}
	return time.Time{}
}

func (d *Dispatcher) fireAlarms() {
	d.lock.Lock()
	due := d.alarmMgr.PopDue(time.Now())
	for _, e := range due {
		d.tasks = append(d.tasks, e.Task)
		d.counters.AlarmsFired++
		d.counters.TasksPosted++
	}
	d.lock.Unlock()
}

func (d *Dispatcher) popTask() func() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.tasks) == 0 || d.stopped {
		return nil
	}
	t := d.tasks[0]
	d.tasks[0] = nil
	d.tasks = d.tasks[1:]
	return t
}

func (d *Dispatcher) handleTasks() {
	for d.ctx.Err() == nil {
		t := d.popTask()
		if t == nil {
			return
		}
		d.runTask(t)
	}
}

func (d *Dispatcher) runTask(t func()) {
	start := time.Now()
	defer func() {
		err := recover()
		d.lock.Lock()
		d.counters.TasksHandled++
		if err != nil {
			d.counters.TasksFailed++
		}
		d.lock.Unlock()
		if err != nil {
			logger.Errorf("dispatcher handle task failed: %+v", err)
		}
		if d.cfg.SlowTaskThreshold > 0 {
			if elapsed := time.Since(start); elapsed > d.cfg.SlowTaskThreshold {
				logger.Warnf("%s task took %v", d.cfg.Name, elapsed)
			}
		}
	}()

	t()
}

// Stop drops all queued tasks and alarms. Tasks posted afterwards are dropped.
func (d *Dispatcher) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.counters.TasksDropped += uint64(len(d.tasks) + d.alarmMgr.Len())
	d.tasks = nil
	d.alarmMgr.Clear()
}

func (d *Dispatcher) IsStopped() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.stopped
}

func (d *Dispatcher) GetCounters() Counters {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.counters
}

// QueueLength returns the number of tasks waiting to be handled.
func (d *Dispatcher) QueueLength() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.tasks)
}
