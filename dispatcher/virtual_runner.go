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

package dispatcher

import (
	"sync"
	"time"
)

// VirtualRunner runs posted tasks on the calling goroutine against a virtual clock. Time only advances
// through Advance, so delayed tasks fire deterministically. It is used to drive the daemon in tests and
// in replay runs.
type VirtualRunner struct {
	lock     sync.Mutex
	now      time.Time
	tasks    []func()
	alarmMgr *alarmMgr
	counters Counters
}

func NewVirtualRunner() *VirtualRunner {
	return &VirtualRunner{
		now:      time.Unix(0, 0),
		alarmMgr: newAlarmMgr(),
	}
}

func (v *VirtualRunner) Post(task func()) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.tasks = append(v.tasks, task)
	v.counters.TasksPosted++
	if len(v.tasks) > v.counters.MaxQueueDepth {
		v.counters.MaxQueueDepth = len(v.tasks)
	}
}

func (v *VirtualRunner) PostDelayed(delay time.Duration, task func()) AlarmId {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.counters.AlarmsPosted++
	return v.alarmMgr.Add(v.now.Add(delay), task)
}

func (v *VirtualRunner) CancelDelayed(id AlarmId) bool {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.alarmMgr.Remove(id)
}

// Now returns the virtual time.
func (v *VirtualRunner) Now() time.Time {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.now
}

// Elapsed returns the virtual time passed since the runner was created.
func (v *VirtualRunner) Elapsed() time.Duration {
	return v.Now().Sub(time.Unix(0, 0))
}

func (v *VirtualRunner) popTask() func() {
	v.lock.Lock()
	defer v.lock.Unlock()
	if len(v.tasks) == 0 {
		return nil
	}
	t := v.tasks[0]
	v.tasks[0] = nil
	v.tasks = v.tasks[1:]
	v.counters.TasksHandled++
	return t
}

// RunUntilIdle runs queued tasks, including the ones they post, without advancing time.
func (v *VirtualRunner) RunUntilIdle() {
	for t := v.popTask(); t != nil; t = v.popTask() {
		t()
	}
}

// Advance moves the virtual clock forward by d, firing due alarms in deadline order and running all
// resulting tasks at the alarm time.
func (v *VirtualRunner) Advance(d time.Duration) {
	v.RunUntilIdle()
	v.lock.Lock()
	end := v.now.Add(d)
	v.lock.Unlock()

	for {
		v.lock.Lock()
		next := v.alarmMgr.NextAlarm()
		if next == nil || next.Deadline.After(end) {
			v.now = end
			v.lock.Unlock()
			return
		}
		if next.Deadline.After(v.now) {
			v.now = next.Deadline
		}
		for _, e := range v.alarmMgr.PopDue(v.now) {
			v.tasks = append(v.tasks, e.Task)
			v.counters.AlarmsFired++
			v.counters.TasksPosted++
		}
		v.lock.Unlock()
		v.RunUntilIdle()
	}
}

// PendingAlarms returns the number of delayed tasks that have not fired.
func (v *VirtualRunner) PendingAlarms() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.alarmMgr.Len()
}

func (v *VirtualRunner) GetCounters() Counters {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.counters
}
