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
	"container/heap"
	"time"

	"github.com/openthread/ot-daemon/logger"
)

// AlarmId identifies a delayed task posted with PostDelayed.
type AlarmId uint64

type alarmEvent struct {
	Id       AlarmId
	Deadline time.Time
	Task     func()

	index int
}

type alarmQueue []*alarmEvent

func (aq alarmQueue) Len() int {
	return len(aq)
}

// Less orders by deadline; alarms with equal deadlines fire in posting order.
func (aq alarmQueue) Less(i, j int) bool {
	if aq[i].Deadline.Equal(aq[j].Deadline) {
		return aq[i].Id < aq[j].Id
	}
	return aq[i].Deadline.Before(aq[j].Deadline)
}

func (aq alarmQueue) Swap(i, j int) {
	a, b := aq[i], aq[j]
	if a.index != i && b.index != j {
		logger.Panicf("wrong index")
	}

	aq[i], aq[j] = b, a             // swap the elements
	aq[i].index, aq[j].index = i, j // fix the indexes
}

func (aq *alarmQueue) Push(x interface{}) {
	e := x.(*alarmEvent)
	*aq = append(*aq, e)
	e.index = len(*aq) - 1
}

func (aq *alarmQueue) Pop() (elem interface{}) {
	eqlen := len(*aq)
	elem = (*aq)[eqlen-1]
	*aq = (*aq)[:eqlen-1]
	return
}

type alarmMgr struct {
	q      alarmQueue
	events map[AlarmId]*alarmEvent
	nextId AlarmId
}

func newAlarmMgr() *alarmMgr {
	mgr := &alarmMgr{
		q:      alarmQueue{},
		events: map[AlarmId]*alarmEvent{},
		nextId: 1,
	}

	heap.Init(&mgr.q)
	return mgr
}

func (am *alarmMgr) Add(deadline time.Time, task func()) AlarmId {
	e := &alarmEvent{
		Id:       am.nextId,
		Deadline: deadline,
		Task:     task,
	}
	am.nextId++
	heap.Push(&am.q, e)
	am.events[e.Id] = e
	return e.Id
}

func (am *alarmMgr) Remove(id AlarmId) bool {
	e := am.events[id]
	if e == nil {
		return false
	}
	heap.Remove(&am.q, e.index)
	delete(am.events, id)
	return true
}

func (am *alarmMgr) NextAlarm() *alarmEvent {
	if len(am.q) == 0 {
		return nil
	}

	return am.q[0]
}

// PopDue removes and returns all alarms with a deadline not after now, in firing order.
func (am *alarmMgr) PopDue(now time.Time) []*alarmEvent {
	var due []*alarmEvent
	for len(am.q) > 0 && !am.q[0].Deadline.After(now) {
		e := heap.Pop(&am.q).(*alarmEvent)
		delete(am.events, e.Id)
		due = append(due, e)
	}
	return due
}

func (am *alarmMgr) Len() int {
	return len(am.q)
}

func (am *alarmMgr) Clear() {
	am.q = alarmQueue{}
	am.events = map[AlarmId]*alarmEvent{}
}
