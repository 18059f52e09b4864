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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openthread/ot-daemon/progctx"
)

func startDispatcher() (*Dispatcher, func()) {
	ctx := progctx.New(context.Background())
	d := NewDispatcher(ctx, DefaultConfig())
	go d.Run()
	return d, func() {
		ctx.Cancel(nil)
		ctx.Wait()
	}
}

// waitQueue posts a task and waits until it has run.
func waitQueue(t *testing.T, d *Dispatcher) {
	done := make(chan struct{})
	d.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not run task")
	}
}

func TestDispatcher_FifoOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	d, stop := startDispatcher()
	defer stop()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Post(func() {
			order = append(order, i)
			if i == 0 {
				d.Post(func() { order = append(order, 100) })
			}
		})
	}
	waitQueue(t, d)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 100}, order)
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	d, stop := startDispatcher()
	defer stop()

	ran := false
	d.Post(func() { panic("task failure") })
	d.Post(func() { ran = true })
	waitQueue(t, d)
	assert.True(t, ran)
	c := d.GetCounters()
	assert.Equal(t, uint64(1), c.TasksFailed)
	assert.GreaterOrEqual(t, c.TasksHandled, uint64(2))
}

func TestDispatcher_PostDelayed(t *testing.T) {
	d, stop := startDispatcher()
	defer stop()

	fired := make(chan int, 3)
	d.PostDelayed(60*time.Millisecond, func() { fired <- 2 })
	d.PostDelayed(20*time.Millisecond, func() { fired <- 1 })
	id := d.PostDelayed(40*time.Millisecond, func() { fired <- 99 })
	assert.True(t, d.CancelDelayed(id))
	assert.False(t, d.CancelDelayed(id))

	var got []int
	for len(got) < 2 {
		select {
		case v := <-fired:
			got = append(got, v)
		case <-time.After(5 * time.Second):
			t.Fatal("alarm did not fire")
		}
	}
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, uint64(2), d.GetCounters().AlarmsFired)
}

func TestDispatcher_Stop(t *testing.T) {
	ctx := progctx.New(context.Background())
	d := NewDispatcher(ctx, nil)
	d.Post(func() {})
	d.PostDelayed(time.Hour, func() {})
	d.Stop()
	assert.True(t, d.IsStopped())
	d.Post(func() {})
	assert.Equal(t, 0, d.QueueLength())
	assert.Equal(t, AlarmId(0), d.PostDelayed(time.Millisecond, func() {}))
	assert.Equal(t, uint64(4), d.GetCounters().TasksDropped)
}

func TestDispatcher_RunExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := progctx.New(context.Background())
	d := NewDispatcher(ctx, DefaultConfig())
	go d.Run()
	waitQueue(t, d)
	ctx.Cancel(nil)
	ctx.Wait()
	require.True(t, d.IsStopped())
}

func TestAlarmMgr(t *testing.T) {
	am := newAlarmMgr()
	now := time.Now()
	a := am.Add(now.Add(time.Second), nil)
	b := am.Add(now, nil)
	c := am.Add(now, nil)
	assert.Equal(t, b, am.NextAlarm().Id)
	due := am.PopDue(now)
	require.Len(t, due, 2)
	assert.Equal(t, b, due[0].Id)
	assert.Equal(t, c, due[1].Id)
	assert.True(t, am.Remove(a))
	assert.Nil(t, am.NextAlarm())
}

func TestVirtualRunner_Advance(t *testing.T) {
	v := NewVirtualRunner()
	var order []string
	v.PostDelayed(2*time.Second, func() { order = append(order, "b") })
	v.PostDelayed(time.Second, func() {
		order = append(order, "a")
		v.PostDelayed(500*time.Millisecond, func() { order = append(order, "a2") })
	})
	id := v.PostDelayed(1200*time.Millisecond, func() { order = append(order, "cancelled") })
	v.Post(func() { order = append(order, "now") })

	require.True(t, v.CancelDelayed(id))
	v.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"now", "a", "a2"}, order)
	assert.Equal(t, 1500*time.Millisecond, v.Elapsed())
	assert.Equal(t, 1, v.PendingAlarms())

	v.Advance(time.Second)
	assert.Equal(t, []string{"now", "a", "a2", "b"}, order)
	assert.Equal(t, 0, v.PendingAlarms())
	assert.Equal(t, uint64(3), v.GetCounters().AlarmsFired)
}

func TestVirtualRunner_RunUntilIdleKeepsTime(t *testing.T) {
	v := NewVirtualRunner()
	n := 0
	var post func()
	post = func() {
		n++
		if n < 5 {
			v.Post(post)
		}
	}
	v.Post(post)
	v.RunUntilIdle()
	assert.Equal(t, 5, n)
	assert.Equal(t, time.Duration(0), v.Elapsed())
}
