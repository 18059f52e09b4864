// Copyright (c) 2020, The OTNS Authors.
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

package progctx

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	ctx := New(context.Background())
	_ = context.Context(ctx) // ProgCtx should implement context.Context
	ctx2 := New(nil)         // nolint
	assert.NoError(t, ctx2.Cause())
}

func TestProgCtx_Cancel(t *testing.T) {
	ctx := New(context.Background())
	err := errors.Errorf("test error")
	ctx.Cancel(err)
	ctx.Cancel(errors.Errorf("second error"))
	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
	assert.Equal(t, err, ctx.Cause())
}

func TestProgCtx_CancelCause(t *testing.T) {
	ctx := New(context.Background())
	ctx.Cancel(nil)
	assert.Equal(t, ErrExit, ctx.Cause())

	ctx = New(context.Background())
	ctx.Cancel("terminate requested")
	assert.EqualError(t, ctx.Cause(), "terminate requested")
}

func TestProgCtx_Wait(t *testing.T) {
	ctx := New(context.Background())
	ctx.WaitAdd("test1", 1)
	go func() {
		ctx.WaitDone("test1")
	}()

	ctx.WaitAdd("test2", 2)
	for i := 0; i < 2; i++ {
		go func() { defer ctx.WaitDone("test2") }()
	}

	ctx.WaitAdd("test3", 3)
	for i := 0; i < 3; i++ {
		go func() { defer ctx.WaitDone("test3") }()
	}

	ctx.Wait()
	assert.Equal(t, "", ctx.Running())
}

func TestProgCtx_WaitTimeout(t *testing.T) {
	ctx := New(context.Background())
	ctx.WaitAdd("stuck", 2)
	ctx.WaitAdd("dispatcher", 1)
	assert.Equal(t, "dispatcher, stuck x2", ctx.Running())

	ctx.WaitDone("dispatcher")
	assert.False(t, ctx.WaitTimeout(10*time.Millisecond))
	assert.Equal(t, 2, ctx.WaitCount())

	ctx.WaitDone("stuck")
	ctx.WaitDone("stuck")
	assert.True(t, ctx.WaitTimeout(time.Second))
}

func TestProgCtx_Defer(t *testing.T) {
	ctx := New(context.Background())
	calls := 0
	ctx.Defer(func() { calls++ })
	ctx.Defer(func() { calls++ })
	ctx.Cancel(nil)
	ctx.Cancel(nil)
	assert.Equal(t, 2, calls)
	assert.Panics(t, func() { ctx.Defer(func() {}) })
}

func TestProgCtx_Go(t *testing.T) {
	ctx := New(context.Background())
	ran := make(chan struct{})
	ctx.Go("worker", func() { close(ran) })
	<-ran
	ctx.Go("panicker", func() { panic("boom") })
	<-ctx.Done()
	ctx.Wait()
	assert.Equal(t, 0, ctx.WaitCount())
	assert.ErrorContains(t, ctx.Cause(), "routine panicker panicked: boom")
}
