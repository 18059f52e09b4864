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

// Package progctx implements utilities for managing the context of a program.
package progctx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/simonlingoogle/go-simplelogger"
)

// ErrExit is the cause of a program context cancelled without an error.
var ErrExit = errors.New("program exit")

// ProgCtx represent the context of a program during it's lifetime.
type ProgCtx struct {
	context.Context // the inner context of the program
	wg              sync.WaitGroup
	cancel          context.CancelCauseFunc
	routinesLock    sync.Mutex
	routines        map[string]int
	deferredLock    sync.Mutex
	deferred        []func()
}

// New creates a new ProgCtx from the parent context.
func New(parent context.Context) *ProgCtx {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancelCause(parent)
	return &ProgCtx{
		Context:  ctx,
		cancel:   cancel,
		routines: map[string]int{},
	}
}

// Cancel cancels the program context. err is the cause: an error, a message, or nil for a normal exit.
// Only the first call has an effect; it runs the deferred functions.
func (ctx *ProgCtx) Cancel(err interface{}) {
	var cause error
	switch e := err.(type) {
	case nil:
		cause = ErrExit
	case error:
		cause = e
	default:
		cause = errors.Errorf("%v", e)
	}

	ctx.deferredLock.Lock()
	if ctx.Err() != nil {
		ctx.deferredLock.Unlock()
		return
	}
	ctx.cancel(cause)
	deferred := ctx.deferred
	ctx.deferred = nil
	ctx.deferredLock.Unlock()

	if cause == ErrExit {
		simplelogger.Infof("program exit")
	} else {
		simplelogger.TraceError("program exit: %v", cause)
	}

	for _, f := range deferred {
		f()
	}
}

// Cause returns why the context was cancelled: nil while it runs, ErrExit for a normal exit, or the error
// passed to Cancel.
func (ctx *ProgCtx) Cause() error {
	return context.Cause(ctx.Context)
}

// Defer registers a function to be called when the program context is cancelled.
// The function will be called when `Cancel` is first called.
func (ctx *ProgCtx) Defer(f func()) {
	ctx.deferredLock.Lock()
	defer ctx.deferredLock.Unlock()

	if ctx.Err() != nil {
		panic(errors.Errorf("Can not `Defer` after context is done"))
	}
	ctx.deferred = append(ctx.deferred, f)
}

// WaitAdd adds a new goroutine to wait for.
func (ctx *ProgCtx) WaitAdd(name string, delta int) {
	ctx.routinesLock.Lock()
	ctx.routines[name] += delta
	ctx.routinesLock.Unlock()

	ctx.wg.Add(delta)
}

// WaitDone notifies that a goroutine has finished.
func (ctx *ProgCtx) WaitDone(name string) {
	ctx.routinesLock.Lock()
	defer ctx.routinesLock.Unlock()

	if ctx.routines[name] <= 0 {
		simplelogger.Panicf("routine %s is not running, should not call WaitDone", name)
	}
	ctx.routines[name]--
	if ctx.routines[name] == 0 {
		delete(ctx.routines, name)
	}
	ctx.wg.Done()
}

// WaitCount returns the number of goroutines to wait for.
func (ctx *ProgCtx) WaitCount() int {
	ctx.routinesLock.Lock()
	defer ctx.routinesLock.Unlock()

	total := 0
	for _, c := range ctx.routines {
		total += c
	}
	return total
}

// Running describes the routines not yet done, e.g. "dispatcher, handleSignals x2".
func (ctx *ProgCtx) Running() string {
	ctx.routinesLock.Lock()
	defer ctx.routinesLock.Unlock()

	names := make([]string, 0, len(ctx.routines))
	for name, c := range ctx.routines {
		if c > 1 {
			name = fmt.Sprintf("%s x%d", name, c)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Wait waits for all goroutines to finish.
func (ctx *ProgCtx) Wait() {
	simplelogger.Infof("program context waiting routines: %s", ctx.Running())
	ctx.wg.Wait()
}

// WaitTimeout waits for all goroutines to finish for at most timeout. It returns false if some are still
// running.
func (ctx *ProgCtx) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		ctx.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		simplelogger.Warnf("routines still running after %v: %s", timeout, ctx.Running())
		return false
	}
}

// Go runs f in a new goroutine that the program context waits for under the given name.
// A panic in f cancels the program context.
func (ctx *ProgCtx) Go(name string, f func()) {
	ctx.WaitAdd(name, 1)
	go func() {
		defer ctx.WaitDone(name)
		defer func() {
			if r := recover(); r != nil {
				ctx.Cancel(errors.Errorf("routine %s panicked: %v", name, r))
			}
		}()
		f()
	}()
}
