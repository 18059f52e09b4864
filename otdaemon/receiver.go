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

package otdaemon

import (
	"sync"

	"github.com/openthread/ot-daemon/types"
)

// StatusReceiver receives the terminal result of one asynchronous operation.
type StatusReceiver interface {
	OnSuccess()
	OnError(code types.OtError, message string)
}

// ChannelMasksReceiver receives the result of GetChannelMasks.
type ChannelMasksReceiver interface {
	OnSuccess(supportedChannelMask, preferredChannelMask uint32)
	OnError(code types.OtError, message string)
}

// OutputReceiver receives the output of RunOtCtlCommand.
type OutputReceiver interface {
	OnOutput(output string)
	OnComplete()
}

// Callback is the client side of the state callback. A listener id of -1 means the notification is a
// broadcast rather than the answer to a registration.
type Callback interface {
	OnStateChanged(state types.OtDaemonState, listenerId int64)
	OnThreadEnabledChanged(state types.ThreadEnabledState)
	OnBackboneRouterStateChanged(state types.BackboneRouterState)
	OnAddressChanged(addresses []types.Ipv6AddressInfo)
}

// onceReceiver forwards at most one result.
type onceReceiver struct {
	once sync.Once
	r    StatusReceiver
}

// Once wraps r so that only the first result is delivered. A nil r stays nil.
func Once(r StatusReceiver) StatusReceiver {
	if r == nil {
		return nil
	}
	if o, ok := r.(*onceReceiver); ok {
		return o
	}
	return &onceReceiver{r: r}
}

func (o *onceReceiver) OnSuccess() {
	o.once.Do(o.r.OnSuccess)
}

func (o *onceReceiver) OnError(code types.OtError, message string) {
	o.once.Do(func() { o.r.OnError(code, message) })
}

// ReceiverFunc adapts a function to a StatusReceiver. It is called with nil on success and with a
// *types.Error otherwise.
type ReceiverFunc func(err error)

func (f ReceiverFunc) OnSuccess() {
	f(nil)
}

func (f ReceiverFunc) OnError(code types.OtError, message string) {
	f(&types.Error{Code: code, Message: message})
}

// ResultChan returns a receiver that delivers its result on the returned channel.
func ResultChan() (StatusReceiver, <-chan error) {
	ch := make(chan error, 1)
	return Once(ReceiverFunc(func(err error) { ch <- err })), ch
}

// propagateResult folds OT_ERROR_NONE and OT_ERROR_ALREADY into success. A nil receiver is ignored.
func propagateResult(code types.OtError, message string, r StatusReceiver) {
	if r == nil {
		return
	}
	if code == types.OT_ERROR_NONE || code == types.OT_ERROR_ALREADY {
		r.OnSuccess()
	} else {
		r.OnError(code, message)
	}
}

// propagateError reports err with the given message, or success if err is nil.
func propagateError(err error, message string, r StatusReceiver) {
	propagateResult(types.ErrorCode(err), message, r)
}

// pendingReceiver holds at most one receiver waiting for an asynchronous result.
type pendingReceiver struct {
	r StatusReceiver
}

func (p *pendingReceiver) pending() bool {
	return p.r != nil
}

// install aborts the held receiver, if any, and holds r instead.
func (p *pendingReceiver) install(r StatusReceiver, abortMessage string) {
	if p.r != nil {
		p.r.OnError(types.OT_ERROR_ABORT, abortMessage)
	}
	p.r = r
}

// take releases the held receiver.
func (p *pendingReceiver) take() StatusReceiver {
	r := p.r
	p.r = nil
	return r
}
