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

package ipc

import (
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/types"
)

const (
	eventSession   = "session"
	eventQueueSize = 256
)

// session is the server side of one callback stream. It implements otdaemon.Callback; the callbacks run on
// the daemon task queue and never block on the stream. A client too slow to drain eventQueueSize events
// loses its session.
type session struct {
	id        uuid.UUID
	events    chan *structpb.Struct
	done      chan struct{}
	closeOnce sync.Once
	log       *logger.TaggedLogger
}

func newSession() *session {
	return &session{
		id:     uuid.New(),
		events: make(chan *structpb.Struct, eventQueueSize),
		done:   make(chan struct{}),
		log:    logger.Tagged("IPC"),
	}
}

func (ss *session) close() {
	ss.closeOnce.Do(func() { close(ss.done) })
}

func (ss *session) push(event map[string]interface{}) {
	select {
	case <-ss.done:
		return
	default:
	}
	select {
	case ss.events <- newStruct(event):
	default:
		// the client registers again and gets a full state on the new stream
		ss.log.Warnf("session %s: event queue full at %s, closing", ss.id, event["type"])
		ss.close()
	}
}

func (ss *session) sendHello(stream grpc.ServerStream) error {
	return stream.SendMsg(newStruct(map[string]interface{}{
		"type":       eventSession,
		"session_id": ss.id.String(),
	}))
}

// serve forwards events until the stream or the session ends.
func (ss *session) serve(stream grpc.ServerStream) error {
	ctxDone := stream.Context().Done()
	for {
		select {
		case e := <-ss.events:
			if err := stream.SendMsg(e); err != nil {
				return err
			}
		case <-ss.done:
			return nil
		case <-ctxDone:
			return status.FromContextError(stream.Context().Err()).Err()
		}
	}
}

func (ss *session) OnStateChanged(state types.OtDaemonState, listenerId int64) {
	ss.push(map[string]interface{}{
		"type":        EventStateChanged,
		"listener_id": listenerId,
		"state":       stateMap(state),
	})
}

func (ss *session) OnThreadEnabledChanged(state types.ThreadEnabledState) {
	ss.push(map[string]interface{}{
		"type":    EventThreadEnabledChanged,
		"enabled": int(state),
	})
}

func (ss *session) OnBackboneRouterStateChanged(state types.BackboneRouterState) {
	ss.push(map[string]interface{}{
		"type":  EventBackboneRouterStateChanged,
		"state": backboneRouterMap(state),
	})
}

func (ss *session) OnAddressChanged(addresses []types.Ipv6AddressInfo) {
	ss.push(map[string]interface{}{
		"type":      EventAddressChanged,
		"addresses": addressesList(addresses),
	})
}

// outputStream collects ot-ctl output on the task queue for the stream goroutine.
type outputStream struct {
	mu       sync.Mutex
	chunks   []string
	complete bool
	notify   chan struct{}
}

func newOutputStream() *outputStream {
	return &outputStream{notify: make(chan struct{}, 1)}
}

func (o *outputStream) OnOutput(output string) {
	o.mu.Lock()
	o.chunks = append(o.chunks, output)
	o.mu.Unlock()
	o.signal()
}

func (o *outputStream) OnComplete() {
	o.mu.Lock()
	o.complete = true
	o.mu.Unlock()
	o.signal()
}

func (o *outputStream) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outputStream) take() ([]string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	chunks := o.chunks
	o.chunks = nil
	return chunks, o.complete
}
