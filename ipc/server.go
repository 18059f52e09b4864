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
	"context"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/mdns"
	"github.com/openthread/ot-daemon/otdaemon"
	"github.com/openthread/ot-daemon/types"
)

// Server serves the otdaemon.OtDaemon service for one daemon.
type Server struct {
	daemon *otdaemon.Server
	server *grpc.Server
	nsd    mdns.NsdPublisher
	log    *logger.TaggedLogger

	mu       sync.Mutex
	client   *session
	sessions map[*session]struct{}
}

// NewServer creates the IPC server of daemon. nsd is handed to the daemon on every Initialize and may be nil.
func NewServer(daemon *otdaemon.Server, nsd mdns.NsdPublisher, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ReadBufferSize(1024 * 8), grpc.WriteBufferSize(1024 * 64)}, opts...)
	s := &Server{
		daemon:   daemon,
		server:   grpc.NewServer(opts...),
		nsd:      nsd,
		log:      logger.Tagged("IPC"),
		sessions: map[*session]struct{}{},
	}
	s.server.RegisterService(&ServiceDesc, s)
	return s
}

func (s *Server) isOtDaemonServer() {}

// Listen opens the listener for address, which is either "unix:<path>" or a TCP "host:port".
func Listen(address string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(address, "unix:"); ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "remove stale socket %s", path)
		}
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", address)
}

// Serve serves lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infof("serving on %s ...", lis.Addr())
	err := s.server.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop closes all sessions and the listeners.
func (s *Server) Stop() {
	s.mu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()
	s.server.Stop()
}

// SessionCount returns the number of open callback streams.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.close()
}

// await waits for the result of one operation posted with r.
func await(ctx context.Context, post func(r otdaemon.StatusReceiver)) (proto.Message, error) {
	r, ch := otdaemon.ResultChan()
	post(r)
	select {
	case err := <-ch:
		if err != nil {
			return nil, toStatus(err)
		}
		return &emptypb.Empty{}, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func (s *Server) setThreadEnabled(ctx context.Context, req *wrapperspb.BoolValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetThreadEnabled(req.GetValue(), r) })
}

func (s *Server) join(ctx context.Context, req *wrapperspb.BytesValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.Join(req.GetValue(), r) })
}

func (s *Server) leave(ctx context.Context, req *wrapperspb.BoolValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.Leave(req.GetValue(), r) })
}

func (s *Server) scheduleMigration(ctx context.Context, req *wrapperspb.BytesValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.ScheduleMigration(req.GetValue(), r) })
}

func (s *Server) setCountryCode(ctx context.Context, req *wrapperspb.StringValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetCountryCode(req.GetValue(), r) })
}

type channelMasksResult struct {
	masks types.ChannelMasks
	err   error
}

type channelMasksReceiver chan channelMasksResult

func (c channelMasksReceiver) OnSuccess(supported, preferred uint32) {
	c <- channelMasksResult{masks: types.ChannelMasks{Supported: supported, Preferred: preferred}}
}

func (c channelMasksReceiver) OnError(code types.OtError, message string) {
	c <- channelMasksResult{err: &types.Error{Code: code, Message: message}}
}

func (s *Server) getChannelMasks(ctx context.Context) (proto.Message, error) {
	ch := make(channelMasksReceiver, 1)
	s.daemon.GetChannelMasks(ch)
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, toStatus(res.err)
		}
		return newStruct(map[string]interface{}{
			"supported_channel_mask": res.masks.Supported,
			"preferred_channel_mask": res.masks.Preferred,
		}), nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func (s *Server) setChannelMaxPowers(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	powers := channelMaxPowersFromList(getList(req, "channel_max_powers"))
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetChannelMaxPowers(powers, r) })
}

func (s *Server) setConfiguration(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	config := configurationFromStruct(req)
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetConfiguration(config, r) })
}

func (s *Server) setInfraLinkInterfaceName(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	name, socket := getString(req, "interface_name"), int(getNumber(req, "icmp6_socket"))
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetInfraLinkInterfaceName(name, socket, r) })
}

func (s *Server) setInfraLinkNat64Prefix(ctx context.Context, req *wrapperspb.StringValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetInfraLinkNat64Prefix(req.GetValue(), r) })
}

func (s *Server) setInfraLinkDnsServers(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	servers := getStrings(req, "dns_servers")
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetInfraLinkDnsServers(servers, r) })
}

func (s *Server) setTrelEnabled(ctx context.Context, req *wrapperspb.BoolValue) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.SetTrelEnabled(req.GetValue(), r) })
}

func (s *Server) activateEphemeralKeyMode(ctx context.Context, req *wrapperspb.Int64Value) (proto.Message, error) {
	return await(ctx, func(r otdaemon.StatusReceiver) { s.daemon.ActivateEphemeralKeyMode(req.GetValue(), r) })
}

func (s *Server) deactivateEphemeralKeyMode(ctx context.Context) (proto.Message, error) {
	return await(ctx, s.daemon.DeactivateEphemeralKeyMode)
}

func (s *Server) terminate() (proto.Message, error) {
	s.log.Infof("terminate requested")
	s.daemon.Terminate()
	return &emptypb.Empty{}, nil
}

func (s *Server) getStatus(ctx context.Context) (proto.Message, error) {
	st, err := s.daemon.GetStatus(ctx)
	if err != nil {
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	}
	m, err := statusMap(st)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(m)
}

// statusMap converts st through its YAML form, so the keys match the YAML tags of otdaemon.Status.
func statusMap(st otdaemon.Status) (map[string]interface{}, error) {
	data, err := yaml.Marshal(st)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	err = yaml.Unmarshal(data, &m)
	return m, err
}

func (s *Server) dump(ctx context.Context) (proto.Message, error) {
	var sb strings.Builder
	if err := s.daemon.Dump(ctx, &sb); err != nil {
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	}
	return wrapperspb.String(sb.String()), nil
}

// initialize serves the stream of the platform client. The stream lives as long as the client: once it
// ends, the daemon drops everything the client handed to it unless a newer callback has been registered.
func (s *Server) initialize(req *structpb.Struct, stream grpc.ServerStream) error {
	meshcop, err := meshcopFromStruct(getStruct(req, "meshcop_txts"))
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	sess := newSession()
	s.addSession(sess)
	s.mu.Lock()
	prev := s.client
	s.client = sess
	s.mu.Unlock()
	if prev != nil {
		s.log.Warnf("session %s replaced by %s", prev.id, sess.id)
		prev.close()
	}

	s.log.Infof("session %s: initialize", sess.id)
	s.daemon.Initialize(getBool(req, "enabled"), configurationFromStruct(getStruct(req, "configuration")), s.nsd,
		meshcop, sess, getString(req, "country_code"))
	if err = sess.sendHello(stream); err == nil {
		err = sess.serve(stream)
	}

	s.mu.Lock()
	if s.client == sess {
		s.client = nil
	}
	s.mu.Unlock()
	s.closeSession(sess)
	return err
}

// registerStateCallback serves a callback stream. The callback stays registered until the stream ends or
// another callback replaces it.
func (s *Server) registerStateCallback(req *wrapperspb.Int64Value, stream grpc.ServerStream) error {
	sess := newSession()
	s.addSession(sess)
	defer s.closeSession(sess)

	s.daemon.RegisterStateCallback(sess, req.GetValue())
	if err := sess.sendHello(stream); err != nil {
		return err
	}
	return sess.serve(stream)
}

// closeSession reports the end of a callback stream to the daemon. The daemon drops the client state only
// while sess is its registered callback.
func (s *Server) closeSession(sess *session) {
	s.log.Infof("session %s: closed", sess.id)
	sess.close()
	s.daemon.ClientDied(sess)
	s.removeSession(sess)
}

func (s *Server) runOtCtlCommand(req *structpb.Struct, stream grpc.ServerStream) error {
	out := newOutputStream()
	s.daemon.RunOtCtlCommand(getString(req, "command"), getBool(req, "interactive"), out)

	ctxDone := stream.Context().Done()
	for {
		select {
		case <-out.notify:
			chunks, complete := out.take()
			for _, c := range chunks {
				if err := stream.SendMsg(wrapperspb.String(c)); err != nil {
					return err
				}
			}
			if complete {
				return nil
			}
		case <-ctxDone:
			return status.FromContextError(stream.Context().Err()).Err()
		}
	}
}
