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

// Package ipc exposes the ot-daemon server to platform clients over gRPC.
//
// The service is declared by hand: requests and responses are well-known protobuf types (Struct and the
// wrapper types), so no generated code is needed on either side. Operation failures are returned as gRPC
// status errors carrying the OpenThread error code as an Int32Value detail.
package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "otdaemon.OtDaemon"

// Method names of the service.
const (
	MethodSetThreadEnabled           = "SetThreadEnabled"
	MethodJoin                       = "Join"
	MethodLeave                      = "Leave"
	MethodScheduleMigration          = "ScheduleMigration"
	MethodSetCountryCode             = "SetCountryCode"
	MethodGetChannelMasks            = "GetChannelMasks"
	MethodSetChannelMaxPowers        = "SetChannelMaxPowers"
	MethodSetConfiguration           = "SetConfiguration"
	MethodSetInfraLinkInterfaceName  = "SetInfraLinkInterfaceName"
	MethodSetInfraLinkNat64Prefix    = "SetInfraLinkNat64Prefix"
	MethodSetInfraLinkDnsServers     = "SetInfraLinkDnsServers"
	MethodSetTrelEnabled             = "SetTrelEnabled"
	MethodActivateEphemeralKeyMode   = "ActivateEphemeralKeyMode"
	MethodDeactivateEphemeralKeyMode = "DeactivateEphemeralKeyMode"
	MethodTerminate                  = "Terminate"
	MethodGetStatus                  = "GetStatus"
	MethodDump                       = "Dump"

	StreamInitialize            = "Initialize"
	StreamRegisterStateCallback = "RegisterStateCallback"
	StreamRunOtCtlCommand       = "RunOtCtlCommand"
)

// OtDaemonServer is implemented by *Server.
type OtDaemonServer interface {
	isOtDaemonServer()
}

type unaryMethod struct {
	name   string
	newReq func() proto.Message
	call   func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error)
}

func (m unaryMethod) desc() grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: m.name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := m.newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return m.call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(m.name)}
			return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return m.call(s, ctx, req.(proto.Message))
			})
		},
	}
}

type streamMethod struct {
	name   string
	newReq func() proto.Message
	serve  func(s *Server, req proto.Message, stream grpc.ServerStream) error
}

func (m streamMethod) desc() grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName: m.name,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			req := m.newReq()
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return m.serve(srv.(*Server), req, stream)
		},
		ServerStreams: true,
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func newEmpty() proto.Message {
	return &emptypb.Empty{}
}

func newStructMsg() proto.Message {
	return &structpb.Struct{}
}

func newBool() proto.Message {
	return &wrapperspb.BoolValue{}
}

func newBytes() proto.Message {
	return &wrapperspb.BytesValue{}
}

func newString() proto.Message {
	return &wrapperspb.StringValue{}
}

func newInt64() proto.Message {
	return &wrapperspb.Int64Value{}
}

var unaryMethods = []unaryMethod{
	{MethodSetThreadEnabled, newBool, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setThreadEnabled(ctx, req.(*wrapperspb.BoolValue))
	}},
	{MethodJoin, newBytes, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.join(ctx, req.(*wrapperspb.BytesValue))
	}},
	{MethodLeave, newBool, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.leave(ctx, req.(*wrapperspb.BoolValue))
	}},
	{MethodScheduleMigration, newBytes, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.scheduleMigration(ctx, req.(*wrapperspb.BytesValue))
	}},
	{MethodSetCountryCode, newString, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setCountryCode(ctx, req.(*wrapperspb.StringValue))
	}},
	{MethodGetChannelMasks, newEmpty, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.getChannelMasks(ctx)
	}},
	{MethodSetChannelMaxPowers, newStructMsg, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setChannelMaxPowers(ctx, req.(*structpb.Struct))
	}},
	{MethodSetConfiguration, newStructMsg, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setConfiguration(ctx, req.(*structpb.Struct))
	}},
	{MethodSetInfraLinkInterfaceName, newStructMsg, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setInfraLinkInterfaceName(ctx, req.(*structpb.Struct))
	}},
	{MethodSetInfraLinkNat64Prefix, newString, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setInfraLinkNat64Prefix(ctx, req.(*wrapperspb.StringValue))
	}},
	{MethodSetInfraLinkDnsServers, newStructMsg, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setInfraLinkDnsServers(ctx, req.(*structpb.Struct))
	}},
	{MethodSetTrelEnabled, newBool, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.setTrelEnabled(ctx, req.(*wrapperspb.BoolValue))
	}},
	{MethodActivateEphemeralKeyMode, newInt64, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.activateEphemeralKeyMode(ctx, req.(*wrapperspb.Int64Value))
	}},
	{MethodDeactivateEphemeralKeyMode, newEmpty, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.deactivateEphemeralKeyMode(ctx)
	}},
	{MethodTerminate, newEmpty, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.terminate()
	}},
	{MethodGetStatus, newEmpty, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.getStatus(ctx)
	}},
	{MethodDump, newEmpty, func(s *Server, ctx context.Context, req proto.Message) (proto.Message, error) {
		return s.dump(ctx)
	}},
}

var streamMethods = []streamMethod{
	{StreamInitialize, newStructMsg, func(s *Server, req proto.Message, stream grpc.ServerStream) error {
		return s.initialize(req.(*structpb.Struct), stream)
	}},
	{StreamRegisterStateCallback, newInt64, func(s *Server, req proto.Message, stream grpc.ServerStream) error {
		return s.registerStateCallback(req.(*wrapperspb.Int64Value), stream)
	}},
	{StreamRunOtCtlCommand, newStructMsg, func(s *Server, req proto.Message, stream grpc.ServerStream) error {
		return s.runOtCtlCommand(req.(*structpb.Struct), stream)
	}},
}

// ServiceDesc describes the otdaemon.OtDaemon service.
var ServiceDesc = newServiceDesc()

func newServiceDesc() grpc.ServiceDesc {
	sd := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*OtDaemonServer)(nil),
		Metadata:    "otdaemon.proto",
	}
	for _, m := range unaryMethods {
		sd.Methods = append(sd.Methods, m.desc())
	}
	for _, m := range streamMethods {
		sd.Streams = append(sd.Streams, m.desc())
	}
	return sd
}

func streamDesc(name string) *grpc.StreamDesc {
	for i := range ServiceDesc.Streams {
		if ServiceDesc.Streams[i].StreamName == name {
			return &ServiceDesc.Streams[i]
		}
	}
	panic("unknown stream " + name)
}
