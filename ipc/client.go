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
	"io"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/openthread/ot-daemon/otdaemon"
	"github.com/openthread/ot-daemon/types"
)

// Client calls the otdaemon.OtDaemon service. Operation errors are *types.Error values.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon at target ("unix:<path>" or "host:port").
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", target)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in proto.Message, out proto.Message) error {
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), in, out))
}

func (c *Client) call(ctx context.Context, method string, in proto.Message) error {
	return c.invoke(ctx, method, in, &emptypb.Empty{})
}

func (c *Client) SetThreadEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, MethodSetThreadEnabled, wrapperspb.Bool(enabled))
}

func (c *Client) Join(ctx context.Context, activeDatasetTlvs []byte) error {
	return c.call(ctx, MethodJoin, wrapperspb.Bytes(activeDatasetTlvs))
}

func (c *Client) Leave(ctx context.Context, eraseDataset bool) error {
	return c.call(ctx, MethodLeave, wrapperspb.Bool(eraseDataset))
}

func (c *Client) ScheduleMigration(ctx context.Context, pendingDatasetTlvs []byte) error {
	return c.call(ctx, MethodScheduleMigration, wrapperspb.Bytes(pendingDatasetTlvs))
}

func (c *Client) SetCountryCode(ctx context.Context, countryCode string) error {
	return c.call(ctx, MethodSetCountryCode, wrapperspb.String(countryCode))
}

func (c *Client) GetChannelMasks(ctx context.Context) (types.ChannelMasks, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodGetChannelMasks, &emptypb.Empty{}, out); err != nil {
		return types.ChannelMasks{}, err
	}
	return types.ChannelMasks{
		Supported: uint32(getNumber(out, "supported_channel_mask")),
		Preferred: uint32(getNumber(out, "preferred_channel_mask")),
	}, nil
}

func (c *Client) SetChannelMaxPowers(ctx context.Context, powers []types.ChannelMaxPower) error {
	return c.call(ctx, MethodSetChannelMaxPowers, newStruct(map[string]interface{}{
		"channel_max_powers": channelMaxPowersList(powers),
	}))
}

func (c *Client) SetConfiguration(ctx context.Context, config types.OtDaemonConfiguration) error {
	return c.call(ctx, MethodSetConfiguration, newStruct(configurationMap(config)))
}

func (c *Client) SetInfraLinkInterfaceName(ctx context.Context, interfaceName string, icmp6Socket int) error {
	return c.call(ctx, MethodSetInfraLinkInterfaceName, newStruct(map[string]interface{}{
		"interface_name": interfaceName,
		"icmp6_socket":   icmp6Socket,
	}))
}

func (c *Client) SetInfraLinkNat64Prefix(ctx context.Context, nat64Prefix string) error {
	return c.call(ctx, MethodSetInfraLinkNat64Prefix, wrapperspb.String(nat64Prefix))
}

func (c *Client) SetInfraLinkDnsServers(ctx context.Context, dnsServers []string) error {
	return c.call(ctx, MethodSetInfraLinkDnsServers, newStruct(map[string]interface{}{
		"dns_servers": stringList(dnsServers),
	}))
}

func (c *Client) SetTrelEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, MethodSetTrelEnabled, wrapperspb.Bool(enabled))
}

func (c *Client) ActivateEphemeralKeyMode(ctx context.Context, lifetime time.Duration) error {
	return c.call(ctx, MethodActivateEphemeralKeyMode, wrapperspb.Int64(lifetime.Milliseconds()))
}

func (c *Client) DeactivateEphemeralKeyMode(ctx context.Context) error {
	return c.call(ctx, MethodDeactivateEphemeralKeyMode, &emptypb.Empty{})
}

func (c *Client) Terminate(ctx context.Context) error {
	return c.call(ctx, MethodTerminate, &emptypb.Empty{})
}

// GetStatus returns the daemon status keyed by the YAML names of otdaemon.Status.
func (c *Client) GetStatus(ctx context.Context) (map[string]interface{}, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodGetStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Dump(ctx context.Context) (string, error) {
	out := &wrapperspb.StringValue{}
	if err := c.invoke(ctx, MethodDump, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// RunOtCtlCommand runs one ot-ctl command line and calls output for each output chunk. A non-interactive
// command returns once the daemon reports completion; an interactive one runs until ctx is done.
func (c *Client) RunOtCtlCommand(ctx context.Context, command string, interactive bool, output func(string)) error {
	stream, err := c.openStream(ctx, StreamRunOtCtlCommand, newStruct(map[string]interface{}{
		"command":     command,
		"interactive": interactive,
	}))
	if err != nil {
		return err
	}
	for {
		chunk := &wrapperspb.StringValue{}
		if err := stream.RecvMsg(chunk); err != nil {
			if err == io.EOF {
				return nil
			}
			return fromStatus(err)
		}
		output(chunk.GetValue())
	}
}

func (c *Client) openStream(ctx context.Context, name string, req proto.Message) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, streamDesc(name), fullMethod(name))
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}
	return stream, nil
}

// InitializeRequest holds the arguments of Initialize.
type InitializeRequest struct {
	Enabled       bool
	Configuration types.OtDaemonConfiguration
	MeshcopTxts   types.MeshcopTxtAttributes
	CountryCode   string
}

// Session is the client side of a callback stream.
type Session struct {
	ID     string
	stream grpc.ClientStream
	cb     otdaemon.Callback
}

// Initialize initializes the daemon and opens the client session. Notifications are delivered to cb by
// Session.Run. Cancelling ctx ends the session, which the daemon treats as the death of the client.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest, cb otdaemon.Callback) (*Session, error) {
	return c.openSession(ctx, StreamInitialize, newStruct(map[string]interface{}{
		"enabled":       req.Enabled,
		"configuration": configurationMap(req.Configuration),
		"meshcop_txts":  meshcopMap(req.MeshcopTxts),
		"country_code":  req.CountryCode,
	}), cb)
}

// RegisterStateCallback opens a callback session answered with listenerId.
func (c *Client) RegisterStateCallback(ctx context.Context, listenerId int64, cb otdaemon.Callback) (*Session, error) {
	return c.openSession(ctx, StreamRegisterStateCallback, wrapperspb.Int64(listenerId), cb)
}

func (c *Client) openSession(ctx context.Context, name string, req proto.Message, cb otdaemon.Callback) (*Session, error) {
	stream, err := c.openStream(ctx, name, req)
	if err != nil {
		return nil, err
	}
	hello := &structpb.Struct{}
	if err := stream.RecvMsg(hello); err != nil {
		return nil, fromStatus(err)
	}
	if getString(hello, "type") != eventSession {
		return nil, errors.Errorf("unexpected first event %q", getString(hello, "type"))
	}
	return &Session{ID: getString(hello, "session_id"), stream: stream, cb: cb}, nil
}

// Run delivers notifications until the stream ends. It returns nil when the daemon closed the session.
func (s *Session) Run() error {
	for {
		e := &structpb.Struct{}
		if err := s.stream.RecvMsg(e); err != nil {
			if err == io.EOF {
				return nil
			}
			return fromStatus(err)
		}
		if err := s.dispatch(e); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(e *structpb.Struct) error {
	switch getString(e, "type") {
	case EventStateChanged:
		st, err := stateFromStruct(getStruct(e, "state"))
		if err != nil {
			return err
		}
		s.cb.OnStateChanged(st, int64(getNumber(e, "listener_id")))
	case EventThreadEnabledChanged:
		s.cb.OnThreadEnabledChanged(types.ThreadEnabledState(getNumber(e, "enabled")))
	case EventBackboneRouterStateChanged:
		s.cb.OnBackboneRouterStateChanged(backboneRouterFromStruct(getStruct(e, "state")))
	case EventAddressChanged:
		s.cb.OnAddressChanged(addressesFromList(getList(e, "addresses")))
	}
	return nil
}
