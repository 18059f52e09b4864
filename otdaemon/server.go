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

// Package otdaemon implements the ot-daemon service: the Thread enablement lifecycle, the state
// notifications pushed to the platform client and the border router host configuration.
//
// All state is owned by the task queue. Public methods post a task and return immediately; results are
// delivered to the supplied receivers from the task queue goroutine.
package otdaemon

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/mdns"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/settings"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/types"
)

const (
	keyCountryCode = "country_code"

	msgNotInitialized = "OT is not initialized"
	msgDisabling      = "Thread is disabling"
	msgThreadDisabled = "Thread is disabled"
)

// ServerConfig holds the collaborators of a Server.
type ServerConfig struct {
	Runner otstack.TaskRunner
	// Stack is the OpenThread instance. A nil Stack leaves the server uninitialized: every operation that
	// needs the stack fails with OT_ERROR_INVALID_STATE.
	Stack otstack.Stack
	// Settings persists the country code across restarts. May be nil.
	Settings *settings.Namespace
	// Telemetry enables periodic telemetry uploads to TelemetrySink when both are set.
	Telemetry     *telemetry.Config
	TelemetrySink telemetry.Sink
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Terminate is called on the task queue when the client asks the daemon to exit.
	Terminate func()
}

type Server struct {
	cfg      ServerConfig
	runner   otstack.TaskRunner
	stack    otstack.Stack
	log      *logger.TaggedLogger
	mdns     *mdns.Publisher
	agent    *borderAgent
	reporter *telemetry.Reporter

	callback      Callback
	state         types.OtDaemonState
	threadEnabled types.ThreadEnabledState
	countryCode   string

	joinReceiver      pendingReceiver
	migrationReceiver pendingReceiver
	leaveCallbacks    []func()

	ephemeralKeyExpiry time.Time
	meshcopTxts        types.MeshcopTxtAttributes

	configuration    types.OtDaemonConfiguration
	infraLink        types.InfraLinkState
	infraIcmp6Socket int
	trelEnabled      bool

	otCtlReceiver    OutputReceiver
	otCtlInteractive bool
	otCtlComplete    bool
}

// NewServer creates a server driving cfg.Stack. The stack callbacks are bound to the new server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:           cfg,
		runner:        cfg.Runner,
		stack:         cfg.Stack,
		log:           logger.Tagged("Binder"),
		threadEnabled: types.ThreadStateDisabled,
	}
	s.mdns = mdns.NewPublisher(cfg.Runner, s.handleMdnsState)
	s.agent = newBorderAgent(cfg.Stack, s.mdns)

	if s.stack != nil {
		s.stack.SetCallbacks(otstack.Callbacks{
			StateChanged:        s.handleStateChanged,
			MulticastListener:   s.handleMulticastListenerEvent,
			EphemeralKeyChanged: s.handleEphemeralKeyChanged,
		})
		if cfg.Telemetry != nil && cfg.TelemetrySink != nil {
			s.reporter = telemetry.NewReporter(*cfg.Telemetry, cfg.Runner, s.stack.GetTelemetry, cfg.TelemetrySink)
		}
	}
	return s
}

func (s *Server) isInitialized() bool {
	return s.stack != nil
}

// track counts the result of op and forwards it to r, which may be nil.
func track(op string, r StatusReceiver) StatusReceiver {
	return Once(ReceiverFunc(func(err error) {
		code := types.ErrorCode(err)
		telemetry.RecordOperation(op, code)
		if r == nil {
			return
		}
		if err == nil {
			r.OnSuccess()
		} else {
			r.OnError(code, types.ErrorMessage(err))
		}
	}))
}

// Initialize brings the server into service for a newly connected client.
func (s *Server) Initialize(enabled bool, config types.OtDaemonConfiguration, nsd mdns.NsdPublisher,
	meshcopTxts types.MeshcopTxtAttributes, callback Callback, countryCode string) {
	s.runner.Post(func() {
		s.initializeInternal(enabled, config, nsd, meshcopTxts, callback, countryCode)
	})
}

func (s *Server) initializeInternal(enabled bool, config types.OtDaemonConfiguration, nsd mdns.NsdPublisher,
	meshcopTxts types.MeshcopTxtAttributes, callback Callback, countryCode string) {
	s.log.Infof("initialize: enabled=%v, countryCode=%q", enabled, countryCode)

	if countryCode == "" {
		countryCode = s.loadCountryCode()
	}
	if countryCode != "" {
		s.setCountryCodeInternal(countryCode, nil)
	}
	s.registerStateCallbackInternal(callback, -1)

	s.mdns.SetNsdPublisher(nsd)
	s.meshcopTxts = meshcopTxts
	if s.isInitialized() {
		instanceName := meshcopTxts.VendorName + " " + meshcopTxts.ModelName
		if err := s.agent.SetMeshCopServiceValues(instanceName, meshcopTxts); err != nil {
			s.log.Errorf("failed to set meshcop values: %v", err)
		}
		s.agent.SetEnabled(enabled)
		s.setConfigurationInternal(config, nil)
	}

	if enabled && s.isInitialized() {
		s.enableThread(nil)
	} else {
		s.updateThreadEnabledState(types.ThreadStateDisabled, nil)
	}

	if s.reporter != nil {
		s.reporter.Start()
	}
}

// Terminate asks the daemon process to exit.
func (s *Server) Terminate() {
	s.runner.Post(func() {
		s.log.Warnf("terminating ot-daemon process...")
		if s.reporter != nil {
			s.reporter.Stop()
		}
		if s.cfg.Terminate != nil {
			s.cfg.Terminate()
		}
	})
}

// ClientDied drops everything the disconnected client handed to the server. callback is the callback of
// the dead client: when another callback has been registered since, nothing is dropped. A nil callback
// drops the registered one unconditionally.
func (s *Server) ClientDied(callback Callback) {
	s.runner.Post(func() { s.clientDiedInternal(callback) })
}

func (s *Server) clientDiedInternal(callback Callback) {
	if callback != nil && callback != s.callback {
		s.log.Infof("dead callback is not registered, ignored")
		return
	}
	s.log.Errorf("system_server is dead, removing configs and callbacks...")
	s.meshcopTxts = types.MeshcopTxtAttributes{}
	s.mdns.SetNsdPublisher(nil)
	s.callback = nil
}

// Status is a point-in-time view of the server for diagnostics.
type Status struct {
	ThreadEnabled         types.ThreadEnabledState    `yaml:"-"`
	ThreadEnabledString   string                      `yaml:"thread_enabled"`
	Role                  string                      `yaml:"role"`
	State                 types.OtDaemonState         `yaml:"state"`
	BackboneRouter        types.BackboneRouterState   `yaml:"backbone_router"`
	Configuration         types.OtDaemonConfiguration `yaml:"configuration"`
	InfraLink             types.InfraLinkState        `yaml:"infra_link"`
	CountryCode           string                      `yaml:"country_code"`
	TrelEnabled           bool                        `yaml:"trel_enabled"`
	JoinPending           bool                        `yaml:"join_pending"`
	MigrationPending      bool                        `yaml:"migration_pending"`
	LeaveCallbacksPending int                         `yaml:"leave_callbacks_pending"`
	ClientRegistered      bool                        `yaml:"client_registered"`
	BorderAgentEnabled    bool                        `yaml:"border_agent_enabled"`
	MeshcopServices       int                         `yaml:"meshcop_services"`
	MeshcopTxts           types.MeshcopTxtAttributes  `yaml:"meshcop_txts"`
	TelemetryUploads      int                         `yaml:"telemetry_uploads"`
	Addresses             []types.Ipv6AddressInfo     `yaml:"addresses,omitempty"`
}

func (s *Server) status() Status {
	st := Status{
		ThreadEnabled:         s.threadEnabled,
		ThreadEnabledString:   s.threadEnabled.String(),
		Role:                  s.state.DeviceRole.String(),
		State:                 s.snapshot(),
		Configuration:         s.configuration,
		InfraLink:             s.infraLink,
		CountryCode:           s.countryCode,
		TrelEnabled:           s.trelEnabled,
		JoinPending:           s.joinReceiver.pending(),
		MigrationPending:      s.migrationReceiver.pending(),
		LeaveCallbacksPending: len(s.leaveCallbacks),
		ClientRegistered:      s.callback != nil,
		BorderAgentEnabled:    s.agent.IsEnabled(),
		MeshcopServices:       s.mdns.ServiceCount(),
		MeshcopTxts:           s.meshcopTxts,
	}
	if s.isInitialized() {
		st.BackboneRouter = s.getBackboneRouterState()
		st.Addresses = s.addresses()
	}
	if s.reporter != nil {
		st.TelemetryUploads = s.reporter.Uploads()
	}
	return st
}

// GetStatus returns the server status. It must not be called from the task queue goroutine.
func (s *Server) GetStatus(ctx context.Context) (Status, error) {
	var st Status
	err := s.call(ctx, func() { st = s.status() })
	return st, err
}

// call runs f on the task queue and waits for it to finish.
func (s *Server) call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	s.runner.Post(func() {
		f()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "task queue did not answer")
	}
}

// Mdns returns the mDNS publisher of the server. It must only be used on the task queue.
func (s *Server) Mdns() *mdns.Publisher {
	return s.mdns
}

func (s *Server) handleMdnsState(state mdns.State) {
	if state == mdns.StateReady {
		s.agent.Update()
	}
}
