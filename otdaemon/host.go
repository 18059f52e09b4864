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
	"context"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strings"

	"github.com/openthread/ot-daemon/types"
)

const (
	routerUpgradeThresholdBorderRouter = 16
	routerUpgradeThresholdDefault      = 1
	leaderWeightBorderRouter           = 64
	leaderWeightDefault                = 32
)

// CLI commands whose output is collected by Dump.
var dumpCommands = []string{
	"state",
	"srp server state",
	"srp server service",
	"srp server host",
	"dataset activetimestamp",
	"dataset channel",
	"dataset channelmask",
	"dataset extpanid",
	"dataset meshlocalprefix",
	"dataset networkname",
	"dataset panid",
	"dataset securitypolicy",
	"leaderdata",
	"eidcache",
	"counters mac",
	"counters mle",
	"counters ip",
	"router table",
	"neighbor table",
	"ipaddr -v",
	"netdata show",
}

// SetConfiguration applies the platform feature configuration.
func (s *Server) SetConfiguration(config types.OtDaemonConfiguration, r StatusReceiver) {
	r = track("set_configuration", r)
	s.runner.Post(func() { s.setConfigurationInternal(config, r) })
}

// SetInfraLinkInterfaceName sets the infrastructure interface border routing runs on. icmp6Socket is the
// ICMPv6 socket opened by the platform on that interface.
func (s *Server) SetInfraLinkInterfaceName(interfaceName string, icmp6Socket int, r StatusReceiver) {
	r = track("set_infra_link_interface_name", r)
	s.runner.Post(func() { s.setInfraLinkInterfaceNameInternal(interfaceName, icmp6Socket, r) })
}

// SetInfraLinkNat64Prefix sets the NAT64 prefix discovered on the infrastructure link.
func (s *Server) SetInfraLinkNat64Prefix(nat64Prefix string, r StatusReceiver) {
	r = track("set_infra_link_nat64_prefix", r)
	s.runner.Post(func() { s.setInfraLinkNat64PrefixInternal(nat64Prefix, r) })
}

// SetInfraLinkDnsServers sets the upstream DNS servers of the infrastructure link.
func (s *Server) SetInfraLinkDnsServers(dnsServers []string, r StatusReceiver) {
	r = track("set_infra_link_dns_servers", r)
	servers := slices.Clone(dnsServers)
	s.runner.Post(func() { s.setInfraLinkDnsServersInternal(servers, r) })
}

// SetTrelEnabled enables or disables Thread Radio Encapsulation Link on the infrastructure interface.
func (s *Server) SetTrelEnabled(enabled bool, r StatusReceiver) {
	r = track("set_trel_enabled", r)
	s.runner.Post(func() {
		if !s.isInitialized() {
			propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
			return
		}
		s.setTrelEnabledInternal(enabled)
		r.OnSuccess()
	})
}

func (s *Server) setConfigurationInternal(config types.OtDaemonConfiguration, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if config.Dhcpv6PdEnabled {
		propagateResult(types.OT_ERROR_NOT_IMPLEMENTED, "DHCPv6-PD is not supported", r)
		return
	}

	s.log.Infof("Set configuration: borderRouter=%v, nat64=%v, srpWait=%v", config.BorderRouterEnabled,
		config.Nat64Enabled, config.SrpServerWaitForBorderRoutingEnabled)

	s.stack.SetNat64Enabled(config.Nat64Enabled)
	s.stack.SetDnsUpstreamQueryEnabled(config.Nat64Enabled)

	if err := s.stack.SetLinkMode(types.RouterLinkMode()); err != nil {
		propagateError(err, "Failed to set link mode", r)
		return
	}

	if config.BorderRouterEnabled {
		s.stack.SetRouterUpgradeThreshold(routerUpgradeThresholdBorderRouter)
		s.stack.SetLocalLeaderWeight(leaderWeightBorderRouter)
	} else {
		s.stack.SetRouterUpgradeThreshold(routerUpgradeThresholdDefault)
		s.stack.SetLocalLeaderWeight(leaderWeightDefault)
	}

	if config.BorderRouterEnabled && config.SrpServerWaitForBorderRoutingEnabled {
		s.stack.SetSrpServerAutoEnableMode(true)
	} else {
		// Fast start: the SRP server runs without waiting for border routing.
		s.stack.SetSrpServerAutoEnableMode(false)
		s.stack.SetSrpServerEnabled(true)
	}

	s.setBorderRouterEnabled(config.BorderRouterEnabled)
	s.configuration = config
	if r != nil {
		r.OnSuccess()
	}
}

func (s *Server) setBorderRouterEnabled(enabled bool) {
	if err := s.stack.SetBorderRoutingEnabled(enabled); err != nil {
		s.log.Warnf("failed to %s border routing: %v", enableString(enabled), err)
		return
	}
	s.stack.SetBackboneRouterEnabled(enabled)
}

func enableString(enabled bool) string {
	if enabled {
		return "enable"
	}
	return "disable"
}

func (s *Server) setInfraLinkInterfaceNameInternal(interfaceName string, icmp6Socket int, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if !s.configuration.BorderRouterEnabled {
		propagateResult(types.OT_ERROR_INVALID_STATE, "Set infra link state when border router is disabled", r)
		return
	}
	if s.infraLink.InterfaceName == interfaceName && s.infraIcmp6Socket == icmp6Socket {
		r.OnSuccess()
		return
	}

	if interfaceName != "" && icmp6Socket > 0 {
		if err := s.stack.SetBorderRoutingEnabled(false); err != nil {
			propagateError(err, "failed to disable border routing", r)
			return
		}
		if err := s.stack.InitBorderRouting(interfaceName); err != nil {
			propagateError(err, "failed to initialize border routing", r)
			return
		}
		if err := s.stack.SetBorderRoutingEnabled(true); err != nil {
			propagateError(err, "failed to enable border routing", r)
			return
		}
		s.stack.SetBackboneRouterEnabled(true)
	} else {
		if err := s.stack.SetBorderRoutingEnabled(false); err != nil {
			propagateError(err, "failed to disable border routing", r)
			return
		}
		s.stack.SetBackboneRouterEnabled(false)
	}

	s.infraLink.InterfaceName = interfaceName
	s.infraIcmp6Socket = icmp6Socket
	s.setTrelEnabledInternal(s.trelEnabled)
	r.OnSuccess()
}

func (s *Server) setTrelEnabledInternal(enabled bool) {
	s.trelEnabled = enabled
	if enabled {
		s.log.Infof("Enabling TREL")
	} else {
		s.log.Infof("Disabling TREL")
	}

	if err := s.stack.SetTrelEnabled(false, ""); err != nil {
		s.log.Warnf("failed to stop TREL: %v", err)
	}
	if enabled && s.infraLink.InterfaceName != "" {
		if err := s.stack.SetTrelEnabled(true, s.infraLink.InterfaceName); err != nil {
			s.log.Warnf("failed to start TREL on %s: %v", s.infraLink.InterfaceName, err)
		}
	}
}

func (s *Server) setInfraLinkNat64PrefixInternal(nat64Prefix string, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	s.log.Infof("Set infra link NAT64 prefix: %s", nat64Prefix)
	s.infraLink.Nat64Prefix = nat64Prefix
	s.stack.SetInfraNat64Prefix(nat64Prefix)
	r.OnSuccess()
}

func (s *Server) setInfraLinkDnsServersInternal(dnsServers []string, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	s.log.Infof("Set infra link DNS servers: %s", strings.Join(dnsServers, ", "))
	if slices.Equal(s.infraLink.DnsServers, dnsServers) {
		r.OnSuccess()
		return
	}

	var upstream []string
	for _, server := range dnsServers {
		addr, err := netip.ParseAddr(server)
		if err != nil {
			s.log.Warnf("invalid DNS server address %q", server)
			continue
		}
		// Only IPv4 servers are used, as IPv4-mapped addresses reached through NAT64.
		if addr.Is4() {
			upstream = append(upstream, netip.AddrFrom16(addr.As16()).String())
		}
	}
	s.infraLink.DnsServers = dnsServers
	s.stack.SetUpstreamDnsServers(upstream)
	r.OnSuccess()
}

// RunOtCtlCommand runs one ot-ctl command line. In non-interactive mode the receiver is completed after
// the final Done or Error line.
func (s *Server) RunOtCtlCommand(command string, interactive bool, r OutputReceiver) {
	s.runner.Post(func() { s.runOtCtlCommandInternal(command, interactive, r) })
}

func (s *Server) runOtCtlCommandInternal(command string, interactive bool, r OutputReceiver) {
	if !s.isInitialized() {
		r.OnOutput(fmt.Sprintf("Error %d: %s\r\n", int(types.OT_ERROR_INVALID_STATE), msgNotInitialized))
		r.OnComplete()
		return
	}
	if command == "" {
		return
	}

	s.otCtlReceiver = r
	s.otCtlInteractive = interactive
	s.otCtlComplete = false
	s.stack.CliInputLine(command, s.handleOtCtlOutput)
}

func (s *Server) handleOtCtlOutput(output string) {
	if s.otCtlReceiver == nil || output == "" || output == "> " {
		return
	}
	s.otCtlReceiver.OnOutput(output)
	if s.otCtlInteractive {
		return
	}

	if strings.HasPrefix(output, "Done") || strings.HasPrefix(output, "Error") {
		s.otCtlComplete = true
	}
	if s.otCtlComplete && strings.HasSuffix(output, "\r\n") {
		r := s.otCtlReceiver
		s.otCtlReceiver = nil
		s.otCtlComplete = false
		r.OnComplete()
	}
}

// dumpReceiver collects the output of one command.
type dumpReceiver struct {
	out  strings.Builder
	done bool
}

func (d *dumpReceiver) OnOutput(output string) {
	d.out.WriteString(output)
}

func (d *dumpReceiver) OnComplete() {
	d.done = true
}

func (s *Server) dumpInternal(w io.Writer) {
	st := s.status()
	fmt.Fprintf(w, "-- ot-daemon state --\n")
	fmt.Fprintf(w, "threadEnabled: %s\n", st.ThreadEnabled)
	fmt.Fprintf(w, "role: %s\n", st.Role)
	fmt.Fprintf(w, "countryCode: %s\n", st.CountryCode)
	fmt.Fprintf(w, "joinPending: %v, migrationPending: %v, leaveCallbacks: %d\n", st.JoinPending,
		st.MigrationPending, st.LeaveCallbacksPending)
	if !s.isInitialized() {
		fmt.Fprintf(w, "%s\n", msgNotInitialized)
		return
	}

	for _, cmd := range dumpCommands {
		d := &dumpReceiver{}
		s.runOtCtlCommandInternal(cmd, false, d)
		fmt.Fprintf(w, "-- %s --\n", cmd)
		io.WriteString(w, strings.ReplaceAll(d.out.String(), "\r\n", "\n"))
		if !d.done {
			fmt.Fprintf(w, "(incomplete)\n")
		}
	}
	// Drop the receiver of an incomplete command.
	s.otCtlReceiver = nil
}

// Dump writes a diagnostic report to w. It must not be called from the task queue goroutine.
func (s *Server) Dump(ctx context.Context, w io.Writer) error {
	var buf strings.Builder
	if err := s.call(ctx, func() { s.dumpInternal(&buf) }); err != nil {
		return err
	}
	_, err := io.WriteString(w, buf.String())
	return err
}
