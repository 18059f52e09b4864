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

package otcli

import (
	"encoding/hex"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

type Config struct {
	CommandTimeout time.Duration
	// PollInterval is the period of the state poll that synthesizes state changed notifications.
	PollInterval time.Duration
	// DetachPollInterval is the period of role checks during a graceful detach.
	DetachPollInterval time.Duration
	DetachTimeout      time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		CommandTimeout:     DefaultCommandTimeout,
		PollInterval:       time.Second,
		DetachPollInterval: 100 * time.Millisecond,
		DetachTimeout:      10 * time.Second,
	}
}

// polled is the state compared between polls.
type polled struct {
	ifUp          bool
	role          types.OtDeviceRole
	partitionId   uint32
	active        string
	pending       string
	bbrPrimary    bool
	listeners     []string
	ephemeralKey  string
	supportedMask uint32
}

// Stack is an otstack.Stack backed by the CLI of an OpenThread process. The CLI has no notifications, so
// state changes are detected by polling on the task runner.
type Stack struct {
	proc   *Process
	cfg    Config
	runner otstack.TaskRunner
	cb     otstack.Callbacks
	log    *logger.TaggedLogger

	last      polled
	pollAlarm dispatcher.AlarmId
	detaching bool
	closed    bool

	infraNat64Prefix string
	dnsServers       []string
}

var _ otstack.Stack = (*Stack)(nil)

// NewStack creates a Stack for proc. Polling starts with the first SetCallbacks.
func NewStack(proc *Process, cfg *Config, runner otstack.TaskRunner) (*Stack, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Stack{
		proc:   proc,
		cfg:    *cfg,
		runner: runner,
		log:    logger.Tagged("OtCli"),
	}
	if err := proc.AssurePrompt(time.Second); err != nil {
		return nil, err
	}
	version, err := proc.CommandExpectString("version", s.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}
	s.log.Infof("connected to %s, version %s", proc, version)
	s.last = s.poll()
	return s, nil
}

func (s *Stack) command(cmd string) ([]string, error) {
	return s.proc.Command(cmd, s.cfg.CommandTimeout)
}

func (s *Stack) commandString(cmd string) (string, error) {
	return s.proc.CommandExpectString(cmd, s.cfg.CommandTimeout)
}

// commandLogged runs cmd for a setter that cannot report errors.
func (s *Stack) commandLogged(cmd string) {
	if _, err := s.command(cmd); err != nil {
		s.log.Warnf("%s: %v", cmd, err)
	}
}

func (s *Stack) commandErr(cmd string) error {
	_, err := s.command(cmd)
	return err
}

func enableDisable(enabled bool) string {
	if enabled {
		return "enable"
	}
	return "disable"
}

func (s *Stack) SetCallbacks(cb otstack.Callbacks) {
	s.cb = cb
	if s.pollAlarm == 0 {
		s.schedulePoll()
	}
}

func (s *Stack) schedulePoll() {
	if s.closed {
		return
	}
	s.pollAlarm = s.runner.PostDelayed(s.cfg.PollInterval, func() {
		s.pollAlarm = 0
		s.checkChanges()
		s.schedulePoll()
	})
}

func (s *Stack) poll() polled {
	var p polled
	if v, err := s.commandString("ifconfig"); err == nil {
		p.ifUp = v == "up"
	}
	p.role = s.GetDeviceRole()
	p.partitionId = s.GetPartitionId()
	if v, err := s.commandString("dataset active -x"); err == nil {
		p.active = v
	}
	if v, err := s.commandString("dataset pending -x"); err == nil {
		p.pending = v
	}
	p.bbrPrimary = s.IsBackboneRouterPrimary()
	p.listeners = s.GetMulticastListeners()
	p.ephemeralKey, _ = s.commandString("ba ephemeralkey")
	p.supportedMask = s.GetSupportedChannelMask()
	return p
}

// checkChanges compares the current state with the last poll and delivers the differences.
func (s *Stack) checkChanges() {
	if s.closed {
		return
	}
	cur := s.poll()
	prev := s.last
	s.last = cur

	var flags types.OtChangedFlags
	if cur.ifUp != prev.ifUp {
		flags |= types.OT_CHANGED_THREAD_NETIF_STATE
	}
	if cur.role != prev.role {
		flags |= types.OT_CHANGED_THREAD_ROLE
	}
	if cur.partitionId != prev.partitionId {
		flags |= types.OT_CHANGED_THREAD_PARTITION_ID
	}
	if cur.active != prev.active {
		flags |= types.OT_CHANGED_ACTIVE_DATASET
	}
	if cur.pending != prev.pending {
		flags |= types.OT_CHANGED_PENDING_DATASET
	}
	if cur.bbrPrimary != prev.bbrPrimary {
		flags |= types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE
	}
	if cur.supportedMask != prev.supportedMask {
		flags |= types.OT_CHANGED_SUPPORTED_CHANNEL_MASK
	}
	if flags != 0 && s.cb.StateChanged != nil {
		s.log.Debugf("state changed 0x%08x", uint32(flags))
		s.cb.StateChanged(flags)
	}

	if s.cb.MulticastListener != nil {
		for _, a := range cur.listeners {
			if !slices.Contains(prev.listeners, a) {
				s.cb.MulticastListener(otstack.MulticastListenerAdded, a)
			}
		}
		for _, a := range prev.listeners {
			if !slices.Contains(cur.listeners, a) {
				s.cb.MulticastListener(otstack.MulticastListenerRemoved, a)
			}
		}
	}
	if cur.ephemeralKey != prev.ephemeralKey && s.cb.EphemeralKeyChanged != nil {
		s.cb.EphemeralKeyChanged()
	}
}

func (s *Stack) GetDeviceRole() types.OtDeviceRole {
	v, err := s.commandString("state")
	if err != nil {
		return types.OtDeviceRoleDisabled
	}
	role, ok := types.ParseOtDeviceRole(v)
	if !ok {
		s.log.Warnf("unknown role %q", v)
	}
	return role
}

func (s *Stack) GetPartitionId() uint32 {
	v, err := s.commandString("partitionid")
	if err != nil {
		return 0
	}
	id, _ := strconv.ParseUint(v, 0, 32)
	return uint32(id)
}

func (s *Stack) IsIp6Enabled() bool {
	v, err := s.commandString("ifconfig")
	return err == nil && v == "up"
}

func (s *Stack) SetIp6Enabled(enabled bool) error {
	if enabled {
		return s.commandErr("ifconfig up")
	}
	return s.commandErr("ifconfig down")
}

func (s *Stack) SetThreadEnabled(enabled bool) error {
	if enabled {
		return s.commandErr("thread start")
	}
	return s.commandErr("thread stop")
}

func (s *Stack) getDataset(cmd string) ([]byte, error) {
	v, err := s.commandString(cmd)
	if err != nil {
		return nil, err
	}
	tlvs, err := hex.DecodeString(v)
	if err != nil {
		return nil, types.NewError(types.OT_ERROR_PARSE, "%s: %v", cmd, err)
	}
	if len(tlvs) == 0 {
		return nil, types.NewError(types.OT_ERROR_NOT_FOUND, "%s: empty", cmd)
	}
	return tlvs, nil
}

func (s *Stack) GetActiveDatasetTlvs() ([]byte, error) {
	return s.getDataset("dataset active -x")
}

func (s *Stack) GetPendingDatasetTlvs() ([]byte, error) {
	return s.getDataset("dataset pending -x")
}

func (s *Stack) SetActiveDatasetTlvs(tlvs []byte) error {
	if _, err := dataset.Parse(tlvs); err != nil {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "%v", err)
	}
	return s.commandErr("dataset set active " + hex.EncodeToString(tlvs))
}

func (s *Stack) ErasePersistentInfo() error {
	if s.GetDeviceRole() != types.OtDeviceRoleDisabled {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "Thread is running")
	}
	s.log.Warnf("factoryreset")
	if err := s.proc.inputCommand("factoryreset"); err != nil {
		return err
	}
	if err := s.proc.AssurePrompt(s.cfg.CommandTimeout); err != nil {
		return err
	}
	s.log.Infof("factoryreset complete")
	return nil
}

func (s *Stack) DetachGracefully(done func()) error {
	if s.detaching {
		return types.NewError(types.OT_ERROR_BUSY, "detach in progress")
	}
	if err := s.commandErr("detach async"); err != nil {
		return err
	}
	s.detaching = true
	deadline := time.Now().Add(s.cfg.DetachTimeout)

	var check func()
	check = func() {
		if s.closed {
			return
		}
		if s.GetDeviceRole() == types.OtDeviceRoleDisabled || time.Now().After(deadline) {
			s.detaching = false
			done()
			return
		}
		s.runner.PostDelayed(s.cfg.DetachPollInterval, check)
	}
	s.runner.PostDelayed(s.cfg.DetachPollInterval, check)
	return nil
}

// SendMgmtPendingSet sends the request with the CLI. The CLI does not report the response of the leader,
// so done reports the result of sending.
func (s *Stack) SendMgmtPendingSet(tlvs []byte, done func(err error)) error {
	if err := s.commandErr("dataset mgmtsetcommand pending -x " + hex.EncodeToString(tlvs)); err != nil {
		return err
	}
	s.runner.Post(func() { done(nil) })
	return nil
}

func (s *Stack) SetRegion(regionCode uint16) error {
	return s.commandErr(fmt.Sprintf("region %c%c", byte(regionCode>>8), byte(regionCode)))
}

func (s *Stack) GetRegion() (uint16, error) {
	v, err := s.commandString("region")
	if err != nil {
		return 0, err
	}
	if len(v) != 2 {
		return 0, types.NewError(types.OT_ERROR_PARSE, "region %q", v)
	}
	return uint16(v[0])<<8 | uint16(v[1]), nil
}

func (s *Stack) channelMask(cmd string) uint32 {
	v, err := s.commandString(cmd)
	if err != nil {
		return 0
	}
	mask, _ := strconv.ParseUint(v, 0, 32)
	return uint32(mask)
}

func (s *Stack) GetSupportedChannelMask() uint32 {
	return s.channelMask("channel supported")
}

func (s *Stack) GetPreferredChannelMask() uint32 {
	return s.channelMask("channel preferred")
}

func (s *Stack) SetChannelMaxTransmitPower(channel int, maxPower int16) error {
	return types.NewError(types.OT_ERROR_NOT_IMPLEMENTED, "channel max power is not available on the CLI")
}

func (s *Stack) SetLinkMode(mode types.LinkMode) error {
	return s.commandErr("mode " + mode.String())
}

func (s *Stack) GetLinkMode() types.LinkMode {
	v, _ := s.commandString("mode")
	return types.ParseLinkMode(v)
}

func (s *Stack) SetRouterUpgradeThreshold(threshold uint8) {
	s.commandLogged(fmt.Sprintf("routerupgradethreshold %d", threshold))
}

func (s *Stack) SetLocalLeaderWeight(weight uint8) {
	s.commandLogged(fmt.Sprintf("leaderweight %d", weight))
}

func (s *Stack) SetNat64Enabled(enabled bool) {
	s.commandLogged("nat64 " + enableDisable(enabled))
}

func (s *Stack) SetDnsUpstreamQueryEnabled(enabled bool) {
	s.commandLogged("dns server upstream " + enableDisable(enabled))
}

func (s *Stack) SetSrpServerAutoEnableMode(enabled bool) {
	s.commandLogged("srp server auto " + enableDisable(enabled))
}

func (s *Stack) SetSrpServerEnabled(enabled bool) {
	s.commandLogged("srp server " + enableDisable(enabled))
}

func (s *Stack) InitBorderRouting(infraIfName string) error {
	ifc, err := net.InterfaceByName(infraIfName)
	if err != nil {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "%v", err)
	}
	running := 0
	if ifc.Flags&net.FlagRunning != 0 {
		running = 1
	}
	return s.commandErr(fmt.Sprintf("br init %d %d", ifc.Index, running))
}

func (s *Stack) SetBorderRoutingEnabled(enabled bool) error {
	return s.commandErr("br " + enableDisable(enabled))
}

func (s *Stack) SetBackboneRouterEnabled(enabled bool) {
	s.commandLogged("bbr " + enableDisable(enabled))
}

func (s *Stack) IsBackboneRouterPrimary() bool {
	v, err := s.commandString("bbr state")
	return err == nil && v == "Primary"
}

func (s *Stack) GetMulticastListeners() []string {
	lines, err := s.command("bbr mgmt mlr listener")
	if err != nil {
		return nil
	}
	var listeners []string
	for _, l := range lines {
		if f := strings.Fields(l); len(f) > 0 {
			listeners = append(listeners, f[0])
		}
	}
	return listeners
}

func (s *Stack) SetTrelEnabled(enabled bool, infraIfName string) error {
	return s.commandErr("trel " + enableDisable(enabled))
}

// SetInfraNat64Prefix records the prefix. The CLI process discovers the infrastructure prefix itself.
func (s *Stack) SetInfraNat64Prefix(prefix string) {
	s.infraNat64Prefix = prefix
	s.log.Debugf("infrastructure NAT64 prefix %q", prefix)
}

// SetUpstreamDnsServers records the servers. The CLI process reads resolv.conf itself.
func (s *Stack) SetUpstreamDnsServers(servers []string) {
	s.dnsServers = slices.Clone(servers)
	s.log.Debugf("upstream DNS servers %v", servers)
}

func (s *Stack) SetBorderAgentEnabled(enabled bool) {
	s.commandLogged("ba " + enableDisable(enabled))
}

func (s *Stack) SetBorderAgentMeshcopService(instanceName string, vendorTxt []byte) {
	s.commandLogged("ba servicebasename " + instanceName)
	if len(vendorTxt) > 0 {
		s.log.Debugf("vendor TXT data %x is published by the daemon", vendorTxt)
	}
}

func (s *Stack) SetEphemeralKey(passcode string, lifetime time.Duration) error {
	return s.commandErr(fmt.Sprintf("ba ephemeralkey start %s %d", passcode, lifetime.Milliseconds()))
}

func (s *Stack) ClearEphemeralKey() {
	s.commandLogged("ba ephemeralkey stop")
}

func (s *Stack) ephemeralKeyState() string {
	v, _ := s.commandString("ba ephemeralkey state")
	return v
}

func (s *Stack) IsEphemeralKeyActive() bool {
	switch s.ephemeralKeyState() {
	case "Started", "Connected", "Accepted":
		return true
	}
	return false
}

func (s *Stack) IsEphemeralKeyInUse() bool {
	switch s.ephemeralKeyState() {
	case "Connected", "Accepted":
		return true
	}
	return false
}

// parseIpAddr parses a line of 'ipaddr -v': "fd00:db8::1 origin:thread plen:64 preferred:1 valid:1".
func parseIpAddr(line string) (types.Ipv6AddressInfo, bool) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return types.Ipv6AddressInfo{}, false
	}
	info := types.Ipv6AddressInfo{Address: f[0], PrefixLength: 64}
	for _, kv := range f[1:] {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			continue
		}
		switch k {
		case "plen":
			if n, err := strconv.ParseUint(v, 10, 8); err == nil {
				info.PrefixLength = uint8(n)
			}
		case "preferred":
			info.IsPreferred = v == "1"
		}
	}
	return info, true
}

func (s *Stack) GetUnicastAddresses() []types.Ipv6AddressInfo {
	lines, err := s.command("ipaddr -v")
	if err != nil {
		return nil
	}
	mlp := s.meshLocalPrefix()
	var addrs []types.Ipv6AddressInfo
	for _, l := range lines {
		if info, ok := parseIpAddr(l); ok {
			info.IsMeshLocal = mlp != "" && strings.HasPrefix(info.Address, mlp)
			addrs = append(addrs, info)
		}
	}
	return addrs
}

func (s *Stack) meshLocalPrefix() string {
	v, err := s.commandString("prefix meshlocal")
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(v, ":/64")
}

func (s *Stack) GetMulticastAddresses() []types.Ipv6AddressInfo {
	lines, err := s.command("ipmaddr")
	if err != nil {
		return nil
	}
	var addrs []types.Ipv6AddressInfo
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			addrs = append(addrs, types.Ipv6AddressInfo{Address: l, PrefixLength: 128, IsMulticast: true})
		}
	}
	return addrs
}

func (s *Stack) GetTelemetry() (*otstack.TelemetryData, error) {
	td := &otstack.TelemetryData{
		Role:     s.GetDeviceRole(),
		LinkMode: s.GetLinkMode(),
		Version:  s.GetVersion(),
	}
	if v, err := s.commandString("channel"); err == nil {
		td.Channel, _ = strconv.Atoi(v)
	}
	if v, err := s.commandString("rloc16"); err == nil {
		rloc16, _ := strconv.ParseUint(v, 16, 16)
		td.Rloc16 = uint16(rloc16)
		td.RouterId = uint8(rloc16 >> 10)
	}
	if v, err := s.commandString("extaddr"); err == nil {
		td.ExtAddress, _ = strconv.ParseUint(v, 16, 64)
	}
	if lines, err := s.command("leaderdata"); err == nil {
		td.LeaderData = parseLeaderData(lines)
	}
	if lines, err := s.command("counters mac"); err == nil {
		counters := parseCounters(lines)
		td.Mac.TxTotal = counters["TxTotal"]
		td.Mac.TxUnicast = counters["TxUnicast"]
		td.Mac.TxBroadcast = counters["TxBroadcast"]
		td.Mac.TxAckRequested = counters["TxAckRequested"]
		td.Mac.TxAcked = counters["TxAcked"]
		td.Mac.TxData = counters["TxData"]
		td.Mac.TxRetry = counters["TxRetry"]
		td.Mac.TxErrCca = counters["TxErrCca"]
		td.Mac.RxTotal = counters["RxTotal"]
		td.Mac.RxUnicast = counters["RxUnicast"]
		td.Mac.RxBroadcast = counters["RxBroadcast"]
		td.Mac.RxData = counters["RxData"]
		td.Mac.RxDuplicated = counters["RxDuplicated"]
		td.Mac.RxErrFcs = counters["RxErrFcs"]
	}
	if lines, err := s.command("counters ip"); err == nil {
		counters := parseCounters(lines)
		td.Ip = otstack.IpCounters{
			TxSuccess: counters["TxSuccess"],
			RxSuccess: counters["RxSuccess"],
			TxFailure: counters["TxFailed"],
			RxFailure: counters["RxFailed"],
		}
	}
	if v, err := s.commandString("srp server state"); err == nil {
		td.Srp.State = v
	}
	if v, err := s.commandString("nat64 state"); err == nil {
		td.Nat64Enabled = !strings.Contains(v, "Disabled")
	}
	return td, nil
}

// parseCounters parses "Name: value" lines of the 'counters' commands.
func parseCounters(lines []string) map[string]uint32 {
	counters := map[string]uint32{}
	for _, l := range lines {
		k, v, ok := strings.Cut(strings.TrimSpace(l), ":")
		if !ok {
			continue
		}
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32); err == nil {
			counters[k] = uint32(n)
		}
	}
	return counters
}

func parseLeaderData(lines []string) otstack.LeaderData {
	var ld otstack.LeaderData
	for _, l := range lines {
		k, v, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			continue
		}
		switch k {
		case "Partition ID":
			ld.PartitionId = uint32(n)
		case "Weighting":
			ld.Weighting = uint8(n)
		case "Data Version":
			ld.DataVersion = uint8(n)
		case "Stable Data Version":
			ld.StableDataVersion = uint8(n)
		case "Leader Router ID":
			ld.LeaderRouterId = uint8(n)
		}
	}
	return ld
}

// CliInputLine forwards line to the CLI of the process and replays its output in CLI chunks.
func (s *Stack) CliInputLine(line string, output func(chunk string)) {
	err := s.proc.CommandStream(line, s.cfg.CommandTimeout, func(l string) {
		output(l + "\r\n")
	})
	if err != nil {
		code := types.ErrorCode(err)
		output(fmt.Sprintf("Error %d: %s\r\n", int(code), code))
	}
	output("> ")
}

func (s *Stack) GetVersion() string {
	v, _ := s.commandString("version")
	return v
}

func (s *Stack) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.proc.Exit()
}
