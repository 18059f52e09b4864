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

package otstack

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net/netip"
	"slices"
	"time"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/prng"
	"github.com/openthread/ot-daemon/settings"
	"github.com/openthread/ot-daemon/types"
)

const (
	keyActiveDataset  = "active_dataset"
	keyPendingDataset = "pending_dataset"
	keyRegion         = "region"

	maxEphemeralKeyLifetime = 10 * time.Minute
)

type SimConfig struct {
	Name string
	// AttachDelay is the time from starting Thread until the device is attached.
	AttachDelay time.Duration
	// DetachDelay is the duration of a graceful detach while attached.
	DetachDelay time.Duration
	// MgmtSetDelay is the time for the leader to answer MGMT_PENDING_SET.req.
	MgmtSetDelay         time.Duration
	AttachRole           types.OtDeviceRole
	PreferredChannelMask uint32
	Seed                 prng.RandomSeed
	Version              string
}

func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Name:                 "sim",
		AttachDelay:          8 * time.Second,
		DetachDelay:          time.Second,
		MgmtSetDelay:         200 * time.Millisecond,
		AttachRole:           types.OtDeviceRoleLeader,
		PreferredChannelMask: types.DefaultSupportedChannelMask,
		Seed:                 prng.NewStackRandomSeed(),
		Version:              "OPENTHREAD/thread-reference-20230706; SIMULATION",
	}
}

// SimStack is an in-process OpenThread instance. It follows the state transitions of a real instance closely
// enough to drive the daemon without radio hardware: attach and detach take time, MGMT_PENDING_SET.req is
// answered by a simulated leader and non-volatile settings survive restarts through the settings store.
type SimStack struct {
	cfg    SimConfig
	runner TaskRunner
	store  *settings.Namespace
	rnd    *rand.Rand
	cb     Callbacks
	log    *logger.TaggedLogger

	role           types.OtDeviceRole
	partitionId    uint32
	extAddress     uint64
	rloc16         uint16
	ip6Enabled     bool
	threadEnabled  bool
	activeDataset  []byte
	pendingDataset []byte
	region         uint16
	linkMode       types.LinkMode
	maxPowers      map[int]int16

	routerUpgradeThreshold uint8
	leaderWeight           uint8
	nat64Enabled           bool
	dnsUpstreamQuery       bool
	srpAutoEnable          bool
	srpEnabled             bool
	borderRoutingIfName    string
	borderRoutingEnabled   bool
	bbrEnabled             bool
	trelEnabled            bool
	infraNat64Prefix       string
	upstreamDnsServers     []string

	baEnabled           bool
	meshcopInstanceName string
	vendorTxt           []byte
	ephemeralKey        string
	ephemeralKeyInUse   bool
	ephemeralKeyAlarm   dispatcher.AlarmId

	multicastListeners []string

	attachAlarm    dispatcher.AlarmId
	migrationAlarm dispatcher.AlarmId
	detaching      bool
	mgmtSetPending bool
	pendingFlags   types.OtChangedFlags

	mac     MacCounters
	ip      IpCounters
	srp     SrpServerData
	br      BorderRoutingCounters
	closed  bool
	detachN int
}

// NewSimStack creates a simulated instance that delivers callbacks on runner. Non-volatile settings are
// loaded from and saved to store, which may be nil for a volatile instance.
func NewSimStack(cfg *SimConfig, runner TaskRunner, store *settings.Namespace) (*SimStack, error) {
	if cfg == nil {
		cfg = DefaultSimConfig()
	}
	s := &SimStack{
		cfg:          *cfg,
		runner:       runner,
		store:        store,
		rnd:          prng.NewRand(cfg.Seed),
		log:          logger.Tagged("SimStack"),
		role:         types.OtDeviceRoleDisabled,
		linkMode:     types.RouterLinkMode(),
		maxPowers:    map[int]int16{},
		leaderWeight: 64,
		rloc16:       types.InvalidRloc16,
		srp:          SrpServerData{State: "disabled", AddressMode: "unicast"},
	}
	s.extAddress = s.rnd.Uint64()
	s.routerUpgradeThreshold = 16

	if err := s.loadSettings(); err != nil {
		return nil, err
	}
	s.log.Infof("simulated stack %s created, active dataset %d bytes", s.cfg.Name, len(s.activeDataset))
	return s, nil
}

func (s *SimStack) loadSettings() error {
	if s.store == nil {
		return nil
	}
	ctx := context.Background()
	var err error
	if s.activeDataset, _, err = s.store.Get(ctx, keyActiveDataset); err != nil {
		return err
	}
	if s.pendingDataset, _, err = s.store.Get(ctx, keyPendingDataset); err != nil {
		return err
	}
	region, ok, err := s.store.Get(ctx, keyRegion)
	if err != nil {
		return err
	}
	if ok && len(region) == 2 {
		s.region = binary.BigEndian.Uint16(region)
	}
	return nil
}

func (s *SimStack) saveSetting(key string, value []byte) {
	if s.store == nil {
		return
	}
	var err error
	if len(value) == 0 {
		err = s.store.Delete(context.Background(), key)
	} else {
		err = s.store.Set(context.Background(), key, value)
	}
	if err != nil {
		s.log.Errorf("saving setting %s failed: %v", key, err)
	}
}

func (s *SimStack) SetCallbacks(cb Callbacks) {
	s.cb = cb
}

// notify accumulates changed flags and delivers them in a single StateChanged task.
func (s *SimStack) notify(flags types.OtChangedFlags) {
	if s.closed {
		return
	}
	if s.pendingFlags == 0 {
		s.runner.Post(s.deliverStateChanged)
	}
	s.pendingFlags |= flags
}

func (s *SimStack) deliverStateChanged() {
	flags := s.pendingFlags
	s.pendingFlags = 0
	if flags != 0 && s.cb.StateChanged != nil && !s.closed {
		s.cb.StateChanged(flags)
	}
}

func (s *SimStack) GetDeviceRole() types.OtDeviceRole {
	return s.role
}

func (s *SimStack) GetPartitionId() uint32 {
	return s.partitionId
}

func (s *SimStack) IsIp6Enabled() bool {
	return s.ip6Enabled
}

func (s *SimStack) SetIp6Enabled(enabled bool) error {
	if enabled == s.ip6Enabled {
		return nil
	}
	if !enabled && s.threadEnabled {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "Thread is running")
	}
	s.ip6Enabled = enabled
	flags := types.OT_CHANGED_THREAD_NETIF_STATE | types.OT_CHANGED_THREAD_LL_ADDR
	if enabled {
		flags |= types.OT_CHANGED_IP6_ADDRESS_ADDED
	} else {
		flags |= types.OT_CHANGED_IP6_ADDRESS_REMOVED
	}
	s.notify(flags)
	return nil
}

func (s *SimStack) SetThreadEnabled(enabled bool) error {
	if enabled == s.threadEnabled {
		return nil
	}
	if enabled {
		if !s.ip6Enabled {
			return types.NewError(types.OT_ERROR_INVALID_STATE, "interface is down")
		}
		if len(s.activeDataset) == 0 {
			return types.NewError(types.OT_ERROR_INVALID_STATE, "no active dataset")
		}
		s.threadEnabled = true
		s.setRole(types.OtDeviceRoleDetached)
		s.attachAlarm = s.runner.PostDelayed(s.cfg.AttachDelay+prng.Jitter(s.cfg.AttachDelay/10), s.attach)
		return nil
	}
	s.stopThread()
	return nil
}

func (s *SimStack) stopThread() {
	s.runner.CancelDelayed(s.attachAlarm)
	s.runner.CancelDelayed(s.migrationAlarm)
	s.attachAlarm, s.migrationAlarm = 0, 0
	s.threadEnabled = false
	s.setRole(types.OtDeviceRoleDisabled)
}

func (s *SimStack) attach() {
	s.attachAlarm = 0
	if !s.threadEnabled || s.closed {
		return
	}
	s.partitionId = s.rnd.Uint32()
	s.notify(types.OT_CHANGED_THREAD_PARTITION_ID)
	s.setRole(s.cfg.AttachRole)
	if len(s.pendingDataset) > 0 {
		s.scheduleMigration()
	}
}

func (s *SimStack) setRole(role types.OtDeviceRole) {
	if role == s.role {
		return
	}
	s.log.Infof("Role %s -> %s", s.role, role)
	wasAttached := s.role.IsAttached()
	s.role = role

	flags := types.OT_CHANGED_THREAD_ROLE
	switch {
	case role.IsAttached() && !wasAttached:
		s.rloc16 = s.newRloc16(role)
		flags |= types.OT_CHANGED_THREAD_RLOC_ADDED | types.OT_CHANGED_THREAD_ML_ADDR |
			types.OT_CHANGED_IP6_ADDRESS_ADDED | types.OT_CHANGED_THREAD_NETDATA
		if s.srpAutoEnable || s.srpEnabled {
			s.srp.State = "running"
		}
	case !role.IsAttached() && wasAttached:
		s.rloc16 = types.InvalidRloc16
		flags |= types.OT_CHANGED_THREAD_RLOC_REMOVED | types.OT_CHANGED_IP6_ADDRESS_REMOVED
		if s.srp.State == "running" {
			s.srp.State = "stopped"
		}
	}
	if s.bbrEnabled {
		flags |= types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE
	}
	s.notify(flags)
}

func (s *SimStack) newRloc16(role types.OtDeviceRole) uint16 {
	routerId := uint16(s.rnd.Intn(63))
	if role == types.OtDeviceRoleChild {
		return routerId<<10 | uint16(1+s.rnd.Intn(511))
	}
	return routerId << 10
}

func (s *SimStack) GetActiveDatasetTlvs() ([]byte, error) {
	if len(s.activeDataset) == 0 {
		return nil, types.NewError(types.OT_ERROR_NOT_FOUND, "no active dataset")
	}
	return bytes.Clone(s.activeDataset), nil
}

func (s *SimStack) GetPendingDatasetTlvs() ([]byte, error) {
	if len(s.pendingDataset) == 0 {
		return nil, types.NewError(types.OT_ERROR_NOT_FOUND, "no pending dataset")
	}
	return bytes.Clone(s.pendingDataset), nil
}

func (s *SimStack) SetActiveDatasetTlvs(tlvs []byte) error {
	if len(tlvs) > dataset.MaxLength {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "dataset too long: %d", len(tlvs))
	}
	if _, err := dataset.Parse(tlvs); err != nil {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "%v", err)
	}
	s.activeDataset = bytes.Clone(tlvs)
	s.saveSetting(keyActiveDataset, s.activeDataset)
	s.notify(types.OT_CHANGED_ACTIVE_DATASET | types.OT_CHANGED_THREAD_CHANNEL | types.OT_CHANGED_THREAD_PANID |
		types.OT_CHANGED_THREAD_NETWORK_NAME | types.OT_CHANGED_THREAD_EXT_PANID | types.OT_CHANGED_NETWORK_KEY)
	return nil
}

func (s *SimStack) ErasePersistentInfo() error {
	if s.threadEnabled {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "Thread is running")
	}
	s.activeDataset = nil
	s.pendingDataset = nil
	if s.store != nil {
		if err := s.store.Wipe(context.Background()); err != nil {
			return types.NewError(types.OT_ERROR_FAILED, "%v", err)
		}
		if s.region != 0 {
			s.saveSetting(keyRegion, binary.BigEndian.AppendUint16(nil, s.region))
		}
	}
	s.log.Infof("persistent info erased")
	s.notify(types.OT_CHANGED_ACTIVE_DATASET | types.OT_CHANGED_PENDING_DATASET)
	return nil
}

func (s *SimStack) DetachGracefully(done func()) error {
	if s.detaching {
		return types.NewError(types.OT_ERROR_BUSY, "detach in progress")
	}
	s.detaching = true
	s.detachN++

	delay := time.Duration(0)
	if s.role.IsAttached() {
		delay = s.cfg.DetachDelay
	}
	s.runner.PostDelayed(delay, func() {
		s.detaching = false
		s.stopThread()
		s.log.Infof("graceful detach done")
		done()
	})
	return nil
}

// DetachCount returns the number of graceful detaches started.
func (s *SimStack) DetachCount() int {
	return s.detachN
}

func (s *SimStack) SendMgmtPendingSet(tlvs []byte, done func(err error)) error {
	if !s.role.IsAttached() {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "not attached")
	}
	if s.mgmtSetPending {
		return types.NewError(types.OT_ERROR_BUSY, "MGMT_PENDING_SET.req in progress")
	}
	ds, err := dataset.Parse(tlvs)
	if err != nil {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "%v", err)
	}
	s.mgmtSetPending = true
	s.runner.PostDelayed(s.cfg.MgmtSetDelay, func() {
		s.mgmtSetPending = false
		done(s.leaderHandlePendingSet(ds))
	})
	return nil
}

func (s *SimStack) leaderHandlePendingSet(ds *dataset.Dataset) error {
	if !s.role.IsAttached() {
		return types.NewError(types.OT_ERROR_RESPONSE_TIMEOUT, "no response from leader")
	}
	if _, ok := ds.Get(dataset.TlvPendingTimestamp); !ok {
		return types.NewError(types.OT_ERROR_REJECTED, "missing pending timestamp")
	}
	if _, ok := ds.DelayTimer(); !ok {
		return types.NewError(types.OT_ERROR_REJECTED, "missing delay timer")
	}
	s.pendingDataset = ds.Bytes()
	s.saveSetting(keyPendingDataset, s.pendingDataset)
	s.notify(types.OT_CHANGED_PENDING_DATASET)
	s.scheduleMigration()
	return nil
}

func (s *SimStack) scheduleMigration() {
	ds, err := dataset.Parse(s.pendingDataset)
	if err != nil {
		return
	}
	delay, _ := ds.DelayTimer()
	s.runner.CancelDelayed(s.migrationAlarm)
	s.migrationAlarm = s.runner.PostDelayed(time.Duration(delay)*time.Millisecond, s.applyPendingDataset)
}

func (s *SimStack) applyPendingDataset() {
	s.migrationAlarm = 0
	ds, err := dataset.Parse(s.pendingDataset)
	if err != nil || !s.threadEnabled {
		return
	}
	active := &dataset.Dataset{}
	for _, tlv := range ds.Tlvs {
		if tlv.Type != dataset.TlvPendingTimestamp && tlv.Type != dataset.TlvDelayTimer {
			active.Tlvs = append(active.Tlvs, tlv)
		}
	}
	s.activeDataset = active.Bytes()
	s.pendingDataset = nil
	s.saveSetting(keyActiveDataset, s.activeDataset)
	s.saveSetting(keyPendingDataset, nil)
	s.log.Infof("pending dataset applied: %s", active)
	s.notify(types.OT_CHANGED_ACTIVE_DATASET | types.OT_CHANGED_PENDING_DATASET | types.OT_CHANGED_THREAD_CHANNEL)
}

func (s *SimStack) SetRegion(regionCode uint16) error {
	s.region = regionCode
	s.saveSetting(keyRegion, binary.BigEndian.AppendUint16(nil, regionCode))
	s.notify(types.OT_CHANGED_SUPPORTED_CHANNEL_MASK)
	return nil
}

func (s *SimStack) GetRegion() (uint16, error) {
	return s.region, nil
}

func (s *SimStack) GetSupportedChannelMask() uint32 {
	return types.DefaultSupportedChannelMask
}

func (s *SimStack) GetPreferredChannelMask() uint32 {
	return s.cfg.PreferredChannelMask
}

func (s *SimStack) SetChannelMaxTransmitPower(channel int, maxPower int16) error {
	if channel < types.MinChannel || channel > types.MaxChannel {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "invalid channel %d", channel)
	}
	s.maxPowers[channel] = maxPower
	return nil
}

// GetChannelMaxTransmitPower returns the configured maximum power of channel.
func (s *SimStack) GetChannelMaxTransmitPower(channel int) (int16, bool) {
	p, ok := s.maxPowers[channel]
	return p, ok
}

func (s *SimStack) SetLinkMode(mode types.LinkMode) error {
	s.linkMode = mode
	return nil
}

func (s *SimStack) GetLinkMode() types.LinkMode {
	return s.linkMode
}

func (s *SimStack) SetRouterUpgradeThreshold(threshold uint8) {
	s.routerUpgradeThreshold = threshold
}

func (s *SimStack) GetRouterUpgradeThreshold() uint8 {
	return s.routerUpgradeThreshold
}

func (s *SimStack) SetLocalLeaderWeight(weight uint8) {
	s.leaderWeight = weight
}

func (s *SimStack) GetLocalLeaderWeight() uint8 {
	return s.leaderWeight
}

func (s *SimStack) SetNat64Enabled(enabled bool) {
	if enabled != s.nat64Enabled {
		s.nat64Enabled = enabled
		s.notify(types.OT_CHANGED_NAT64_TRANSLATOR_STATE)
	}
}

func (s *SimStack) IsNat64Enabled() bool {
	return s.nat64Enabled
}

func (s *SimStack) SetDnsUpstreamQueryEnabled(enabled bool) {
	s.dnsUpstreamQuery = enabled
}

func (s *SimStack) IsDnsUpstreamQueryEnabled() bool {
	return s.dnsUpstreamQuery
}

func (s *SimStack) SetSrpServerAutoEnableMode(enabled bool) {
	s.srpAutoEnable = enabled
}

func (s *SimStack) IsSrpServerAutoEnableMode() bool {
	return s.srpAutoEnable
}

func (s *SimStack) SetSrpServerEnabled(enabled bool) {
	s.srpEnabled = enabled
	switch {
	case enabled && s.role.IsAttached():
		s.srp.State = "running"
	case enabled:
		s.srp.State = "stopped"
	default:
		s.srp.State = "disabled"
	}
}

func (s *SimStack) InitBorderRouting(infraIfName string) error {
	if infraIfName == "" {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "no infrastructure interface")
	}
	s.borderRoutingIfName = infraIfName
	return nil
}

func (s *SimStack) SetBorderRoutingEnabled(enabled bool) error {
	if enabled && s.borderRoutingIfName == "" {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "border routing is not initialized")
	}
	s.borderRoutingEnabled = enabled
	return nil
}

func (s *SimStack) IsBorderRoutingEnabled() bool {
	return s.borderRoutingEnabled
}

func (s *SimStack) SetBackboneRouterEnabled(enabled bool) {
	if enabled != s.bbrEnabled {
		s.bbrEnabled = enabled
		s.notify(types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE)
	}
}

func (s *SimStack) IsBackboneRouterPrimary() bool {
	return s.bbrEnabled && s.role == types.OtDeviceRoleLeader
}

func (s *SimStack) GetMulticastListeners() []string {
	return slices.Clone(s.multicastListeners)
}

// AddMulticastListener simulates an MLR registration of a Thread device at the Backbone Router.
func (s *SimStack) AddMulticastListener(address string) {
	if slices.Contains(s.multicastListeners, address) {
		return
	}
	s.multicastListeners = append(s.multicastListeners, address)
	s.postMulticastListenerEvent(MulticastListenerAdded, address)
}

// RemoveMulticastListener simulates the expiry of a multicast listener registration.
func (s *SimStack) RemoveMulticastListener(address string) {
	idx := slices.Index(s.multicastListeners, address)
	if idx < 0 {
		return
	}
	s.multicastListeners = slices.Delete(s.multicastListeners, idx, idx+1)
	s.postMulticastListenerEvent(MulticastListenerRemoved, address)
}

func (s *SimStack) postMulticastListenerEvent(event MulticastListenerEvent, address string) {
	s.runner.Post(func() {
		if s.cb.MulticastListener != nil && !s.closed {
			s.cb.MulticastListener(event, address)
		}
	})
}

func (s *SimStack) SetTrelEnabled(enabled bool, infraIfName string) error {
	if enabled && infraIfName == "" {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "no infrastructure interface")
	}
	s.trelEnabled = enabled
	return nil
}

func (s *SimStack) IsTrelEnabled() bool {
	return s.trelEnabled
}

func (s *SimStack) SetInfraNat64Prefix(prefix string) {
	s.infraNat64Prefix = prefix
}

func (s *SimStack) GetInfraNat64Prefix() string {
	return s.infraNat64Prefix
}

func (s *SimStack) SetUpstreamDnsServers(servers []string) {
	s.upstreamDnsServers = slices.Clone(servers)
}

func (s *SimStack) GetUpstreamDnsServers() []string {
	return slices.Clone(s.upstreamDnsServers)
}

func (s *SimStack) SetBorderAgentEnabled(enabled bool) {
	s.baEnabled = enabled
	if !enabled && s.ephemeralKey != "" {
		s.ClearEphemeralKey()
	}
}

func (s *SimStack) IsBorderAgentEnabled() bool {
	return s.baEnabled
}

func (s *SimStack) SetBorderAgentMeshcopService(instanceName string, vendorTxt []byte) {
	s.meshcopInstanceName = instanceName
	s.vendorTxt = bytes.Clone(vendorTxt)
}

func (s *SimStack) GetBorderAgentMeshcopService() (string, []byte) {
	return s.meshcopInstanceName, bytes.Clone(s.vendorTxt)
}

func (s *SimStack) SetEphemeralKey(passcode string, lifetime time.Duration) error {
	if !s.baEnabled {
		return types.NewError(types.OT_ERROR_INVALID_STATE, "border agent is disabled")
	}
	if lifetime <= 0 || lifetime > maxEphemeralKeyLifetime {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "invalid ephemeral key lifetime %v", lifetime)
	}
	if len(passcode) < 6 || len(passcode) > 32 {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "invalid ephemeral key length %d", len(passcode))
	}
	s.runner.CancelDelayed(s.ephemeralKeyAlarm)
	s.ephemeralKey = passcode
	s.ephemeralKeyInUse = false
	s.ephemeralKeyAlarm = s.runner.PostDelayed(lifetime, func() {
		s.ephemeralKeyAlarm = 0
		s.log.Infof("ephemeral key expired")
		s.ClearEphemeralKey()
	})
	s.postEphemeralKeyChanged()
	return nil
}

func (s *SimStack) ClearEphemeralKey() {
	if s.ephemeralKey == "" {
		return
	}
	s.runner.CancelDelayed(s.ephemeralKeyAlarm)
	s.ephemeralKeyAlarm = 0
	s.ephemeralKey = ""
	s.ephemeralKeyInUse = false
	s.postEphemeralKeyChanged()
}

// SimulateEphemeralKeyConnection simulates an external commissioner connecting with the ephemeral key.
func (s *SimStack) SimulateEphemeralKeyConnection() {
	if s.ephemeralKey != "" && !s.ephemeralKeyInUse {
		s.ephemeralKeyInUse = true
		s.postEphemeralKeyChanged()
	}
}

func (s *SimStack) postEphemeralKeyChanged() {
	s.runner.Post(func() {
		if s.cb.EphemeralKeyChanged != nil && !s.closed {
			s.cb.EphemeralKeyChanged()
		}
	})
}

func (s *SimStack) IsEphemeralKeyActive() bool {
	return s.ephemeralKey != ""
}

func (s *SimStack) IsEphemeralKeyInUse() bool {
	return s.ephemeralKeyInUse
}

func (s *SimStack) meshLocalPrefix() (netip.Prefix, bool) {
	ds, err := dataset.Parse(s.activeDataset)
	if err != nil {
		return netip.Prefix{}, false
	}
	v, ok := ds.Get(dataset.TlvMeshLocalPrefix)
	if !ok || len(v) != 8 {
		return netip.Prefix{}, false
	}
	var a [16]byte
	copy(a[:], v)
	return netip.PrefixFrom(netip.AddrFrom16(a), 64), true
}

func addrWithIid(prefix [16]byte, iid uint64) netip.Addr {
	binary.BigEndian.PutUint64(prefix[8:], iid)
	return netip.AddrFrom16(prefix)
}

func (s *SimStack) GetUnicastAddresses() []types.Ipv6AddressInfo {
	if !s.ip6Enabled {
		return nil
	}
	linkLocal := [16]byte{0xfe, 0x80}
	addrs := []types.Ipv6AddressInfo{{
		Address:      addrWithIid(linkLocal, s.extAddress^(1<<57)).String(),
		PrefixLength: 64,
		IsPreferred:  true,
	}}
	if mlp, ok := s.meshLocalPrefix(); ok && s.role.IsAttached() {
		prefix := mlp.Addr().As16()
		addrs = append(addrs, types.Ipv6AddressInfo{
			Address:      addrWithIid(prefix, 0x000000fffe000000|uint64(s.rloc16)).String(),
			PrefixLength: 64,
			IsPreferred:  true,
			IsMeshLocal:  true,
		}, types.Ipv6AddressInfo{
			Address:      addrWithIid(prefix, s.extAddress).String(),
			PrefixLength: 64,
			IsPreferred:  true,
			IsMeshLocal:  true,
		})
	}
	return addrs
}

func (s *SimStack) GetMulticastAddresses() []types.Ipv6AddressInfo {
	if !s.ip6Enabled {
		return nil
	}
	groups := []string{"ff02::1", "ff03::1"}
	if s.role == types.OtDeviceRoleRouter || s.role == types.OtDeviceRoleLeader {
		groups = append(groups, "ff02::2", "ff03::2")
	}
	var addrs []types.Ipv6AddressInfo
	for _, g := range groups {
		addrs = append(addrs, types.Ipv6AddressInfo{Address: g, PrefixLength: 128, IsMulticast: true})
	}
	return addrs
}

func (s *SimStack) GetTelemetry() (*TelemetryData, error) {
	if s.role.IsAttached() {
		// traffic of a quiet network since the last snapshot
		tx := uint32(10 + s.rnd.Intn(20))
		rx := uint32(10 + s.rnd.Intn(20))
		s.mac.TxTotal += tx
		s.mac.TxUnicast += tx / 2
		s.mac.TxBroadcast += tx - tx/2
		s.mac.TxAckRequested += tx / 2
		s.mac.TxAcked += tx / 2
		s.mac.TxData += tx
		s.mac.RxTotal += rx
		s.mac.RxUnicast += rx / 2
		s.mac.RxBroadcast += rx - rx/2
		s.mac.RxData += rx
		s.ip.TxSuccess += tx / 2
		s.ip.RxSuccess += rx / 2
	}

	ch := 0
	if ds, err := dataset.Parse(s.activeDataset); err == nil {
		ch, _ = ds.Channel()
	}
	td := &TelemetryData{
		Role:           s.role,
		LinkMode:       s.linkMode,
		Channel:        ch,
		TxPower:        0,
		ExtAddress:     s.extAddress,
		Rloc16:         s.rloc16,
		RouterId:       uint8(s.rloc16 >> 10),
		Mac:            s.mac,
		Ip:             s.ip,
		Srp:            s.srp,
		BorderRouting:  s.br,
		Nat64Enabled:   s.nat64Enabled,
		Version:        s.cfg.Version,
		NetworkDataLen: 0,
	}
	if p, ok := s.maxPowers[ch]; ok {
		td.TxPower = int8(p / 100)
	}
	if s.role.IsAttached() {
		td.LeaderData = LeaderData{
			PartitionId:       s.partitionId,
			Weighting:         s.leaderWeight,
			DataVersion:       1,
			StableDataVersion: 1,
			LeaderRouterId:    uint8(s.rloc16 >> 10),
		}
		td.NetworkDataLen = 12
	}
	return td, nil
}

func (s *SimStack) GetVersion() string {
	return s.cfg.Version
}

func (s *SimStack) Close() error {
	if s.closed {
		return nil
	}
	s.runner.CancelDelayed(s.attachAlarm)
	s.runner.CancelDelayed(s.migrationAlarm)
	s.runner.CancelDelayed(s.ephemeralKeyAlarm)
	s.closed = true
	s.log.Infof("simulated stack %s closed", s.cfg.Name)
	return nil
}

func (s *SimStack) String() string {
	return fmt.Sprintf("SimStack{%s, role=%s}", s.cfg.Name, s.role)
}
