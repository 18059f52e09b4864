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
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/mdns"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

const (
	MeshcopServiceType = "_meshcop._udp"
	BorderAgentPort    = 49191

	vendorOuiLength        = 3
	maxServiceNameLength   = 63
	threadVersionString    = "1.4.0"
	meshcopRecordVersion   = "1"
	vendorTxtEntryPrefix   = "v"
	defaultServiceInstance = "OpenThread Border Router"
)

// State bitmap of the meshcop "sb" TXT entry.
const (
	sbConnectionModePskc = 1 << 0
	sbThreadIfNotActive  = 1 << 3
	sbThreadIfActive     = 2 << 3
	sbAvailabilityHigh   = 1 << 5
	sbBbrIsActive        = 1 << 7
	sbBbrIsPrimary       = 1 << 8
)

// borderAgent publishes the _meshcop._udp service of the border agent and keeps the stack's border agent
// in sync with the Thread enabled state.
type borderAgent struct {
	stack        otstack.Stack
	mdns         *mdns.Publisher
	log          *logger.TaggedLogger
	enabled      bool
	instanceName string
	meshcop      types.MeshcopTxtAttributes
	published    string
}

func newBorderAgent(stack otstack.Stack, publisher *mdns.Publisher) *borderAgent {
	return &borderAgent{
		stack:        stack,
		mdns:         publisher,
		log:          logger.Tagged("BorderAgent"),
		instanceName: defaultServiceInstance,
	}
}

// SetMeshCopServiceValues sets the service instance name and the vendor TXT entries. Non-standard entries
// must have keys starting with "v".
func (ba *borderAgent) SetMeshCopServiceValues(instanceName string, meshcop types.MeshcopTxtAttributes) error {
	if len(meshcop.VendorOui) != 0 && len(meshcop.VendorOui) != vendorOuiLength {
		return types.NewError(types.OT_ERROR_INVALID_ARGS, "vendor OUI must be %d bytes", vendorOuiLength)
	}
	for _, e := range meshcop.NonStandardTxtEntries {
		if !strings.HasPrefix(e.Name, vendorTxtEntryPrefix) {
			return types.NewError(types.OT_ERROR_INVALID_ARGS, "non-standard TXT key %q must start with %q",
				e.Name, vendorTxtEntryPrefix)
		}
	}
	instanceName = strings.TrimSpace(instanceName)
	if instanceName == "" {
		instanceName = defaultServiceInstance
	}
	if len(instanceName) > maxServiceNameLength {
		instanceName = instanceName[:maxServiceNameLength]
	}

	vendorTxt, err := mdns.EncodeTxtData(vendorTxtEntries(meshcop))
	if err != nil {
		return errors.Wrap(err, "encode vendor TXT")
	}

	ba.instanceName = instanceName
	ba.meshcop = meshcop
	if ba.stack != nil {
		ba.stack.SetBorderAgentMeshcopService(instanceName, vendorTxt)
	}
	ba.Update()
	return nil
}

func vendorTxtEntries(meshcop types.MeshcopTxtAttributes) []types.DnsTxtAttribute {
	var entries []types.DnsTxtAttribute
	if meshcop.VendorName != "" {
		entries = append(entries, types.DnsTxtAttribute{Name: "vn", Value: []byte(meshcop.VendorName)})
	}
	if meshcop.ModelName != "" {
		entries = append(entries, types.DnsTxtAttribute{Name: "mn", Value: []byte(meshcop.ModelName)})
	}
	if len(meshcop.VendorOui) != 0 {
		entries = append(entries, types.DnsTxtAttribute{Name: "vo", Value: meshcop.VendorOui})
	}
	return append(entries, meshcop.NonStandardTxtEntries...)
}

func (ba *borderAgent) SetEnabled(enabled bool) {
	if ba.enabled == enabled {
		return
	}
	ba.log.Infof("Border agent enabled: %v", enabled)
	ba.enabled = enabled
	if ba.stack != nil {
		ba.stack.SetBorderAgentEnabled(enabled)
	}
	ba.Update()
}

func (ba *borderAgent) IsEnabled() bool {
	return ba.enabled
}

// Update publishes or withdraws the meshcop service to match the current state.
func (ba *borderAgent) Update() {
	if !ba.mdns.IsStarted() {
		ba.published = ""
		return
	}
	if !ba.enabled || ba.stack == nil {
		ba.unpublish()
		return
	}
	txt, err := mdns.EncodeTxtData(ba.txtEntries())
	if err != nil {
		ba.log.Errorf("failed to encode meshcop TXT: %v", err)
		return
	}
	if ba.published != "" && ba.published != ba.instanceName {
		ba.unpublish()
	}
	name := ba.instanceName
	err = ba.mdns.PublishService("", name, MeshcopServiceType, nil, BorderAgentPort, txt, func(err error) {
		if err != nil {
			ba.log.Warnf("failed to publish %s.%s: %v", name, MeshcopServiceType, err)
		}
	})
	if err != nil {
		ba.log.Warnf("failed to publish %s.%s: %v", name, MeshcopServiceType, err)
		return
	}
	ba.published = name
}

func (ba *borderAgent) unpublish() {
	if ba.published == "" {
		return
	}
	name := ba.published
	ba.published = ""
	ba.mdns.UnpublishService(name, MeshcopServiceType, func(err error) {
		if err != nil {
			ba.log.Warnf("failed to unpublish %s.%s: %v", name, MeshcopServiceType, err)
		}
	})
}

func (ba *borderAgent) txtEntries() []types.DnsTxtAttribute {
	entries := []types.DnsTxtAttribute{
		{Name: "rv", Value: []byte(meshcopRecordVersion)},
		{Name: "tv", Value: []byte(threadVersionString)},
	}

	var ds *dataset.Dataset
	if tlvs, err := ba.stack.GetActiveDatasetTlvs(); err == nil && !dataset.IsEmpty(tlvs) {
		ds, _ = dataset.Parse(tlvs)
	}
	if ds != nil {
		if name, ok := ds.NetworkName(); ok {
			entries = append(entries, types.DnsTxtAttribute{Name: "nn", Value: []byte(name)})
		}
		if xpanid, ok := ds.ExtPanId(); ok {
			entries = append(entries, types.DnsTxtAttribute{Name: "xp", Value: binary.BigEndian.AppendUint64(nil, xpanid)})
		}
		if ts, ok := ds.ActiveTimestamp(); ok {
			entries = append(entries, types.DnsTxtAttribute{Name: "at", Value: binary.BigEndian.AppendUint64(nil, ts)})
		}
	}
	entries = append(entries, types.DnsTxtAttribute{Name: "sb",
		Value: binary.BigEndian.AppendUint32(nil, ba.stateBitmap(ds != nil))})
	return append(entries, vendorTxtEntries(ba.meshcop)...)
}

func (ba *borderAgent) stateBitmap(haveDataset bool) uint32 {
	bitmap := uint32(sbAvailabilityHigh)
	if haveDataset {
		bitmap |= sbConnectionModePskc
	}
	role := ba.stack.GetDeviceRole()
	switch {
	case role.IsAttached():
		bitmap |= sbThreadIfActive
	case haveDataset:
		bitmap |= sbThreadIfNotActive
	}
	if role.IsAttached() && ba.stack.IsBackboneRouterPrimary() {
		bitmap |= sbBbrIsActive | sbBbrIsPrimary
	}
	return bitmap
}
