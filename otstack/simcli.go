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
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/types"
)

const cliPrompt = "> "

type simCliCmd struct {
	words []string
	run   func(s *SimStack, args []string) ([]string, error)
}

var simCliCmds = []simCliCmd{
	{[]string{"srp", "server", "state"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{s.srp.State}, nil
	}},
	{[]string{"srp", "server", "service"}, func(s *SimStack, _ []string) ([]string, error) {
		return nil, nil
	}},
	{[]string{"srp", "server", "host"}, func(s *SimStack, _ []string) ([]string, error) {
		return nil, nil
	}},
	{[]string{"dataset", "active"}, func(s *SimStack, args []string) ([]string, error) {
		return s.cliDataset(s.activeDataset, args)
	}},
	{[]string{"dataset", "pending"}, func(s *SimStack, args []string) ([]string, error) {
		return s.cliDataset(s.pendingDataset, args)
	}},
	{[]string{"counters", "mac"}, (*SimStack).cliCountersMac},
	{[]string{"counters", "mle"}, (*SimStack).cliCountersMle},
	{[]string{"counters", "ip"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{
			fmt.Sprintf("TxSuccess: %d", s.ip.TxSuccess),
			fmt.Sprintf("TxFailed: %d", s.ip.TxFailure),
			fmt.Sprintf("RxSuccess: %d", s.ip.RxSuccess),
			fmt.Sprintf("RxFailed: %d", s.ip.RxFailure),
		}, nil
	}},
	{[]string{"router", "table"}, (*SimStack).cliRouterTable},
	{[]string{"neighbor", "table"}, (*SimStack).cliNeighborTable},
	{[]string{"netdata", "show"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{"Prefixes:", "Routes:", "Services:", "Contexts:", "Commissioning:"}, nil
	}},
	{[]string{"state"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{s.role.String()}, nil
	}},
	{[]string{"leaderdata"}, (*SimStack).cliLeaderData},
	{[]string{"eidcache"}, func(s *SimStack, _ []string) ([]string, error) {
		return nil, nil
	}},
	{[]string{"ipaddr"}, (*SimStack).cliIpAddr},
	{[]string{"version"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{s.cfg.Version}, nil
	}},
	{[]string{"partitionid"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{strconv.FormatUint(uint64(s.partitionId), 10)}, nil
	}},
	{[]string{"ifconfig"}, func(s *SimStack, _ []string) ([]string, error) {
		if s.ip6Enabled {
			return []string{"up"}, nil
		}
		return []string{"down"}, nil
	}},
	{[]string{"region"}, func(s *SimStack, _ []string) ([]string, error) {
		if s.region == 0 {
			return []string{"WW"}, nil
		}
		return []string{string([]byte{byte(s.region >> 8), byte(s.region)})}, nil
	}},
	{[]string{"channel"}, func(s *SimStack, _ []string) ([]string, error) {
		ds, err := dataset.Parse(s.activeDataset)
		if err != nil {
			return nil, types.NewError(types.OT_ERROR_PARSE, "Parse")
		}
		ch, _ := ds.Channel()
		return []string{strconv.Itoa(ch)}, nil
	}},
	{[]string{"rloc16"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{fmt.Sprintf("%04x", s.rloc16)}, nil
	}},
	{[]string{"extaddr"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{fmt.Sprintf("%016x", s.extAddress)}, nil
	}},
	{[]string{"mode"}, func(s *SimStack, _ []string) ([]string, error) {
		return []string{s.linkMode.String()}, nil
	}},
}

// CliInputLine runs one command of the simulated CLI. Output is produced in the chunks of the ot-cli:
// one chunk per line terminated by "\r\n", then "Done" or "Error N: Text", then the prompt.
func (s *SimStack) CliInputLine(line string, output func(chunk string)) {
	lines, err := s.runCli(strings.Fields(line))
	for _, l := range lines {
		output(l + "\r\n")
	}
	if err != nil {
		code := types.ErrorCode(err)
		output(fmt.Sprintf("Error %d: %s\r\n", int(code), code))
	} else {
		output("Done\r\n")
	}
	output(cliPrompt)
}

func (s *SimStack) runCli(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, types.NewError(types.OT_ERROR_INVALID_COMMAND, "")
	}
	if fields[0] == "help" {
		return cliHelp(), nil
	}
	for _, c := range simCliCmds {
		if len(fields) < len(c.words) || !wordsMatch(fields, c.words) {
			continue
		}
		return c.run(s, fields[len(c.words):])
	}
	return nil, types.NewError(types.OT_ERROR_INVALID_COMMAND, "")
}

func cliHelp() []string {
	lines := []string{"help"}
	for _, c := range simCliCmds {
		if !slices.Contains(lines, c.words[0]) {
			lines = append(lines, c.words[0])
		}
	}
	return lines
}

func wordsMatch(fields, words []string) bool {
	for i, w := range words {
		if fields[i] != w {
			return false
		}
	}
	return true
}

func (s *SimStack) cliDataset(tlvs []byte, args []string) ([]string, error) {
	if len(tlvs) == 0 {
		return nil, types.NewError(types.OT_ERROR_NOT_FOUND, "")
	}
	if len(args) == 1 && args[0] == "-x" {
		return []string{hex.EncodeToString(tlvs)}, nil
	}
	if len(args) > 0 {
		return nil, types.NewError(types.OT_ERROR_INVALID_ARGS, "")
	}
	ds, err := dataset.Parse(tlvs)
	if err != nil {
		return nil, types.NewError(types.OT_ERROR_PARSE, "")
	}
	var lines []string
	if ts, ok := ds.ActiveTimestamp(); ok {
		lines = append(lines, fmt.Sprintf("Active Timestamp: %d", ts))
	}
	if ch, ok := ds.Channel(); ok {
		lines = append(lines, fmt.Sprintf("Channel: %d", ch))
	}
	if v, ok := ds.Get(dataset.TlvChannelMask); ok {
		lines = append(lines, "Channel Mask: 0x"+hex.EncodeToString(v))
	}
	if d, ok := ds.DelayTimer(); ok {
		lines = append(lines, fmt.Sprintf("Delay: %d", d))
	}
	if v, ok := ds.ExtPanId(); ok {
		lines = append(lines, fmt.Sprintf("Ext PAN ID: %016x", v))
	}
	if mlp, ok := ds.Get(dataset.TlvMeshLocalPrefix); ok && len(mlp) == 8 {
		lines = append(lines, fmt.Sprintf("Mesh Local Prefix: %x:%x:%x:%x::/64",
			mlp[0:2], mlp[2:4], mlp[4:6], mlp[6:8]))
	}
	if v, ok := ds.Get(dataset.TlvNetworkKey); ok {
		lines = append(lines, "Network Key: "+hex.EncodeToString(v))
	}
	if v, ok := ds.NetworkName(); ok {
		lines = append(lines, "Network Name: "+v)
	}
	if v, ok := ds.PanId(); ok {
		lines = append(lines, fmt.Sprintf("PAN ID: 0x%04x", v))
	}
	if v, ok := ds.Get(dataset.TlvPskc); ok {
		lines = append(lines, "PSKc: "+hex.EncodeToString(v))
	}
	return lines, nil
}

func (s *SimStack) cliCountersMac(_ []string) ([]string, error) {
	m := s.mac
	return []string{
		fmt.Sprintf("TxTotal: %d", m.TxTotal),
		fmt.Sprintf("    TxUnicast: %d", m.TxUnicast),
		fmt.Sprintf("    TxBroadcast: %d", m.TxBroadcast),
		fmt.Sprintf("    TxAckRequested: %d", m.TxAckRequested),
		fmt.Sprintf("    TxAcked: %d", m.TxAcked),
		fmt.Sprintf("    TxData: %d", m.TxData),
		fmt.Sprintf("    TxRetry: %d", m.TxRetry),
		fmt.Sprintf("    TxErrCca: %d", m.TxErrCca),
		fmt.Sprintf("RxTotal: %d", m.RxTotal),
		fmt.Sprintf("    RxUnicast: %d", m.RxUnicast),
		fmt.Sprintf("    RxBroadcast: %d", m.RxBroadcast),
		fmt.Sprintf("    RxData: %d", m.RxData),
		fmt.Sprintf("    RxDuplicated: %d", m.RxDuplicated),
		fmt.Sprintf("    RxErrFcs: %d", m.RxErrFcs),
	}, nil
}

func (s *SimStack) cliCountersMle(_ []string) ([]string, error) {
	attach := 0
	if s.role.IsAttached() {
		attach = 1
	}
	return []string{
		fmt.Sprintf("Role Disabled: %d", boolToInt(s.role == types.OtDeviceRoleDisabled)),
		fmt.Sprintf("Role Detached: %d", boolToInt(s.role == types.OtDeviceRoleDetached)),
		fmt.Sprintf("Role Child: %d", boolToInt(s.role == types.OtDeviceRoleChild)),
		fmt.Sprintf("Role Router: %d", boolToInt(s.role == types.OtDeviceRoleRouter)),
		fmt.Sprintf("Role Leader: %d", boolToInt(s.role == types.OtDeviceRoleLeader)),
		fmt.Sprintf("Attach Attempts: %d", attach),
		fmt.Sprintf("Partition Id Changes: %d", attach),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SimStack) cliLeaderData(_ []string) ([]string, error) {
	if !s.role.IsAttached() {
		return nil, types.NewError(types.OT_ERROR_DETACHED, "")
	}
	return []string{
		fmt.Sprintf("Partition ID: %d", s.partitionId),
		fmt.Sprintf("Weighting: %d", s.leaderWeight),
		"Data Version: 1",
		"Stable Data Version: 1",
		fmt.Sprintf("Leader Router ID: %d", s.rloc16>>10),
	}, nil
}

func (s *SimStack) cliRouterTable(_ []string) ([]string, error) {
	lines := []string{
		"| ID | RLOC16 | Next Hop | Path Cost | LQ In | LQ Out | Age | Extended MAC     | Link |",
		"+----+--------+----------+-----------+-------+--------+-----+------------------+------+",
	}
	if s.role == types.OtDeviceRoleRouter || s.role == types.OtDeviceRoleLeader {
		lines = append(lines, fmt.Sprintf("| %2d | 0x%04x |       63 |         0 |     0 |      0 |   0 | %016x |    0 |",
			s.rloc16>>10, s.rloc16, s.extAddress))
	}
	return lines, nil
}

func (s *SimStack) cliNeighborTable(_ []string) ([]string, error) {
	return []string{
		"| Role | RLOC16 | Age | Avg RSSI | Last RSSI |R|D|N| Extended MAC     | Version |",
		"+------+--------+-----+----------+-----------+-+-+-+------------------+---------+",
	}, nil
}

func (s *SimStack) cliIpAddr(args []string) ([]string, error) {
	verbose := len(args) == 1 && args[0] == "-v"
	var lines []string
	for _, a := range s.GetUnicastAddresses() {
		if verbose {
			lines = append(lines, fmt.Sprintf("%s origin:thread plen:%d preferred:%d valid:1",
				a.Address, a.PrefixLength, boolToInt(a.IsPreferred)))
		} else {
			lines = append(lines, a.Address)
		}
	}
	return lines, nil
}
