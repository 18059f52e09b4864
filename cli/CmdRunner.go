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

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/types"
)

const (
	Prompt = "> "

	DefaultCommandTimeout = 10 * time.Second
)

// ErrExit is returned by HandleCommand after the exit command.
var ErrExit = errors.New("exit")

// Daemon is the ot-daemon as seen by the console. *ipc.Client implements it.
type Daemon interface {
	SetThreadEnabled(ctx context.Context, enabled bool) error
	Join(ctx context.Context, activeDatasetTlvs []byte) error
	Leave(ctx context.Context, eraseDataset bool) error
	ScheduleMigration(ctx context.Context, pendingDatasetTlvs []byte) error
	SetCountryCode(ctx context.Context, countryCode string) error
	GetChannelMasks(ctx context.Context) (types.ChannelMasks, error)
	SetChannelMaxPowers(ctx context.Context, powers []types.ChannelMaxPower) error
	SetConfiguration(ctx context.Context, config types.OtDaemonConfiguration) error
	SetInfraLinkInterfaceName(ctx context.Context, interfaceName string, icmp6Socket int) error
	SetInfraLinkNat64Prefix(ctx context.Context, nat64Prefix string) error
	SetInfraLinkDnsServers(ctx context.Context, dnsServers []string) error
	SetTrelEnabled(ctx context.Context, enabled bool) error
	ActivateEphemeralKeyMode(ctx context.Context, lifetime time.Duration) error
	DeactivateEphemeralKeyMode(ctx context.Context) error
	Terminate(ctx context.Context) error
	GetStatus(ctx context.Context) (map[string]interface{}, error)
	Dump(ctx context.Context) (string, error)
	RunOtCtlCommand(ctx context.Context, command string, interactive bool, output func(string)) error
}

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

func (cc *CommandContext) outputItemsAsYaml(items interface{}) {
	data, err := yaml.Marshal(items)
	logger.PanicIfError(err)

	_, err = cc.output.Write(data)
	logger.PanicIfError(err)
}

type CmdRunner struct {
	ctx     context.Context
	daemon  Daemon
	timeout time.Duration
	help    Help
}

func NewCmdRunner(ctx context.Context, daemon Daemon) *CmdRunner {
	return &CmdRunner{
		ctx:     ctx,
		daemon:  daemon,
		timeout: DefaultCommandTimeout,
		help:    newHelp(),
	}
}

// RunCommand parses and executes one console command line, writing its output and the final
// "Done" or "Error" line to output.
func (rt *CmdRunner) RunCommand(cmdline string, output io.Writer) error {
	if rt.ctx.Err() != nil {
		return rt.ctx.Err()
	}

	cmd := Command{}
	if err := parseBytes([]byte(cmdline), &cmd); err != nil {
		if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
			return err
		}
		return nil
	}
	rt.execute(&cmd, output)
	if cmd.Exit != nil {
		return ErrExit
	}
	return nil
}

func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	return rt.RunCommand(cmdline, output)
}

func (rt *CmdRunner) GetPrompt() string {
	return Prompt
}

// Completer completes command names and their keywords.
func (rt *CmdRunner) Completer() readline.AutoCompleter {
	onOff := []readline.PrefixCompleterInterface{readline.PcItem("on"), readline.PcItem("off")}
	sub := map[string][]readline.PrefixCompleterInterface{
		"config": {
			readline.PcItem("br", onOff...), readline.PcItem("nat64", onOff...),
			readline.PcItem("dhcp6pd", onOff...), readline.PcItem("srpwait", onOff...),
			readline.PcItem("autojoin", onOff...),
		},
		"ephemeralkey": {readline.PcItem("activate"), readline.PcItem("deactivate")},
		"leave":        {readline.PcItem("erase")},
		"ot":           {readline.PcItem("interactive")},
		"trel":         {readline.PcItem("enable"), readline.PcItem("disable")},
	}
	for _, lv := range []string{"micro", "trace", "debug", "info", "note", "warn", "error", "off"} {
		sub["log"] = append(sub["log"], readline.PcItem(lv))
	}

	names := rt.help.commandNames()
	var topics []readline.PrefixCompleterInterface
	for _, name := range names {
		topics = append(topics, readline.PcItem(name))
	}
	sub["help"] = topics

	items := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		items = append(items, readline.PcItem(name, sub[name]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	ctx, cancel := context.WithTimeout(rt.ctx, rt.timeout)
	defer cancel()
	cc := &CommandContext{
		Context: ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	if cmd.State != nil {
		rt.executeState(cc)
	} else if cmd.Enable != nil {
		cc.error(rt.daemon.SetThreadEnabled(cc, true))
	} else if cmd.Disable != nil {
		cc.error(rt.daemon.SetThreadEnabled(cc, false))
	} else if cmd.Join != nil {
		rt.executeJoin(cc, cmd.Join)
	} else if cmd.Leave != nil {
		cc.error(rt.daemon.Leave(cc, cmd.Leave.Erase))
	} else if cmd.Migrate != nil {
		rt.executeMigrate(cc, cmd.Migrate)
	} else if cmd.CountryCode != nil {
		cc.error(rt.daemon.SetCountryCode(cc, cmd.CountryCode.Code))
	} else if cmd.ChannelMasks != nil {
		rt.executeChannelMasks(cc)
	} else if cmd.MaxPower != nil {
		rt.executeMaxPower(cc, cmd.MaxPower)
	} else if cmd.Config != nil {
		rt.executeConfig(cc, cmd.Config)
	} else if cmd.InfraLink != nil {
		rt.executeInfraLink(cc, cmd.InfraLink)
	} else if cmd.Nat64Prefix != nil {
		cc.error(rt.daemon.SetInfraLinkNat64Prefix(cc, cmd.Nat64Prefix.Prefix))
	} else if cmd.Dns != nil {
		cc.error(rt.daemon.SetInfraLinkDnsServers(cc, cmd.Dns.Servers))
	} else if cmd.Trel != nil {
		cc.error(rt.daemon.SetTrelEnabled(cc, cmd.Trel.State == "enable"))
	} else if cmd.EphemeralKey != nil {
		rt.executeEphemeralKey(cc, cmd.EphemeralKey)
	} else if cmd.Ot != nil {
		rt.executeOt(cc, cmd.Ot)
	} else if cmd.Dump != nil {
		rt.executeDump(cc)
	} else if cmd.Terminate != nil {
		cc.error(rt.daemon.Terminate(cc))
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Exit != nil {
		// handled by RunCommand
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

func (rt *CmdRunner) executeState(cc *CommandContext) {
	st, err := rt.daemon.GetStatus(cc)
	if err != nil {
		cc.error(err)
		return
	}
	cc.outputItemsAsYaml(st)
}

func (rt *CmdRunner) executeJoin(cc *CommandContext, cmd *JoinCmd) {
	ds, err := dataset.ParseHex(cmd.Dataset)
	if err != nil {
		cc.errorf("invalid dataset: %v", err)
		return
	}
	cc.error(rt.daemon.Join(cc, ds.Bytes()))
}

func (rt *CmdRunner) executeMigrate(cc *CommandContext, cmd *MigrateCmd) {
	ds, err := dataset.ParseHex(cmd.Dataset)
	if err != nil {
		cc.errorf("invalid dataset: %v", err)
		return
	}
	cc.error(rt.daemon.ScheduleMigration(cc, ds.Bytes()))
}

func (rt *CmdRunner) executeChannelMasks(cc *CommandContext) {
	masks, err := rt.daemon.GetChannelMasks(cc)
	if err != nil {
		cc.error(err)
		return
	}
	cc.outputf("supported: 0x%08x\n", masks.Supported)
	cc.outputf("preferred: 0x%08x\n", masks.Preferred)
}

func (rt *CmdRunner) executeMaxPower(cc *CommandContext, cmd *MaxPowerCmd) {
	power := cmd.Power
	if cmd.Negative {
		power = -power
	}
	cc.error(rt.daemon.SetChannelMaxPowers(cc, []types.ChannelMaxPower{{Channel: cmd.Channel, MaxPower: power}}))
}

// currentConfiguration reads the configuration from the daemon status.
func (rt *CmdRunner) currentConfiguration(cc *CommandContext) (types.OtDaemonConfiguration, error) {
	var config types.OtDaemonConfiguration
	st, err := rt.daemon.GetStatus(cc)
	if err != nil {
		return config, err
	}
	data, err := yaml.Marshal(st["configuration"])
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(data, &config)
	return config, err
}

func (rt *CmdRunner) executeConfig(cc *CommandContext, cmd *ConfigCmd) {
	config, err := rt.currentConfiguration(cc)
	if err != nil {
		cc.error(err)
		return
	}
	if cmd.Option == nil {
		cc.outputItemsAsYaml(config)
		return
	}

	on := cmd.Option.Value == "on"
	switch cmd.Option.Name {
	case "br":
		config.BorderRouterEnabled = on
	case "nat64":
		config.Nat64Enabled = on
	case "dhcp6pd":
		config.Dhcpv6PdEnabled = on
	case "srpwait":
		config.SrpServerWaitForBorderRoutingEnabled = on
	case "autojoin":
		config.BorderRouterAutoJoinEnabled = on
	}
	cc.error(rt.daemon.SetConfiguration(cc, config))
}

func (rt *CmdRunner) executeInfraLink(cc *CommandContext, cmd *InfraLinkCmd) {
	socket := -1
	if cmd.Socket != nil {
		socket = *cmd.Socket
	} else if cmd.Name != "" {
		socket = 0
	}
	cc.error(rt.daemon.SetInfraLinkInterfaceName(cc, cmd.Name, socket))
}

func (rt *CmdRunner) executeEphemeralKey(cc *CommandContext, cmd *EphemeralKeyCmd) {
	if cmd.Deactivate {
		cc.error(rt.daemon.DeactivateEphemeralKeyMode(cc))
		return
	}
	if err := rt.daemon.ActivateEphemeralKeyMode(cc, time.Duration(*cmd.Lifetime)*time.Millisecond); err != nil {
		cc.error(err)
		return
	}

	st, err := rt.daemon.GetStatus(cc)
	if err != nil {
		cc.error(err)
		return
	}
	if state, ok := st["state"].(map[string]interface{}); ok {
		cc.outputf("%v\n", state["ephemeral_key_passcode"])
	}
}

func (rt *CmdRunner) executeOt(cc *CommandContext, cmd *OtCmd) {
	err := rt.daemon.RunOtCtlCommand(cc, cmd.Line, cmd.Interactive, func(chunk string) {
		cc.outputStr(strings.ReplaceAll(chunk, "\r\n", "\n"))
	})
	cc.error(err)
}

func (rt *CmdRunner) executeDump(cc *CommandContext) {
	dump, err := rt.daemon.Dump(cc)
	if err != nil {
		cc.error(err)
		return
	}
	cc.outputStr(dump)
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevelString(logger.GetLevel()))
		return
	}
	level, err := logger.ParseLevelString(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(level)
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) == 0 {
		cc.outputStr(rt.help.outputGeneralHelp())
		return
	}
	text, err := rt.help.outputCommandHelp(cmd.HelpTopic)
	if err != nil {
		cc.error(err)
		return
	}
	cc.outputStr(text)
}
