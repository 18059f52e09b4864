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

// Package otd_main implements the ot-daemon command: it wires the OpenThread stack, the lifecycle
// controller, the IPC server and the status server together and runs them until terminated.
package otd_main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/simonlingoogle/go-simplelogger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/openthread/ot-daemon/config"
	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/ipc"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/mdns"
	"github.com/openthread/ot-daemon/otcli"
	"github.com/openthread/ot-daemon/otdaemon"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/prng"
	"github.com/openthread/ot-daemon/progctx"
	"github.com/openthread/ot-daemon/settings"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/web"
)

const shutdownTimeout = 10 * time.Second

type MainArgs struct {
	ConfigFile  string
	Stack       string
	Seed        int64
	OtCliPath   string
	Settings    string
	IpcAddress  string
	HttpAddress string
	LogLevel    string
	Enabled     bool
	CountryCode string
}

// NewCommand returns the ot-daemon root command.
func NewCommand() *cobra.Command {
	var args MainArgs
	cmd := &cobra.Command{
		Use:           "ot-daemon",
		Short:         "Thread network daemon controlling the enablement lifecycle of an OpenThread stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(&args, cmd.Flags())
			if err != nil {
				return err
			}
			ctx := progctx.New(cmd.Context())
			handleSignals(ctx)
			return Main(ctx, cfg, args.ConfigFile)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&args.ConfigFile, "config", "c", "", "YAML configuration file, watched for changes")
	f.StringVar(&args.Stack, "stack", config.StackSim, "OpenThread stack: sim or otcli")
	f.Int64Var(&args.Seed, "seed", 0, "random seed of the sim stack, 0 for a time based seed")
	f.StringVar(&args.OtCliPath, "ot-cli", "", "ot-cli-ftd executable for the otcli stack")
	f.StringVar(&args.Settings, "settings", "", "settings database file")
	f.StringVar(&args.IpcAddress, "ipc", "", "IPC listen address, unix:<path> or host:port")
	f.StringVar(&args.HttpAddress, "http", "", "status server listen address, empty to disable")
	f.StringVar(&args.LogLevel, "log", "", "log level: trace, debug, info, note, warn, error")
	f.BoolVar(&args.Enabled, "enabled", false, "enable Thread at startup")
	f.StringVar(&args.CountryCode, "country", "", "two letter country code")
	return cmd
}

// loadConfig reads the config file and applies the flags that were set on the command line.
func loadConfig(args *MainArgs, flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if args.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(args.ConfigFile); err != nil {
			return nil, err
		}
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "stack":
			cfg.Stack = args.Stack
		case "seed":
			cfg.SimSeed = args.Seed
		case "ot-cli":
			cfg.OtCliPath = args.OtCliPath
		case "settings":
			cfg.SettingsPath = args.Settings
		case "ipc":
			cfg.IpcAddress = args.IpcAddress
		case "http":
			cfg.HttpAddress = args.HttpAddress
		case "log":
			cfg.LogLevel = args.LogLevel
		case "enabled":
			cfg.Enabled = args.Enabled
		case "country":
			cfg.CountryCode = args.CountryCode
		}
	})
	return cfg, cfg.Validate()
}

func setLogLevel(level string) {
	lv, err := logger.ParseLevelString(level)
	if err != nil {
		logger.Warnf("%v", err)
		return
	}
	logger.SetLevel(lv)
}

// Daemon is one running ot-daemon instance.
type Daemon struct {
	ctx      *progctx.ProgCtx
	cfg      *config.Config
	store    *settings.Store
	runner   *dispatcher.Dispatcher
	stack    otstack.Stack
	proc     *otcli.Process
	nsd      *mdns.ZeroconfPublisher
	server   *otdaemon.Server
	ipc      *ipc.Server
	web      *web.Server
	listener net.Listener
}

// NewDaemon creates all components of a daemon. Nothing runs until Run.
func NewDaemon(ctx *progctx.ProgCtx, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{ctx: ctx, cfg: cfg}
	var err error
	if d.store, err = settings.Open(cfg.SettingsPath, settings.DefaultConfig()); err != nil {
		return nil, err
	}

	d.runner = dispatcher.NewDispatcher(ctx, nil)
	if err = d.createStack(); err != nil {
		d.close()
		return nil, err
	}

	serverCfg := otdaemon.ServerConfig{
		Runner:    d.runner,
		Stack:     d.stack,
		Settings:  d.store.Namespace("daemon"),
		Terminate: func() { ctx.Cancel(errors.New("terminate requested")) },
	}
	if cfg.Telemetry.Enabled {
		tc := cfg.Telemetry.Reporter()
		serverCfg.Telemetry = &tc
		serverCfg.TelemetrySink = telemetry.NewAtomLog(cfg.Telemetry.AtomLog)
	}
	d.server = otdaemon.NewServer(serverCfg)

	if d.nsd, err = mdns.NewZeroconfPublisher(cfg.MdnsInterfaces); err != nil {
		logger.Warnf("mDNS publishing is not available: %v", err)
		d.nsd = nil
	}

	if d.listener, err = ipc.Listen(cfg.IpcAddress); err != nil {
		d.close()
		return nil, errors.Wrapf(err, "listen %s", cfg.IpcAddress)
	}
	d.ipc = ipc.NewServer(d.server, d.nsdPublisher())
	if cfg.HttpAddress != "" {
		d.web = web.NewServer(d.server, web.DefaultConfig())
	}
	return d, nil
}

func (d *Daemon) nsdPublisher() mdns.NsdPublisher {
	if d.nsd == nil {
		return nil
	}
	return d.nsd
}

func (d *Daemon) createStack() error {
	var err error
	switch d.cfg.Stack {
	case config.StackOtCli:
		stackLog := logger.NewStackLogger("ot-cli", d.cfg.StackLogFile)
		if d.proc, err = otcli.StartProcess(d.ctx, "ot-cli", d.cfg.OtCliPath, d.cfg.OtCliArgs, stackLog); err != nil {
			return err
		}
		stack, err := otcli.NewStack(d.proc, nil, d.runner)
		if err != nil {
			return err
		}
		d.stack = stack
	default:
		prng.Init(d.cfg.SimSeed)
		stack, err := otstack.NewSimStack(nil, d.runner, d.store.Namespace("stack"))
		if err != nil {
			return err
		}
		d.stack = stack
	}
	return nil
}

// Server returns the lifecycle controller.
func (d *Daemon) Server() *otdaemon.Server {
	return d.server
}

// Addr returns the address of the IPC listener.
func (d *Daemon) Addr() net.Addr {
	return d.listener.Addr()
}

// Run initializes the controller with the configured values and serves until the program context is
// done or a server fails.
func (d *Daemon) Run(configPath string) error {
	defer d.close()

	cfg := d.cfg
	d.server.Initialize(cfg.Enabled, cfg.Configuration, d.nsdPublisher(), cfg.MeshcopTxts, nil, cfg.CountryCode)

	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error {
		d.runner.Run()
		return nil
	})
	g.Go(func() error {
		return d.ipc.Serve(d.listener)
	})
	if d.web != nil {
		g.Go(func() error {
			if err := d.web.Serve(cfg.HttpAddress); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if configPath != "" {
		w := config.NewWatcher(configPath, config.DefaultDebounce, d.reload)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		d.ctx.Cancel(nil)
		d.ipc.Stop()
		if d.web != nil {
			d.web.Stop()
		}
		d.runner.Stop()
		return nil
	})

	err := g.Wait()
	simplelogger.Debugf("waiting for ot-daemon to stop gracefully ...")
	return err
}

// reload applies the live-reloadable values of a changed config file.
func (d *Daemon) reload(cfg *config.Config) {
	setLogLevel(cfg.LogLevel)
	d.server.SetConfiguration(cfg.Configuration, otdaemon.ReceiverFunc(func(err error) {
		if err != nil {
			logger.Warnf("reloaded configuration rejected: %v", err)
		}
	}))
}

func (d *Daemon) close() {
	if d.stack != nil {
		_ = d.stack.Close()
	}
	if d.proc != nil {
		_ = d.proc.Exit()
	}
	if d.nsd != nil {
		d.nsd.Reset()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// Main runs ot-daemon with cfg until ctx is cancelled.
func Main(ctx *progctx.ProgCtx, cfg *config.Config, configPath string) error {
	if err := logger.Configure(cfg.LogOptions()); err != nil {
		return err
	}
	defer logger.Sync()
	setLogLevel(cfg.LogLevel)
	logger.Infof("ot-daemon starting: stack=%s ipc=%s http=%s", cfg.Stack, cfg.IpcAddress, cfg.HttpAddress)

	d, err := NewDaemon(ctx, cfg)
	if err != nil {
		ctx.Cancel(err)
		ctx.Wait()
		return err
	}

	err = d.Run(configPath)
	ctx.Cancel(err)
	if !ctx.WaitTimeout(shutdownTimeout) {
		return errors.Errorf("shutdown timed out, still running: %s", ctx.Running())
	}
	logger.Infof("ot-daemon stopped: %v", ctx.Cause())
	return err
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGALRM)

	ctx.WaitAdd("handleSignals", 1)
	go func() {
		defer simplelogger.Debugf("handleSignals exit.")
		defer ctx.WaitDone("handleSignals")
		defer signal.Stop(c)

		for {
			select {
			case sig := <-c:
				simplelogger.Infof("signal received: %v", sig)
				ctx.Cancel(nil)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Execute runs the ot-daemon command with the process arguments.
func Execute() {
	if err := NewCommand().ExecuteContext(context.Background()); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
