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

// Package config holds the configuration file of ot-daemon.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/types"
)

const (
	StackSim   = "sim"
	StackOtCli = "otcli"
)

type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	CheckInterval  time.Duration `yaml:"check_interval"`
	UploadInterval time.Duration `yaml:"upload_interval"`
	// AtomLog is the file the atoms are appended to.
	AtomLog string `yaml:"atom_log"`
}

func (t TelemetryConfig) Reporter() telemetry.Config {
	return telemetry.Config{CheckInterval: t.CheckInterval, UploadInterval: t.UploadInterval}
}

type Config struct {
	// Stack selects the OpenThread instance: StackSim or StackOtCli.
	Stack     string   `yaml:"stack"`
	OtCliPath string   `yaml:"ot_cli_path"`
	OtCliArgs []string `yaml:"ot_cli_args"`
	// SimSeed seeds the simulated stack. 0 picks a time based seed.
	SimSeed int64 `yaml:"sim_seed"`
	// StackLogFile receives the log lines of the ot-cli process. Empty disables it.
	StackLogFile string `yaml:"stack_log_file"`
	SettingsPath string `yaml:"settings_path"`
	// IpcAddress is "unix:<path>" or a TCP "host:port".
	IpcAddress  string `yaml:"ipc_address"`
	HttpAddress string `yaml:"http_address"`
	LogLevel    string `yaml:"log_level"`
	// LogEncoding is "console" or "json".
	LogEncoding string   `yaml:"log_encoding"`
	LogOutputs  []string `yaml:"log_outputs"`
	// MdnsInterfaces limits mDNS publishing to the named interfaces. Empty means all.
	MdnsInterfaces []string        `yaml:"mdns_interfaces"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`

	// The values below are handed to the daemon as if a platform client had initialized it.
	Enabled       bool                        `yaml:"enabled"`
	CountryCode   string                      `yaml:"country_code"`
	Configuration types.OtDaemonConfiguration `yaml:"configuration"`
	MeshcopTxts   types.MeshcopTxtAttributes  `yaml:"meshcop_txts"`
}

func DefaultConfig() *Config {
	tc := telemetry.DefaultConfig()
	return &Config{
		Stack:        StackSim,
		OtCliPath:    "ot-cli-ftd",
		OtCliArgs:    []string{"1"},
		SettingsPath: "ot-daemon.db",
		IpcAddress:   "unix:/tmp/ot-daemon.sock",
		HttpAddress:  "localhost:8081",
		LogLevel:     "info",
		LogEncoding:  logger.EncodingConsole,
		LogOutputs:   []string{"stderr"},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			CheckInterval:  tc.CheckInterval,
			UploadInterval: tc.UploadInterval,
			AtomLog:        "ot-daemon-atoms.log",
		},
		Configuration: types.OtDaemonConfiguration{
			BorderRouterEnabled: true,
		},
		MeshcopTxts: types.MeshcopTxtAttributes{
			VendorName: "OpenThread",
			ModelName:  "ot-daemon",
		},
	}
}

// LogOptions returns the logger options of the config.
func (c *Config) LogOptions() logger.Options {
	return logger.Options{Encoding: c.LogEncoding, Outputs: c.LogOutputs}
}

// Validate checks the values that the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Stack {
	case StackSim:
	case StackOtCli:
		if c.OtCliPath == "" {
			return errors.Errorf("stack %s requires ot_cli_path", c.Stack)
		}
	default:
		return errors.Errorf("invalid stack: %q", c.Stack)
	}
	if _, err := logger.ParseLevelString(c.LogLevel); err != nil {
		return err
	}
	if c.LogEncoding != logger.EncodingConsole && c.LogEncoding != logger.EncodingJson {
		return errors.Errorf("invalid log_encoding: %q", c.LogEncoding)
	}
	if c.IpcAddress == "" || c.IpcAddress == "unix:" {
		return errors.Errorf("ipc_address is required")
	}
	if c.CountryCode != "" && !types.IsValidCountryCode(c.CountryCode) {
		return errors.Errorf("invalid country_code: %q", c.CountryCode)
	}
	if c.Configuration.Dhcpv6PdEnabled {
		return errors.Errorf("configuration.dhcpv6_pd_enabled is not supported")
	}
	if c.Telemetry.Enabled && (c.Telemetry.CheckInterval <= 0 || c.Telemetry.UploadInterval <= 0) {
		return errors.Errorf("telemetry intervals must be positive")
	}
	if strings.TrimSpace(c.MeshcopTxts.VendorName) == "" || strings.TrimSpace(c.MeshcopTxts.ModelName) == "" {
		return errors.Errorf("meshcop_txts requires vendor_name and model_name")
	}
	return nil
}

// Load reads the file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err = Parse(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes data into cfg. Unknown keys are errors.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrapf(err, "create pending file for %s", path)
	}
	defer func() {
		_ = f.Cleanup()
	}()

	if _, err = f.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.CloseAtomicallyReplace(), "replace %s", path)
}
