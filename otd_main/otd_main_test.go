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

package otd_main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/config"
	"github.com/openthread/ot-daemon/ipc"
	"github.com/openthread/ot-daemon/progctx"
	"github.com/openthread/ot-daemon/types"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ot-daemon.yaml")
	fileCfg := config.DefaultConfig()
	fileCfg.CountryCode = "DE"
	fileCfg.LogLevel = "warn"
	require.NoError(t, config.Save(path, fileCfg))

	cmd := NewCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--config", path, "--log", "debug", "--enabled", "--seed", "7"}))
	var args MainArgs
	args.ConfigFile = path
	args.LogLevel = "debug"
	args.Enabled = true
	args.Stack = config.StackSim
	args.Seed = 7

	cfg, err := loadConfig(&args, cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "DE", cfg.CountryCode)
	assert.Equal(t, config.StackSim, cfg.Stack)
	assert.EqualValues(t, 7, cfg.SimSeed)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cmd := NewCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--country", "USA"}))
	_, err := loadConfig(&MainArgs{CountryCode: "USA"}, cmd.Flags())
	assert.Error(t, err)
}

func TestDaemon_RunTerminate(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SettingsPath = filepath.Join(dir, "settings.db")
	cfg.IpcAddress = "unix:" + filepath.Join(dir, "ot-daemon.sock")
	cfg.HttpAddress = "127.0.0.1:0"
	cfg.Telemetry.AtomLog = filepath.Join(dir, "atoms.log")
	cfg.CountryCode = "CN"
	require.NoError(t, cfg.Validate())

	ctx := progctx.New(context.Background())
	d, err := NewDaemon(ctx, cfg)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- d.Run("") }()

	client, err := ipc.Dial(cfg.IpcAddress)
	require.NoError(t, err)
	defer client.Close()

	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		st, err := client.GetStatus(rctx)
		return err == nil && st["country_code"] == "CN" && st["thread_enabled"] == types.ThreadStateDisabled.String()
	}, 5*time.Second, 10*time.Millisecond)

	// the connection may close before the reply arrives
	_ = client.Terminate(rctx)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not terminate")
	}
	ctx.Wait()
}

func TestDaemon_Reload(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SettingsPath = filepath.Join(dir, "settings.db")
	cfg.IpcAddress = "unix:" + filepath.Join(dir, "ot-daemon.sock")
	cfg.HttpAddress = ""
	cfg.Telemetry.Enabled = false

	ctx := progctx.New(context.Background())
	d, err := NewDaemon(ctx, cfg)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- d.Run("") }()
	defer func() {
		ctx.Cancel(nil)
		assert.NoError(t, <-done)
		ctx.Wait()
	}()

	changed := config.DefaultConfig()
	changed.Configuration = types.OtDaemonConfiguration{BorderRouterEnabled: true, Nat64Enabled: true}
	d.reload(changed)

	require.Eventually(t, func() bool {
		st, err := d.Server().GetStatus(context.Background())
		return err == nil && st.Configuration.Nat64Enabled
	}, 5*time.Second, 10*time.Millisecond)
}
