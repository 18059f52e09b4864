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

// Command ot-ctl is the console of a running ot-daemon.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openthread/ot-daemon/cli"
	"github.com/openthread/ot-daemon/ipc"
	"github.com/openthread/ot-daemon/logger"
)

func newCommand() *cobra.Command {
	var (
		address string
		echo    bool
	)
	cmd := &cobra.Command{
		Use:           "ot-ctl [command...]",
		Short:         "Console of ot-daemon. Runs one command if given, otherwise starts an interactive console",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(address)
			if err != nil {
				return err
			}
			defer client.Close()

			runner := cli.NewCmdRunner(cmd.Context(), client)
			if len(args) > 0 {
				return runner.RunCommand(strings.Join(args, " "), os.Stdout)
			}

			options := cli.DefaultCliOptions()
			options.EchoInput = echo
			logger.SetStdoutCallback(cli.Cli)
			return cli.Cli.Run(runner, options)
		},
	}
	cmd.Flags().StringVar(&address, "ipc", "unix:/tmp/ot-daemon.sock", "ot-daemon IPC address")
	cmd.Flags().BoolVar(&echo, "echo", false, "echo input lines")
	return cmd
}

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil && err != cli.ErrExit {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
