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

// Package otcli drives an OpenThread instance running as a separate ot-cli process (for example the POSIX
// ot-cli-ftd talking to an RCP) through its command line interface.
package otcli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/otoutfilter"
	"github.com/openthread/ot-daemon/types"
)

const (
	DefaultCommandTimeout = time.Second * 10
	ProcessExitTimeout    = time.Second * 3
)

var (
	DoneOrErrorRegexp = regexp.MustCompile(`^(Done|Error \d+: .*)$`)

	ErrProcessExited = errors.New("ot-cli process exited")
)

// Process is a connection to the CLI of an OpenThread process. It is not safe for concurrent use; all
// commands are issued from the goroutine owning the stack.
type Process struct {
	Logger *logger.StackLogger
	name   string
	cmd    *exec.Cmd

	pipeIn       io.WriteCloser
	pendingLines chan string
	exited       chan struct{}
	exitErr      error
}

// StartProcess starts the executable with args and connects to its CLI.
func StartProcess(ctx context.Context, name string, executable string, args []string, stackLog *logger.StackLogger) (*Process, error) {
	cmd := exec.CommandContext(ctx, executable, args...)

	pipeIn, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	pipeOut, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	pipeErr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", executable)
	}

	p := newProcess(name, pipeIn, pipeOut, stackLog)
	p.cmd = cmd
	go p.lineReaderStdErr(pipeErr)
	p.Logger.Logf(logger.InfoLevel, "started %s %s, pid %d", executable, strings.Join(args, " "), cmd.Process.Pid)
	return p, nil
}

// NewPipeProcess connects to a CLI reachable through in and out, for example a serial console.
func NewPipeProcess(name string, in io.WriteCloser, out io.Reader, stackLog *logger.StackLogger) *Process {
	return newProcess(name, in, out, stackLog)
}

func newProcess(name string, in io.WriteCloser, out io.Reader, stackLog *logger.StackLogger) *Process {
	if stackLog == nil {
		stackLog = logger.NewStackLogger(name, "")
	}
	p := &Process{
		Logger:       stackLog,
		name:         name,
		pipeIn:       in,
		pendingLines: make(chan string, 10000),
		exited:       make(chan struct{}),
	}
	go p.lineReader(otoutfilter.NewOTOutFilter(out, stackLog))
	return p
}

func (p *Process) String() string {
	return p.name
}

func (p *Process) lineReader(reader io.Reader) {
	defer close(p.exited)
	scanner := bufio.NewScanner(reader)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		p.pendingLines <- strings.TrimRight(scanner.Text(), "\r")
	}
	p.exitErr = scanner.Err()
	p.Logger.Logf(logger.InfoLevel, "CLI output closed: %v", p.exitErr)
	p.Logger.Flush()
}

func (p *Process) lineReaderStdErr(reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		p.Logger.Logf(logger.ErrorLevel, "StdErr: %s", scanner.Text())
	}
	p.Logger.Flush()
}

func (p *Process) inputCommand(cmd string) error {
	_, err := p.pipeIn.Write([]byte(cmd + "\n"))
	return err
}

// Command runs cmd and returns its output lines without the echo and the final Done line. A final
// "Error N: Text" line is returned as a *types.Error.
func (p *Process) Command(cmd string, timeout time.Duration) ([]string, error) {
	if err := p.inputCommand(cmd); err != nil {
		return nil, err
	}
	output, err := p.expectLine(DoneOrErrorRegexp, timeout)
	defer p.Logger.Flush()
	if err != nil {
		p.Logger.Logf(logger.ErrorLevel, "command '%s' failed: %v", cmd, err)
		return nil, err
	}

	if len(output) > 0 && output[0] == cmd {
		output = output[1:]
	}
	var result string
	output, result = output[:len(output)-1], output[len(output)-1]
	if cliErr := types.ParseCliError(result); cliErr != nil {
		p.Logger.Logf(logger.DebugLevel, "command '%s': %s", cmd, result)
		return output, cliErr
	}
	return output, nil
}

// CommandExpectString runs cmd and expects exactly one output line.
func (p *Process) CommandExpectString(cmd string, timeout time.Duration) (string, error) {
	output, err := p.Command(cmd, timeout)
	if err != nil {
		return "", err
	}
	if len(output) != 1 {
		return "", types.NewError(types.OT_ERROR_PARSE, "%s: expected 1 line, but received %d: %#v", cmd, len(output), output)
	}
	return output[0], nil
}

// CommandStream runs cmd and passes each output line to output as soon as it is read, including the
// final Done or Error line.
func (p *Process) CommandStream(cmd string, timeout time.Duration, output func(line string)) error {
	if err := p.inputCommand(cmd); err != nil {
		return err
	}
	first := true
	deadline := time.After(timeout)
	for {
		select {
		case <-p.exited:
			return ErrProcessExited
		case <-deadline:
			return types.NewError(types.OT_ERROR_RESPONSE_TIMEOUT, "%s: no Done or Error", cmd)
		case line := <-p.pendingLines:
			if first && line == cmd {
				first = false
				continue
			}
			first = false
			output(line)
			if DoneOrErrorRegexp.MatchString(line) {
				return nil
			}
		}
	}
}

func (p *Process) expectLine(line interface{}, timeout time.Duration) ([]string, error) {
	var outputLines []string
	deadline := time.After(timeout)

	for {
		select {
		case <-p.exited:
			return outputLines, ErrProcessExited
		case <-deadline:
			return outputLines, types.NewError(types.OT_ERROR_RESPONSE_TIMEOUT, "expectLine timeout: expected %v", line)
		case readLine := <-p.pendingLines:
			if len(readLine) > 0 {
				p.Logger.Logf(logger.TraceLevel, "UART: %s", readLine)
			}
			outputLines = append(outputLines, readLine)
			if isLineMatch(readLine, line) {
				return outputLines, nil
			}
		}
	}
}

// AssurePrompt sends empty lines until the CLI answers, which resynchronizes after a reset.
func (p *Process) AssurePrompt(timeout time.Duration) error {
	for i := 0; i < 3; i++ {
		if err := p.inputCommand(""); err != nil {
			return err
		}
		if _, err := p.expectLine("", timeout); err == nil {
			p.drain()
			return nil
		}
	}
	return types.NewError(types.OT_ERROR_RESPONSE_TIMEOUT, "%s does not respond", p.name)
}

func (p *Process) drain() {
	for {
		select {
		case <-p.pendingLines:
		default:
			return
		}
	}
}

func isLineMatch(line string, _expectedLine interface{}) bool {
	switch expectedLine := _expectedLine.(type) {
	case string:
		return line == expectedLine
	case *regexp.Regexp:
		return expectedLine.MatchString(line)
	case []string:
		for _, s := range expectedLine {
			if s == line {
				return true
			}
		}
	default:
		logger.Panicf("unknown data type %v, expected string, Regexp or []string", expectedLine)
	}
	return false
}

// Exit stops the process: SIGTERM first, SIGKILL if it does not exit in time.
func (p *Process) Exit() error {
	_ = p.pipeIn.Close()
	if p.cmd == nil {
		return nil
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	processDone := make(chan bool)
	isKilled := false
	timeout := time.After(ProcessExitTimeout)
	go func() {
		select {
		case processDone <- true:
		case <-timeout:
			p.Logger.Logf(logger.WarnLevel, "%s did not exit in time, sending SIGKILL.", p.name)
			isKilled = true
			_ = p.cmd.Process.Kill()
			processDone <- true
		}
	}()
	err := p.cmd.Wait()
	<-processDone
	p.Logger.Close()

	if isKilled { // when killed, a "signal: killed" error is always given by Wait(). Suppress this.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s exited: %w", p.name, err)
	}
	return nil
}
