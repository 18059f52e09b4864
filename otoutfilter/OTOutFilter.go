// Copyright (c) 2020, The OTNS Authors.
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

// Package otoutfilter separates the CLI output of an OpenThread process from the log lines it interleaves
// into the same stream.
package otoutfilter

import (
	"bufio"
	"io"
	"strings"
	"sync/atomic"

	"github.com/openthread/ot-daemon/logger"
)

const prompt = "> "

// Filter is a reader of the CLI output of an OpenThread process. Log lines are removed from the stream, and
// the input prompt is removed from the start of lines.
type Filter struct {
	r        *bufio.Reader
	pending  string
	stackLog *logger.StackLogger

	outputLines atomic.Uint64
	logLines    atomic.Uint64
}

// NewOTOutFilter returns a reader of the CLI output in reader. Log lines are passed to stackLog, or to the
// daemon log if stackLog is nil.
func NewOTOutFilter(reader io.Reader, stackLog *logger.StackLogger) *Filter {
	return &Filter{r: bufio.NewReader(reader), stackLog: stackLog}
}

func (f *Filter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for f.pending == "" {
		line, err := f.r.ReadString('\n')
		if len(line) > 0 && (err == nil || strings.HasSuffix(line, "\n")) {
			f.pending = f.filterLine(line)
			continue
		}
		if err != nil {
			// an unterminated last line can not be classified and is dropped
			return 0, err
		}
	}

	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// filterLine returns the CLI output part of line, or "" for a log line.
func (f *Filter) filterLine(line string) string {
	line = strings.TrimPrefix(line, prompt)
	if isLog, _ := logger.ParseOtLogLine(line); isLog {
		f.logLines.Add(1)
		f.printLog(strings.TrimSpace(line))
		return ""
	}
	f.outputLines.Add(1)
	return line
}

func (f *Filter) printLog(line string) {
	if f.stackLog != nil {
		f.stackLog.LogLine(line)
		return
	}
	ll, _ := logger.ParseOtLog(line)
	if ll.Module != "" {
		logger.Tagged(ll.Module).Logf(ll.Level, "%s", []interface{}{ll.Message})
		return
	}
	logger.Logf(ll.Level, "%s", []interface{}{line})
}

// OutputLines returns the number of CLI output lines passed through.
func (f *Filter) OutputLines() uint64 {
	return f.outputLines.Load()
}

// LogLines returns the number of log lines removed from the stream.
func (f *Filter) LogLines() uint64 {
	return f.logLines.Load()
}
