// Copyright (c) 2023, The OTNS Authors.
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

package logger

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log-level of the daemon. Values inherit OT logging.h values, so that log lines of the
// Thread stack and of the daemon share one scale.
type Level int8

const (
	MicroLevel   Level = 7
	TraceLevel   Level = 6
	DebugLevel   Level = 5
	InfoLevel    Level = 4
	NoteLevel    Level = 3
	WarnLevel    Level = 2
	ErrorLevel   Level = 1
	PanicLevel   Level = 0
	FatalLevel   Level = -1
	OffLevel     Level = -2
	MinLevel           = OffLevel
	DefaultLevel       = InfoLevel
)

const (
	EncodingConsole = "console"
	EncodingJson    = "json"

	timeLayout = "2006-01-02 15:04:05.000"
)

type logEntry struct {
	Level Level
	Msg   string
}

// StdoutCallback is notified after a log line was written while an interactive console owns the terminal.
type StdoutCallback interface {
	OnStdout()
}

// Options select where and how the daemon log is written.
type Options struct {
	// Encoding is "console" (human readable lines) or "json" (one object per line, for log collectors).
	Encoding string
	// Outputs are zap sink URLs or file paths, e.g. "stderr" or "/var/log/ot-daemon.log".
	Outputs []string
}

func DefaultOptions() Options {
	return Options{
		Encoding: EncodingConsole,
		Outputs:  []string{"stderr"},
	}
}

var (
	zaplogger       *zap.Logger
	structured      bool
	currentLevel    = DefaultLevel
	isLogToTerminal bool
	cbStdout        StdoutCallback
	levelLock       sync.RWMutex
	zapLevels       = []zapcore.Level{zapcore.FatalLevel + 1, zapcore.FatalLevel, zapcore.PanicLevel,
		zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.InfoLevel, zapcore.InfoLevel, zapcore.DebugLevel,
		zapcore.DebugLevel, zapcore.DebugLevel}
)

func init() {
	if o, err := os.Stdout.Stat(); err == nil && o.Mode()&os.ModeCharDevice == os.ModeCharDevice {
		isLogToTerminal = true
	}
	PanicIfError(Configure(DefaultOptions()))
}

// Configure rebuilds the logger with opts. The current level is kept.
func Configure(opts Options) error {
	if len(opts.Outputs) == 0 {
		opts.Outputs = DefaultOptions().Outputs
	}
	switch opts.Encoding {
	case "", EncodingConsole:
		opts.Encoding = EncodingConsole
	case EncodingJson:
	default:
		return errors.Errorf("unknown log encoding %q", opts.Encoding)
	}

	enc := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "module",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if opts.Encoding == EncodingConsole {
		enc.ConsoleSeparator = " - "
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Encoding:         opts.Encoding,
		EncoderConfig:    enc,
		OutputPaths:      opts.Outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	newLogger, err := cfg.Build()
	if err != nil {
		return errors.Wrapf(err, "build logger for %s", strings.Join(opts.Outputs, ","))
	}

	levelLock.Lock()
	old := zaplogger
	zaplogger = newLogger
	structured = opts.Encoding == EncodingJson
	levelLock.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	levelLock.RLock()
	defer levelLock.RUnlock()
	_ = zaplogger.Sync()
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	levelLock.Lock()
	defer levelLock.Unlock()
	currentLevel = lv
}

// GetLevel get the current log level
func GetLevel() Level {
	levelLock.RLock()
	defer levelLock.RUnlock()
	return currentLevel
}

// SetStdoutCallback sets a callback, that the logger will call when new log content was written to stdout/stderr.
func SetStdoutCallback(cb StdoutCallback) {
	levelLock.Lock()
	defer levelLock.Unlock()
	cbStdout = cb
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	Logf(ErrorLevel, "%s", []interface{}{debug.Stack()})
	Errorf(format, args...)
}

// getMessage formats a string efficiently with Sprint, Sprintf, or neither.
func getMessage(template string, fmtArgs []interface{}) string {
	if len(fmtArgs) == 0 {
		return template
	}

	if template != "" {
		return fmt.Sprintf(template, fmtArgs...)
	}

	if len(fmtArgs) == 1 {
		if str, ok := fmtArgs[0].(string); ok {
			return str
		}
	}
	return fmt.Sprint(fmtArgs...)
}

// Logf outputs formatted log message at specified level using logger.
func Logf(level Level, format string, args []interface{}) {
	if level > GetLevel() {
		return
	}
	logAlways(level, "", getMessage(format, args))
}

// logAlways is a helper func that doesn't check level prior to logging to zaplogger. A non-empty module
// becomes the "module" field of structured output and the message prefix otherwise.
func logAlways(level Level, module string, msg string) {
	levelLock.RLock()
	zl, json, cb := zaplogger, structured, cbStdout
	levelLock.RUnlock()

	if module != "" {
		if json {
			zl = zl.Named(strings.TrimRight(module, "-"))
		} else {
			msg = module + ": " + msg
		}
	}
	if isLogToTerminal && cb != nil {
		_, _ = fmt.Fprint(os.Stdout, "\033[2K\r") // ANSI sequence to clear the CLI line
	}
	zl.Log(zapLevels[level-MinLevel], msg)
	if isLogToTerminal && cb != nil {
		cb.OnStdout()
	}
}

func Tracef(format string, args ...interface{}) {
	Logf(TraceLevel, format, args)
}

func Debugf(format string, args ...interface{}) {
	Logf(DebugLevel, format, args)
}

func Infof(format string, args ...interface{}) {
	Logf(InfoLevel, format, args)
}

func Notef(format string, args ...interface{}) {
	Logf(NoteLevel, format, args)
}

func Warnf(format string, args ...interface{}) {
	Logf(WarnLevel, format, args)
}

func Errorf(format string, args ...interface{}) {
	Logf(ErrorLevel, format, args)
}

func Panicf(format string, args ...interface{}) {
	Logf(PanicLevel, format, args)
}

func Fatalf(format string, args ...interface{}) {
	Logf(FatalLevel, format, args)
}

func PanicIfError(err error, args ...interface{}) {
	if err == nil {
		return
	}
	if len(args) == 0 {
		args = []interface{}{err}
	}
	Logf(PanicLevel, "", args)
}

type assertLogger struct{}

func (t assertLogger) Errorf(format string, args ...interface{}) {
	Panicf(format, args...)
}

func AssertEqual(expected, actual interface{}, msgAndArgs ...interface{}) bool {
	return assert.Equal(assertLogger{}, expected, actual, msgAndArgs...)
}

func AssertTrue(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(assertLogger{}, value, msgAndArgs...)
}

func AssertFalse(value bool, msgAndArgs ...interface{}) bool {
	return assert.False(assertLogger{}, value, msgAndArgs...)
}
