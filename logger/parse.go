// Copyright (c) 2022-2024, The OTNS Authors.
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
	"regexp"

	"github.com/pkg/errors"
)

// Example POSIX ot-cli log lines:
//
//	00:00:02.233 [N] Mle-----------: Role detached -> leader
//	[WARN]-MLE-----: Failed to process
var (
	logPattern       = regexp.MustCompile(`\[(-|C|W|N|I|D|CRIT|WARN|NOTE|INFO|DEBG)]`)
	logModulePattern = regexp.MustCompile(`[\]-] ?([A-Za-z0-9]+)-*: (.*)$`)
)

var levelNames = map[string]Level{
	"micro":    MicroLevel,
	"trace":    TraceLevel,
	"T":        TraceLevel,
	"debug":    DebugLevel,
	"D":        DebugLevel,
	"info":     InfoLevel,
	"I":        InfoLevel,
	"note":     NoteLevel,
	"N":        NoteLevel,
	"warn":     WarnLevel,
	"warning":  WarnLevel,
	"W":        WarnLevel,
	"crit":     ErrorLevel,
	"critical": ErrorLevel,
	"error":    ErrorLevel,
	"err":      ErrorLevel,
	"C":        ErrorLevel,
	"E":        ErrorLevel,
	"off":      OffLevel,
	"none":     OffLevel,
	"default":  DefaultLevel,
	"def":      DefaultLevel,
}

// ParseLevelString parses a level name as accepted by the daemon config and the console "log" command.
func ParseLevelString(level string) (Level, error) {
	if lv, ok := levelNames[level]; ok {
		return lv, nil
	}
	return DefaultLevel, errors.Errorf("invalid log level string: %s", level)
}

func (lv Level) String() string {
	switch lv {
	case MicroLevel:
		return "micro"
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case NoteLevel:
		return "note"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "crit"
	case PanicLevel:
		return "panic"
	case FatalLevel:
		return "fatal"
	case OffLevel:
		return "off"
	default:
		return "unknown"
	}
}

func GetLevelString(level Level) string {
	s := level.String()
	if s == "unknown" {
		Panicf("Unknown Level: %d", level)
	}
	return s
}

func parseOtLevelChar(level byte) Level {
	switch level {
	case 'D':
		return DebugLevel
	case 'I':
		return InfoLevel
	case 'N':
		return NoteLevel
	case 'W':
		return WarnLevel
	case 'C':
		return ErrorLevel
	default:
		return DefaultLevel
	}
}

// OtLogLine is a log line of the OpenThread stack.
type OtLogLine struct {
	Level   Level
	Module  string
	Message string
}

// ParseOtLog parses line as an OpenThread log line. Lines without a module tag keep the whole line as message.
func ParseOtLog(line string) (OtLogLine, bool) {
	logIdx := logPattern.FindStringSubmatchIndex(line)
	if logIdx == nil {
		return OtLogLine{}, false
	}
	ll := OtLogLine{Level: parseOtLevelChar(line[logIdx[2]]), Message: line}
	if match := logModulePattern.FindStringSubmatch(line[logIdx[1]-1:]); len(match) == 3 {
		ll.Module, ll.Message = match[1], match[2]
	}
	return ll, true
}

// ParseOtLogLine reports whether line is an OpenThread log line, and its level.
func ParseOtLogLine(line string) (bool, Level) {
	ll, ok := ParseOtLog(line)
	return ok, ll.Level
}
