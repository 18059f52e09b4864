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

package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// StackLogger collects the log output of a Thread stack instance. Levels for display and for the optional
// log file are set separately, so that a verbose stack log can be kept on disk while the console only shows
// warnings.
type StackLogger struct {
	Name         string
	fileLevel    Level
	displayLevel Level

	lock          sync.Mutex
	logFile       *os.File
	logFileName   string
	isFileEnabled bool
	entries       chan logEntry
}

// NewStackLogger creates the StackLogger for the named stack. If logFileName is not empty, stack log lines
// are also appended to that file.
func NewStackLogger(name string, logFileName string) *StackLogger {
	sl := &StackLogger{
		Name:          name,
		fileLevel:     DebugLevel,
		displayLevel:  WarnLevel,
		entries:       make(chan logEntry, 1000),
		logFileName:   logFileName,
		isFileEnabled: logFileName != "",
	}
	if sl.isFileEnabled {
		sl.openLogFile()
	}
	return sl
}

func (sl *StackLogger) openLogFile() {
	var err error
	sl.logFile, err = os.OpenFile(sl.logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0664)
	if err != nil {
		Errorf("opening stack log file %s failed: %+v", sl.logFileName, err)
		sl.isFileEnabled = false
		return
	}

	header := fmt.Sprintf("#\n# OpenThread stack log for %s opened %s", sl.Name, time.Now().Format(time.RFC3339))
	_ = sl.writeToLogFile(header)
	Debugf("Stack log file '%s' opened.", sl.logFileName)
}

func (sl *StackLogger) SetFileLevel(level Level) {
	sl.lock.Lock()
	defer sl.lock.Unlock()
	sl.fileLevel = level
}

func (sl *StackLogger) SetDisplayLevel(level Level) {
	sl.lock.Lock()
	defer sl.lock.Unlock()
	sl.displayLevel = level
}

// Logf queues a log message. Queued entries are written by Flush; a full queue is flushed first.
func (sl *StackLogger) Logf(level Level, format string, args ...interface{}) {
	sl.lock.Lock()
	skip := level > sl.fileLevel && level > sl.displayLevel
	sl.lock.Unlock()
	if skip {
		return
	}
	entry := logEntry{
		Level: level,
		Msg:   getMessage(format, args),
	}
	select {
	case sl.entries <- entry:
	default:
		sl.Flush()
		sl.entries <- entry
	}
}

// LogLine queues a raw log line as produced by the stack. The level is taken from the line itself.
func (sl *StackLogger) LogLine(line string) {
	ok, level := ParseOtLogLine(line)
	if !ok {
		level = DebugLevel
	}
	sl.Logf(level, "%s", line)
}

func (sl *StackLogger) writeToLogFile(line string) error {
	_, err := sl.logFile.WriteString(line + "\n")
	if err != nil {
		_ = sl.logFile.Close()
		sl.logFile = nil
		sl.isFileEnabled = false
		Errorf("couldn't write to stack log file (%s), closing it", sl.logFileName)
	}
	return err
}

// Flush writes all queued entries to the log file and displays those at or above the display level.
func (sl *StackLogger) Flush() {
	sl.lock.Lock()
	defer sl.lock.Unlock()

	for {
		select {
		case entry := <-sl.entries:
			isSaveEntry := sl.fileLevel >= entry.Level
			isDisplayEntry := sl.displayLevel >= entry.Level
			msg := entry.Msg
			if len(msg) > 0 && msg[len(msg)-1] == '\n' {
				msg = msg[:len(msg)-1]
			}
			if (isDisplayEntry || isSaveEntry) && sl.isFileEnabled {
				_ = sl.writeToLogFile(msg)
			}
			if isDisplayEntry {
				logAlways(entry.Level, sl.Name, msg)
			}
		default:
			return
		}
	}
}

// IsFileEnabled returns true if logging to file is currently enabled, false if not.
func (sl *StackLogger) IsFileEnabled() bool {
	sl.lock.Lock()
	defer sl.lock.Unlock()
	return sl.isFileEnabled
}

// Close flushes pending entries and closes the log file.
func (sl *StackLogger) Close() {
	sl.Flush()

	sl.lock.Lock()
	defer sl.lock.Unlock()
	if sl.logFile != nil {
		_ = sl.logFile.Close()
		sl.logFile = nil
	}
	sl.isFileEnabled = false
}
