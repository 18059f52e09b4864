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

import "strings"

const tagWidth = 15

// TaggedLogger logs messages prefixed with a fixed-width module tag, e.g. "Binder---------: ".
type TaggedLogger struct {
	module string
}

// Tagged returns a logger for the named module.
func Tagged(tag string) *TaggedLogger {
	if len(tag) < tagWidth {
		tag += strings.Repeat("-", tagWidth-len(tag))
	}
	return &TaggedLogger{module: tag[:tagWidth]}
}

func (tl *TaggedLogger) Logf(level Level, format string, args []interface{}) {
	if level > GetLevel() {
		return
	}
	logAlways(level, tl.module, getMessage(format, args))
}

func (tl *TaggedLogger) Tracef(format string, args ...interface{}) {
	tl.Logf(TraceLevel, format, args)
}

func (tl *TaggedLogger) Debugf(format string, args ...interface{}) {
	tl.Logf(DebugLevel, format, args)
}

func (tl *TaggedLogger) Infof(format string, args ...interface{}) {
	tl.Logf(InfoLevel, format, args)
}

func (tl *TaggedLogger) Notef(format string, args ...interface{}) {
	tl.Logf(NoteLevel, format, args)
}

func (tl *TaggedLogger) Warnf(format string, args ...interface{}) {
	tl.Logf(WarnLevel, format, args)
}

func (tl *TaggedLogger) Errorf(format string, args ...interface{}) {
	tl.Logf(ErrorLevel, format, args)
}
