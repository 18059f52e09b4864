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

package telemetry

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/otstack"
)

const (
	DefaultCheckInterval  = 600 * time.Second
	DefaultUploadInterval = 12 * time.Hour
)

// Sink receives the atoms of one upload.
type Sink interface {
	Push(atoms *Atoms) error
}

// Source returns the current telemetry snapshot. It is called on the task queue.
type Source func() (*otstack.TelemetryData, error)

type Config struct {
	// CheckInterval is the delay of the first upload after Start.
	CheckInterval time.Duration
	// UploadInterval is the delay between uploads.
	UploadInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:  DefaultCheckInterval,
		UploadInterval: DefaultUploadInterval,
	}
}

// Reporter periodically collects telemetry on the task queue and pushes it to a Sink.
type Reporter struct {
	cfg     Config
	runner  otstack.TaskRunner
	source  Source
	sink    Sink
	log     *logger.TaggedLogger
	alarm   dispatcher.AlarmId
	uploads int
	last    *Atoms
}

func NewReporter(cfg Config, runner otstack.TaskRunner, source Source, sink Sink) *Reporter {
	return &Reporter{
		cfg:    cfg,
		runner: runner,
		source: source,
		sink:   sink,
		log:    logger.Tagged("Telemetry"),
	}
}

// Start schedules the first upload. Must be called on the task queue.
func (r *Reporter) Start() {
	r.runner.CancelDelayed(r.alarm)
	r.alarm = r.runner.PostDelayed(r.cfg.CheckInterval, r.pushIfConditionMatch)
}

// Stop cancels the pending upload. Must be called on the task queue.
func (r *Reporter) Stop() {
	r.runner.CancelDelayed(r.alarm)
	r.alarm = 0
}

func (r *Reporter) pushIfConditionMatch() {
	r.alarm = 0
	if err := r.Push(); err != nil {
		r.log.Warnf("telemetry upload failed: %v", err)
	}
	r.alarm = r.runner.PostDelayed(r.cfg.UploadInterval, r.pushIfConditionMatch)
}

// Push collects and uploads telemetry now.
func (r *Reporter) Push() error {
	td, err := r.source()
	if err != nil {
		recordUpload(err)
		return errors.Wrap(err, "retrieve telemetry")
	}
	ObserveTelemetry(td)
	atoms, err := BuildAtoms(td)
	if err == nil {
		err = r.sink.Push(atoms)
	}
	recordUpload(err)
	if err != nil {
		return err
	}
	r.uploads++
	r.last = atoms
	r.log.Debugf("telemetry uploaded (%d)", r.uploads)
	return nil
}

// Uploads returns the number of successful uploads.
func (r *Reporter) Uploads() int {
	return r.uploads
}

// Last returns the atoms of the last successful upload, or nil.
func (r *Reporter) Last() *Atoms {
	return r.last
}

// AtomLog is a Sink appending each atom as one prototext line to a file.
type AtomLog struct {
	lock sync.Mutex
	path string
}

func NewAtomLog(path string) *AtomLog {
	return &AtomLog{path: path}
}

func (l *AtomLog) Push(atoms *Atoms) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open atom log %s", l.path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	ts := time.Now().UTC().Format(time.RFC3339)
	lines := []struct {
		name string
		text []byte
	}{
		{"ThreadnetworkTelemetryDataReported", marshalLine(atoms.TelemetryData)},
		{"ThreadnetworkTopoEntryRepeated", marshalLine(atoms.TopoEntries)},
		{"ThreadnetworkDeviceInfoReported", marshalLine(atoms.DeviceInfo)},
	}
	for _, line := range lines {
		if _, err := w.WriteString(ts + " " + line.name + " " + string(line.text) + "\n"); err != nil {
			return errors.Wrap(err, "write atom log")
		}
	}
	return errors.Wrap(w.Flush(), "flush atom log")
}

func marshalLine(s *structpb.Struct) []byte {
	b, err := prototext.MarshalOptions{Multiline: false}.Marshal(s)
	if err != nil {
		return []byte("<" + err.Error() + ">")
	}
	return b
}
