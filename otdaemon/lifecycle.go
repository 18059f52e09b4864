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

package otdaemon

import (
	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/types"
)

const msgAbortedByLeave = "Aborted by leave/disable operation"

// SetThreadEnabled enables or disables Thread. Disabling detaches gracefully from the network first.
func (s *Server) SetThreadEnabled(enabled bool, r StatusReceiver) {
	r = track("set_thread_enabled", r)
	s.runner.Post(func() { s.setThreadEnabledInternal(enabled, r) })
}

// Join attaches to the network described by the active dataset TLVs. The receiver succeeds once the
// device is attached.
func (s *Server) Join(activeDatasetTlvs []byte, r StatusReceiver) {
	r = track("join", r)
	tlvs := append([]byte(nil), activeDatasetTlvs...)
	s.runner.Post(func() { s.joinInternal(tlvs, r) })
}

// Leave detaches from the network, erasing the persisted network information if eraseDataset is set.
func (s *Server) Leave(eraseDataset bool, r StatusReceiver) {
	r = track("leave", r)
	s.runner.Post(func() { s.leaveInternal(eraseDataset, r) })
}

// ScheduleMigration asks the leader to migrate the network to the pending dataset.
func (s *Server) ScheduleMigration(pendingDatasetTlvs []byte, r StatusReceiver) {
	r = track("schedule_migration", r)
	tlvs := append([]byte(nil), pendingDatasetTlvs...)
	s.runner.Post(func() { s.scheduleMigrationInternal(tlvs, r) })
}

func (s *Server) updateThreadEnabledState(enabled types.ThreadEnabledState, r StatusReceiver) {
	if enabled == s.threadEnabled {
		return
	}

	s.log.Infof("Thread enabled state changed: %s -> %s", s.threadEnabled, enabled)
	s.threadEnabled = enabled
	telemetry.SetThreadEnabledState(enabled)

	if r != nil {
		r.OnSuccess()
	}

	// The border agent follows the Thread enabled state; it stays up while disabling.
	if enabled == types.ThreadStateEnabled {
		s.agent.SetEnabled(true)
	} else if enabled == types.ThreadStateDisabled {
		s.agent.SetEnabled(false)
	}

	if s.callback != nil {
		s.callback.OnThreadEnabledChanged(enabled)
	}
}

func (s *Server) enableThread(r StatusReceiver) {
	s.log.Infof("Enable Thread...")

	tlvs, err := s.stack.GetActiveDatasetTlvs()
	if err == nil && !dataset.IsEmpty(tlvs) && !s.isAttached() {
		if err := s.stack.SetIp6Enabled(true); err != nil {
			s.log.Warnf("failed to bring up the Thread interface: %v", err)
		}
		if err := s.stack.SetThreadEnabled(true); err != nil {
			s.log.Warnf("failed to bring up the Thread stack: %v", err)
		}
	}
	s.updateThreadEnabledState(types.ThreadStateEnabled, r)
}

func (s *Server) setThreadEnabledInternal(enabled bool, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if s.threadEnabled == types.ThreadStateDisabling {
		propagateResult(types.OT_ERROR_BUSY, msgDisabling, r)
		return
	}

	if (s.threadEnabled == types.ThreadStateEnabled) == enabled {
		r.OnSuccess()
		return
	}

	if enabled {
		s.enableThread(r)
		return
	}

	s.updateThreadEnabledState(types.ThreadStateDisabling, nil)
	s.leaveGracefully(func() {
		// Ignore errors: the stack is already detached.
		_ = s.stack.SetThreadEnabled(false)
		_ = s.stack.SetIp6Enabled(false)
		s.updateThreadEnabledState(types.ThreadStateDisabled, r)
	})
}

func (s *Server) isAttached() bool {
	return s.stack.GetDeviceRole().IsAttached()
}

func (s *Server) joinInternal(activeDatasetTlvs []byte, r StatusReceiver) {
	if s.threadEnabled == types.ThreadStateDisabling {
		propagateResult(types.OT_ERROR_BUSY, msgDisabling, r)
		return
	}
	if s.threadEnabled != types.ThreadStateEnabled {
		propagateResult(types.OT_ERROR_THREAD_DISABLED, msgThreadDisabled, r)
		return
	}

	s.log.Infof("Start joining...")

	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}

	if active, err := s.stack.GetActiveDatasetTlvs(); err == nil && s.isAttached() &&
		dataset.Equal(active, activeDatasetTlvs) {
		s.log.Infof("Already attached to the requested network")
		r.OnSuccess()
		return
	}

	if s.stack.GetDeviceRole() != types.OtDeviceRoleDisabled {
		s.leaveGracefully(func() {
			s.finishLeave(false, nil)
			if s.stack.GetDeviceRole() != types.OtDeviceRoleDisabled {
				propagateResult(types.OT_ERROR_FAILED, "Failed to detach from the current network", r)
				return
			}
			s.runner.Post(func() { s.joinInternal(activeDatasetTlvs, r) })
		})
		return
	}

	if err := s.stack.SetActiveDatasetTlvs(activeDatasetTlvs); err != nil {
		propagateError(err, "Failed to set Active Operational Dataset", r)
		return
	}
	if err := s.stack.SetIp6Enabled(true); err != nil {
		propagateError(err, "Failed to bring up Thread interface", r)
		return
	}
	if err := s.stack.SetThreadEnabled(true); err != nil {
		propagateError(err, "Failed to bring up Thread stack", r)
		return
	}

	s.joinReceiver.install(r, "Join() is aborted")
}

func (s *Server) leaveInternal(eraseDataset bool, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if s.threadEnabled == types.ThreadStateDisabling {
		propagateResult(types.OT_ERROR_BUSY, msgDisabling, r)
		return
	}

	if s.threadEnabled == types.ThreadStateDisabled {
		s.finishLeave(eraseDataset, r)
		return
	}

	s.leaveGracefully(func() { s.finishLeave(eraseDataset, r) })
}

func (s *Server) finishLeave(eraseDataset bool, r StatusReceiver) {
	if eraseDataset {
		if err := s.stack.ErasePersistentInfo(); err != nil {
			s.log.Warnf("failed to erase persistent info: %v", err)
		}
	}
	if r != nil {
		r.OnSuccess()
	}
}

// leaveGracefully runs callback once the device has detached. Callbacks of concurrent requests share a
// single detach. If the detach cannot start, Thread is stopped at once and the callbacks run immediately.
func (s *Server) leaveGracefully(callback func()) {
	s.log.Infof("Leave gracefully")
	s.leaveCallbacks = append(s.leaveCallbacks, callback)

	err := s.stack.DetachGracefully(s.detachGracefullyDone)
	switch {
	case err == nil:
		telemetry.RecordGracefulDetach()
	case types.ErrorCode(err) == types.OT_ERROR_BUSY:
		// the detach in progress runs callback
	default:
		s.log.Errorf("failed to start graceful detach, stopping Thread: %v", err)
		if err = s.stack.SetThreadEnabled(false); err != nil {
			s.log.Errorf("failed to stop Thread: %v", err)
		}
		s.detachGracefullyDone()
	}
}

func (s *Server) detachGracefullyDone() {
	s.log.Infof("Detach gracefully done")

	if r := s.joinReceiver.take(); r != nil {
		r.OnError(types.OT_ERROR_ABORT, msgAbortedByLeave)
	}
	if r := s.migrationReceiver.take(); r != nil {
		r.OnError(types.OT_ERROR_ABORT, msgAbortedByLeave)
	}

	callbacks := s.leaveCallbacks
	s.leaveCallbacks = nil
	for _, cb := range callbacks {
		cb()
	}
}

func (s *Server) scheduleMigrationInternal(pendingDatasetTlvs []byte, r StatusReceiver) {
	if s.threadEnabled == types.ThreadStateDisabling {
		propagateResult(types.OT_ERROR_BUSY, msgDisabling, r)
		return
	}
	if s.threadEnabled != types.ThreadStateEnabled {
		propagateResult(types.OT_ERROR_THREAD_DISABLED, msgThreadDisabled, r)
		return
	}
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if !s.isAttached() {
		propagateResult(types.OT_ERROR_FAILED_PRECONDITION,
			"Cannot schedule migration when this device is detached", r)
		return
	}

	err := s.stack.SendMgmtPendingSet(pendingDatasetTlvs, s.sendMgmtPendingSetDone)
	if err != nil {
		propagateError(err, "Failed to send MGMT_PENDING_SET.req", r)
		return
	}

	// The stack rejects overlapping requests, so the slot is free here.
	logger.AssertFalse(s.migrationReceiver.pending(), "migration receiver is not empty")
	s.migrationReceiver.install(r, msgAbortedByLeave)
}

func (s *Server) sendMgmtPendingSetDone(err error) {
	propagateError(err, "Failed to register Pending Dataset to leader", s.migrationReceiver.take())
}
