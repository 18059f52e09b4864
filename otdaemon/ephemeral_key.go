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
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/types"
)

const (
	ephemeralKeyLength      = 9
	maxEphemeralKeyLifetime = 10 * time.Minute
)

// ActivateEphemeralKeyMode starts the border agent ephemeral key mode for lifetimeMillis. The generated
// passcode is reported in the state snapshot.
func (s *Server) ActivateEphemeralKeyMode(lifetimeMillis int64, r StatusReceiver) {
	r = track("activate_ephemeral_key_mode", r)
	s.runner.Post(func() { s.activateEphemeralKeyModeInternal(lifetimeMillis, r) })
}

// DeactivateEphemeralKeyMode stops the ephemeral key mode. Sessions using the key are closed.
func (s *Server) DeactivateEphemeralKeyMode(r StatusReceiver) {
	r = track("deactivate_ephemeral_key_mode", r)
	s.runner.Post(func() { s.deactivateEphemeralKeyModeInternal(r) })
}

func generatePasscode() (string, error) {
	digits := make([]byte, ephemeralKeyLength)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", errors.Wrap(err, "generate passcode")
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

func (s *Server) activateEphemeralKeyModeInternal(lifetimeMillis int64, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}
	if s.threadEnabled != types.ThreadStateEnabled {
		propagateResult(types.OT_ERROR_THREAD_DISABLED, msgThreadDisabled, r)
		return
	}
	lifetime := time.Duration(lifetimeMillis) * time.Millisecond
	if lifetime <= 0 || lifetime > maxEphemeralKeyLifetime {
		propagateResult(types.OT_ERROR_INVALID_ARGS, "Invalid ephemeral key lifetime", r)
		return
	}

	passcode, err := generatePasscode()
	if err != nil {
		propagateResult(types.OT_ERROR_FAILED, err.Error(), r)
		return
	}
	if err := s.stack.SetEphemeralKey(passcode, lifetime); err != nil {
		propagateError(err, "Failed to set ephemeral key", r)
		return
	}

	s.log.Infof("Ephemeral key mode activated for %v", lifetime)
	s.ephemeralKeyExpiry = s.cfg.Now().Add(lifetime)
	s.state.EphemeralKeyState = types.EphemeralKeyEnabled
	s.state.EphemeralKeyPasscode = passcode
	if s.callback != nil {
		s.notifyStateChanged(-1)
	}
	r.OnSuccess()
}

func (s *Server) deactivateEphemeralKeyModeInternal(r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}

	s.stack.ClearEphemeralKey()
	s.clearEphemeralKeyState()
	if s.callback != nil {
		s.notifyStateChanged(-1)
	}
	r.OnSuccess()
}

func (s *Server) clearEphemeralKeyState() {
	s.ephemeralKeyExpiry = time.Time{}
	s.state.EphemeralKeyState = types.EphemeralKeyDisabled
	s.state.EphemeralKeyPasscode = ""
}

func (s *Server) handleEphemeralKeyChanged() {
	switch {
	case !s.stack.IsEphemeralKeyActive():
		if s.state.EphemeralKeyState == types.EphemeralKeyDisabled {
			return
		}
		s.log.Infof("Ephemeral key is stopped")
		s.clearEphemeralKeyState()
	case s.stack.IsEphemeralKeyInUse():
		if s.state.EphemeralKeyState == types.EphemeralKeyInUse {
			return
		}
		s.log.Infof("Ephemeral key is in use")
		s.state.EphemeralKeyState = types.EphemeralKeyInUse
	default:
		return
	}
	s.notifyStateChanged(-1)
}
