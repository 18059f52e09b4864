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
	"context"
	"math"

	"github.com/openthread/ot-daemon/types"
)

// SetCountryCode sets the regulatory region. The code is two ASCII letters, e.g. "US".
func (s *Server) SetCountryCode(countryCode string, r StatusReceiver) {
	r = track("set_country_code", r)
	s.runner.Post(func() { s.setCountryCodeInternal(countryCode, r) })
}

// GetChannelMasks reports the supported and preferred channel masks of the radio.
func (s *Server) GetChannelMasks(r ChannelMasksReceiver) {
	s.runner.Post(func() { s.getChannelMasksInternal(r) })
}

// SetChannelMaxPowers sets the maximum transmit power of channels. Power is in 0.01 dBm.
func (s *Server) SetChannelMaxPowers(channelMaxPowers []types.ChannelMaxPower, r StatusReceiver) {
	r = track("set_channel_max_powers", r)
	powers := append([]types.ChannelMaxPower(nil), channelMaxPowers...)
	s.runner.Post(func() { s.setChannelMaxPowersInternal(powers, r) })
}

func (s *Server) setCountryCodeInternal(countryCode string, r StatusReceiver) {
	if !types.IsValidCountryCode(countryCode) {
		propagateResult(types.OT_ERROR_INVALID_ARGS, "The country code is invalid", r)
		return
	}

	s.log.Infof("Set country code: %c%c", countryCode[0], countryCode[1])
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}

	region := uint16(countryCode[0])<<8 | uint16(countryCode[1])
	err := s.stack.SetRegion(region)
	if err == nil {
		s.countryCode = countryCode
		s.saveCountryCode(countryCode)
	}
	propagateError(err, "Failed to set the country code", r)
}

func (s *Server) loadCountryCode() string {
	if s.cfg.Settings == nil {
		return ""
	}
	cc, ok, err := s.cfg.Settings.Get(context.Background(), keyCountryCode)
	if err != nil {
		s.log.Warnf("failed to load country code: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return string(cc)
}

func (s *Server) saveCountryCode(countryCode string) {
	if s.cfg.Settings == nil {
		return
	}
	if err := s.cfg.Settings.Set(context.Background(), keyCountryCode, []byte(countryCode)); err != nil {
		s.log.Warnf("failed to save country code: %v", err)
	}
}

func (s *Server) getChannelMasksInternal(r ChannelMasksReceiver) {
	if !s.isInitialized() {
		r.OnError(types.OT_ERROR_INVALID_STATE, msgNotInitialized)
		return
	}
	r.OnSuccess(s.stack.GetSupportedChannelMask(), s.stack.GetPreferredChannelMask())
}

func (s *Server) setChannelMaxPowersInternal(channelMaxPowers []types.ChannelMaxPower, r StatusReceiver) {
	if !s.isInitialized() {
		propagateResult(types.OT_ERROR_INVALID_STATE, msgNotInitialized, r)
		return
	}

	for _, p := range channelMaxPowers {
		if p.Channel < types.MinChannel || p.Channel > types.MaxChannel {
			propagateResult(types.OT_ERROR_INVALID_ARGS, "The channel is invalid", r)
			return
		}
		if p.MaxPower < math.MinInt16 || p.MaxPower > math.MaxInt16 {
			propagateResult(types.OT_ERROR_INVALID_ARGS, "The max power is invalid", r)
			return
		}
	}

	for _, p := range channelMaxPowers {
		s.log.Infof("Set channel max power: channel=%d, maxPower=%d", p.Channel, p.MaxPower)
		if err := s.stack.SetChannelMaxTransmitPower(p.Channel, int16(p.MaxPower)); err != nil {
			propagateError(err, "Failed to set channel max power", r)
			return
		}
	}
	r.OnSuccess()
}
