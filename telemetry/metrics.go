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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otd_operations_total",
		Help: "Completed daemon operations by result code",
	}, []string{"op", "result"})

	threadEnabledState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otd_thread_enabled_state",
		Help: "Thread enablement state (0 disabled, 1 enabled, 2 disabling)",
	})

	deviceRole = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otd_device_role",
		Help: "Thread device role (0 disabled, 1 detached, 2 child, 3 router, 4 leader)",
	})

	gracefulDetachesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otd_graceful_detaches_total",
		Help: "Total number of graceful detaches requested from the stack",
	})

	stateNotificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otd_state_notifications_total",
		Help: "Total number of state snapshots pushed to the client",
	})

	macFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "otd_mac_frames",
		Help: "MAC frame counters of the last telemetry snapshot",
	}, []string{"direction"})

	ipPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "otd_ip_packets",
		Help: "IPv6 packet counters of the last telemetry snapshot",
	}, []string{"direction", "outcome"})

	neighborTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otd_neighbor_table_size",
		Help: "Number of neighbors in the last telemetry snapshot",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otd_telemetry_uploads_total",
		Help: "Telemetry uploads by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// RecordOperation counts one completed operation.
func RecordOperation(op string, code types.OtError) {
	operationsTotal.WithLabelValues(op, code.String()).Inc()
}

func SetThreadEnabledState(s types.ThreadEnabledState) {
	threadEnabledState.Set(float64(s))
}

func SetDeviceRole(r types.OtDeviceRole) {
	deviceRole.Set(float64(r))
}

func RecordGracefulDetach() {
	gracefulDetachesTotal.Inc()
}

func RecordStateNotification() {
	stateNotificationsTotal.Inc()
}

// ObserveTelemetry mirrors a telemetry snapshot into the gauges.
func ObserveTelemetry(td *otstack.TelemetryData) {
	macFrames.WithLabelValues("tx").Set(float64(td.Mac.TxTotal))
	macFrames.WithLabelValues("rx").Set(float64(td.Mac.RxTotal))
	ipPackets.WithLabelValues("tx", "success").Set(float64(td.Ip.TxSuccess))
	ipPackets.WithLabelValues("tx", "failure").Set(float64(td.Ip.TxFailure))
	ipPackets.WithLabelValues("rx", "success").Set(float64(td.Ip.RxSuccess))
	ipPackets.WithLabelValues("rx", "failure").Set(float64(td.Ip.RxFailure))
	neighborTableSize.Set(float64(len(td.Neighbors)))
	SetDeviceRole(td.Role)
}

func recordUpload(err error) {
	if err != nil {
		uploadsTotal.WithLabelValues("failure").Inc()
		return
	}
	uploadsTotal.WithLabelValues("success").Inc()
}
