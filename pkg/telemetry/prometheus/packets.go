// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prometheus

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type PacketType string

const (
	PacketTypeRTP  PacketType = "rtp"
	PacketTypeRTCP PacketType = "rtcp"
)

type PacketOutcome string

const maxPacketsLostPerEvent = 1 << 15

const (
	PacketAccepted           PacketOutcome = "accepted"
	PacketDuplicate          PacketOutcome = "duplicate"
	PacketTooOld             PacketOutcome = "too_old"
	PacketQueueFull          PacketOutcome = "queue_full"
	PacketSourceEnded        PacketOutcome = "source_ended"
	PacketUnknownPayloadType PacketOutcome = "unknown_payload_type"
	PacketInvalid            PacketOutcome = "invalid"
)

var (
	atomicPacketsIn        uint64
	atomicBytesIn          uint64
	atomicAccessUnits      uint64
	atomicPacketsLost      uint64
	atomicPacketsMalformed uint64
	atomicPacketsEvicted   uint64
	atomicActiveSources    int64

	promPacketTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "packet",
		Name:      "total",
	}, []string{"type", "outcome"})
	promPacketBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "packet",
		Name:      "bytes",
	}, []string{"type"})
	promAccessUnitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "access_units",
	}, []string{"mime", "damaged"})
	promPacketsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "packets_lost",
	})
	promLossEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "loss_events",
	})
	promPacketsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "packets_malformed",
	})
	promPacketsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "packets_evicted",
		Help:      "Packets dropped because a source queue was full.",
	})
	promEndOfStream = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "end_of_stream",
	})
	promActiveSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: livekitNamespace,
		Subsystem: "assembler",
		Name:      "sources",
	})
)

func registerAssemblerStats(registerer prometheus.Registerer) {
	registerer.MustRegister(promPacketTotal)
	registerer.MustRegister(promPacketBytes)
	registerer.MustRegister(promAccessUnitTotal)
	registerer.MustRegister(promPacketsLost)
	registerer.MustRegister(promLossEvents)
	registerer.MustRegister(promPacketsMalformed)
	registerer.MustRegister(promPacketsEvicted)
	registerer.MustRegister(promEndOfStream)
	registerer.MustRegister(promActiveSources)
}

func IncrementPackets(packetType PacketType, outcome PacketOutcome) {
	promPacketTotal.WithLabelValues(string(packetType), string(outcome)).Inc()
	if packetType == PacketTypeRTP && outcome == PacketAccepted {
		atomic.AddUint64(&atomicPacketsIn, 1)
	}
}

func IncrementBytes(packetType PacketType, count uint64) {
	promPacketBytes.WithLabelValues(string(packetType)).Add(float64(count))
	atomic.AddUint64(&atomicBytesIn, count)
}

func IncrementAccessUnits(mime string, damaged bool) {
	promAccessUnitTotal.WithLabelValues(mime, strconv.FormatBool(damaged)).Inc()
	atomic.AddUint64(&atomicAccessUnits, 1)
}

// AddPacketsLost records one loss event. Counts beyond half the sequence number space are a
// restarted stream and are ignored.
func AddPacketsLost(count int) {
	if count <= 0 || count > maxPacketsLostPerEvent {
		return
	}
	promLossEvents.Inc()
	promPacketsLost.Add(float64(count))
	atomic.AddUint64(&atomicPacketsLost, uint64(count))
}

func IncrementMalformed() {
	promPacketsMalformed.Inc()
	atomic.AddUint64(&atomicPacketsMalformed, 1)
}

func AddPacketsEvicted(count int) {
	if count <= 0 {
		return
	}
	promPacketsEvicted.Add(float64(count))
	atomic.AddUint64(&atomicPacketsEvicted, uint64(count))
}

func IncrementEndOfStream() {
	promEndOfStream.Inc()
}

func SourceStarted() {
	promActiveSources.Inc()
	atomic.AddInt64(&atomicActiveSources, 1)
}

func SourceEnded() {
	promActiveSources.Dec()
	atomic.AddInt64(&atomicActiveSources, -1)
}

// AssemblerStats are process wide totals since start.
type AssemblerStats struct {
	PacketsIn        uint64
	BytesIn          uint64
	AccessUnits      uint64
	PacketsLost      uint64
	PacketsMalformed uint64
	PacketsEvicted   uint64
	ActiveSources    int64
}

func GetAssemblerStats() AssemblerStats {
	return AssemblerStats{
		PacketsIn:        atomic.LoadUint64(&atomicPacketsIn),
		BytesIn:          atomic.LoadUint64(&atomicBytesIn),
		AccessUnits:      atomic.LoadUint64(&atomicAccessUnits),
		PacketsLost:      atomic.LoadUint64(&atomicPacketsLost),
		PacketsMalformed: atomic.LoadUint64(&atomicPacketsMalformed),
		PacketsEvicted:   atomic.LoadUint64(&atomicPacketsEvicted),
		ActiveSources:    atomic.LoadInt64(&atomicActiveSources),
	}
}
