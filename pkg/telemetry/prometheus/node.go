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
	"github.com/mackerelio/go-osstat/memory"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	livekitNamespace string = "livekit"
)

var (
	initialized atomic.Bool

	promCPULoadGauge    prometheus.Gauge
	promMemoryLoadGauge prometheus.Gauge
	promLoadAvgGauge    *prometheus.GaugeVec
)

// Init registers all collectors with the default registry. Collectors carry the node id as a
// constant label. Calling it again is a no-op.
func Init(nodeID string) {
	if initialized.Swap(true) {
		return
	}

	promCPULoadGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   livekitNamespace,
			Subsystem:   "node",
			Name:        "cpu_load",
			ConstLabels: prometheus.Labels{"node_id": nodeID},
			Help:        "CPU load of the host, 0 to 1.",
		},
	)
	promMemoryLoadGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   livekitNamespace,
			Subsystem:   "node",
			Name:        "memory_load",
			ConstLabels: prometheus.Labels{"node_id": nodeID},
			Help:        "Used fraction of host memory.",
		},
	)
	promLoadAvgGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   livekitNamespace,
			Subsystem:   "node",
			Name:        "load_avg",
			ConstLabels: prometheus.Labels{"node_id": nodeID},
		},
		[]string{"window"},
	)

	prometheus.MustRegister(promCPULoadGauge)
	prometheus.MustRegister(promMemoryLoadGauge)
	prometheus.MustRegister(promLoadAvgGauge)

	registerer := prometheus.WrapRegistererWith(prometheus.Labels{"node_id": nodeID}, prometheus.DefaultRegisterer)
	registerAssemblerStats(registerer)
}

type NodeStats struct {
	NumCPUs    uint32
	CPULoad    float32
	MemoryLoad float32
	LoadAvg1   float64
	LoadAvg5   float64
	LoadAvg15  float64
}

func getMemoryStats() (memoryLoad float32, err error) {
	memInfo, err := memory.Get()
	if err != nil {
		return
	}

	if memInfo.Total != 0 {
		memoryLoad = float32(memInfo.Used) / float32(memInfo.Total)
	}
	return
}

// UpdateNodeStats samples host load and publishes it. The first CPU sample after start
// reports zero load.
func UpdateNodeStats() (*NodeStats, error) {
	loadAvg, err := getLoadAvg()
	if err != nil {
		return nil, err
	}

	cpuLoad, numCPUs, err := getCPUStats()
	if err != nil {
		return nil, err
	}

	memoryLoad, _ := getMemoryStats()
	// On MacOS, get "\"vm_stat\": executable file not found in $PATH" although it is in /usr/bin
	// So, do not error out. Use the information if it is available.

	stats := &NodeStats{
		NumCPUs:    numCPUs,
		CPULoad:    cpuLoad,
		MemoryLoad: memoryLoad,
		LoadAvg1:   loadAvg.Loadavg1,
		LoadAvg5:   loadAvg.Loadavg5,
		LoadAvg15:  loadAvg.Loadavg15,
	}

	if initialized.Load() {
		promCPULoadGauge.Set(float64(cpuLoad))
		promMemoryLoadGauge.Set(float64(memoryLoad))
		promLoadAvgGauge.WithLabelValues("1m").Set(loadAvg.Loadavg1)
		promLoadAvgGauge.WithLabelValues("5m").Set(loadAvg.Loadavg5)
		promLoadAvgGauge.WithLabelValues("15m").Set(loadAvg.Loadavg15)
	}
	return stats, nil
}
