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

package telemetry

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/telemetry/prometheus"
)

const (
	defaultLossSummaryDelay = 2 * time.Second
)

type NotifierParams struct {
	Logger logger.Logger
	// losses are logged as one summary per source once they stop for this long
	LossSummaryDelay time.Duration
}

type lossSummary struct {
	events  int
	packets int
	first   assembler.SequenceRange
	last    assembler.SequenceRange
}

// Notifier records assembler events as metrics and logs.
type Notifier struct {
	params NotifierParams

	lock      sync.Mutex
	losses    map[uint32]*lossSummary
	debounced func(func())
}

func NewNotifier(params NotifierParams) *Notifier {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.LossSummaryDelay == 0 {
		params.LossSummaryDelay = defaultLossSummaryDelay
	}
	return &Notifier{
		params:    params,
		losses:    make(map[uint32]*lossSummary),
		debounced: debounce.New(params.LossSummaryDelay),
	}
}

func (n *Notifier) OnPacketLost(ssrc uint32, lost assembler.SequenceRange) {
	prometheus.AddPacketsLost(lost.Count())

	n.lock.Lock()
	summary := n.losses[ssrc]
	if summary == nil {
		summary = &lossSummary{first: lost}
		n.losses[ssrc] = summary
	}
	summary.events++
	summary.packets += lost.Count()
	summary.last = lost
	n.lock.Unlock()

	n.debounced(n.Flush)
}

func (n *Notifier) OnMalformedPacket(ssrc uint32, sequenceNumber uint16, err error) {
	prometheus.IncrementMalformed()
	n.params.Logger.Debugw("malformed packet dropped", "ssrc", ssrc, "sn", sequenceNumber, "error", err)
}

func (n *Notifier) OnEndOfStream(ssrc uint32) {
	prometheus.IncrementEndOfStream()

	n.lock.Lock()
	summary := n.losses[ssrc]
	delete(n.losses, ssrc)
	n.lock.Unlock()

	if summary != nil {
		n.logSummary(ssrc, summary)
	}
	n.params.Logger.Infow("end of stream", "ssrc", ssrc)
}

// Flush logs the pending loss summaries.
func (n *Notifier) Flush() {
	n.lock.Lock()
	losses := n.losses
	n.losses = make(map[uint32]*lossSummary)
	n.lock.Unlock()

	for ssrc, summary := range losses {
		n.logSummary(ssrc, summary)
	}
}

func (n *Notifier) pendingSummaries() int {
	n.lock.Lock()
	defer n.lock.Unlock()

	return len(n.losses)
}

func (n *Notifier) logSummary(ssrc uint32, summary *lossSummary) {
	n.params.Logger.Infow(
		"packet loss",
		"ssrc", ssrc,
		"events", summary.events,
		"packets", summary.packets,
		"first", summary.first.String(),
		"last", summary.last.String(),
	)
}

// -------------------------------------

// Sink counts access units before handing them on.
type Sink struct {
	next assembler.Sink
}

func NewSink(next assembler.Sink) *Sink {
	return &Sink{next: next}
}

func (s *Sink) WriteAccessUnit(au *assembler.AccessUnit) {
	prometheus.IncrementAccessUnits(au.MimeType, au.Damaged)
	s.next.WriteAccessUnit(au)
}
