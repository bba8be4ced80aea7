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

package assembler

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/utils"
)

const (
	DefaultMaxWait = 10 * time.Millisecond
)

type AssemblerParams struct {
	Source   *Source
	Strategy Strategy
	Sink     Sink
	Notifier Notifier
	// how long a small sequence gap is waited on before the missing packets are declared lost
	MaxWait time.Duration
	Clock   clock.Clock
	Logger  logger.Logger
}

// Assembler turns the packets queued on one source into access units. It is not safe for
// concurrent use, all calls for a source have to come from one goroutine.
type Assembler struct {
	params AssemblerParams

	// first time an unresolved failure was seen, zero when there is none
	firstFailureAt time.Time
	finished       bool

	lossLogger      utils.CountedLogger
	malformedLogger utils.CountedLogger
}

func NewAssembler(params AssemblerParams) *Assembler {
	if params.Notifier == nil {
		params.Notifier = NullNotifier{}
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.MaxWait == 0 {
		params.MaxWait = DefaultMaxWait
	}
	params.Logger = params.Logger.WithValues("ssrc", params.Source.SSRC(), "mime", params.Source.MimeType())

	return &Assembler{
		params:          params,
		lossLogger:      utils.NewExponentialLogger(params.Logger, utils.CountedLoggerLevelDebug, utils.ExponentialLoggerParams{Base: 10}),
		malformedLogger: utils.NewExponentialLogger(params.Logger, utils.CountedLoggerLevelWarn, utils.ExponentialLoggerParams{Base: 10}),
	}
}

func (a *Assembler) Source() *Source {
	return a.params.Source
}

// OnPacketReceived assembles as many access units as the queued packets allow. With flush
// set the caller does not expect more data, so gaps are not waited on and partial units are
// handed out damaged. Does nothing once the source has ended.
func (a *Assembler) OnPacketReceived(flush bool) {
	if a.finished {
		return
	}

	a.assemble(flush)
}

// OnByeReceived drains whatever is queued and ends the source. Packets arriving afterwards
// are refused by the queue.
func (a *Assembler) OnByeReceived() {
	if a.finished {
		return
	}

	a.assemble(true)
	a.params.Strategy.OnByeReceived(a.params.Source)

	a.params.Source.Queue().Close()
	a.finished = true

	stats := a.Stats()
	a.params.Logger.Debugw(
		"source ended",
		"accessUnits", stats.AccessUnits,
		"packetsLost", stats.PacketsLost,
		"packetsMalformed", stats.PacketsMalformed,
	)
	a.params.Notifier.OnEndOfStream(a.params.Source.SSRC())
}

func (a *Assembler) IsFinished() bool {
	return a.finished
}

func (a *Assembler) Stats() SourceStats {
	return a.params.Source.Stats()
}

func (a *Assembler) assemble(flush bool) {
	src := a.params.Source
	for {
		if evicted, ok := src.Queue().TakeEvicted(); ok {
			src.stats.PacketsEvicted += evicted.Count()
			a.lossLogger.Log("packet queue overflow", "evicted", evicted.String())
			if _, valid := src.NextExpected(); !valid {
				a.params.Notifier.OnPacketLost(src.SSRC(), evicted)
			}
			a.packetLost()
		}

		res := a.params.Strategy.AssembleMore(src, flush)
		switch res.Status {
		case StatusOK:
			a.firstFailureAt = time.Time{}
			if res.Unit != nil {
				a.dispatch(res.Unit)
			}

		case StatusNotEnoughData:
			return

		case StatusWrongSequenceNumber:
			now := a.params.Clock.Now()
			if a.firstFailureAt.IsZero() {
				a.firstFailureAt = now
			}
			if !flush && now.Sub(a.firstFailureAt) <= a.params.MaxWait {
				return
			}
			a.packetLost()

		case StatusLargeSequenceGap:
			a.packetLost()

		case StatusMalformedPacket:
			if a.firstFailureAt.IsZero() {
				a.firstFailureAt = a.params.Clock.Now()
			}
			a.malformedLogger.ErrorLog("malformed packet", res.Err, "sn", res.SequenceNumber)
			a.params.Notifier.OnMalformedPacket(src.SSRC(), res.SequenceNumber, res.Err)
		}
	}
}

func (a *Assembler) packetLost() {
	a.firstFailureAt = time.Time{}

	src := a.params.Source
	lost, ok := src.resync()
	if !ok {
		return
	}

	a.params.Strategy.PacketLost(src)
	if isRestart(lost) {
		a.params.Logger.Infow("stream restarted", "sn", lost.End+1)
		return
	}

	a.lossLogger.Log("packets lost", "range", lost.String(), "count", lost.Count())
	a.params.Notifier.OnPacketLost(src.SSRC(), lost)
}

func (a *Assembler) dispatch(au *AccessUnit) {
	src := a.params.Source
	au.SSRC = src.SSRC()
	au.MimeType = src.MimeType()

	src.stats.AccessUnits++
	if au.Damaged {
		src.stats.DamagedAccessUnits++
	}

	a.params.Sink.WriteAccessUnit(au)
}
