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

package session

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/telemetry/prometheus"
	"github.com/livekit/rtp-assembler/pkg/utils"
)

const (
	sourceOpsQueueSize = 64
)

type sourceWorkerParams struct {
	SSRC              uint32
	Codec             assembler.CodecParams
	Strategy          assembler.Strategy
	Sink              assembler.Sink
	Notifier          assembler.Notifier
	QueueCapacity     int
	LateWindow        uint16
	LargeGapThreshold uint16
	MaxWait           time.Duration
	Clock             clock.Clock
	Logger            logger.Logger
}

// sourceWorker owns the assembler of one SSRC. Packets are queued from any goroutine, all
// assembly runs on the worker's ops queue.
type sourceWorker struct {
	params    sourceWorkerParams
	queue     *assembler.PacketQueue
	assembler *assembler.Assembler
	ops       *utils.OpsQueue

	signalled    atomic.Bool
	lastActivity atomic.Int64

	// only touched on the ops queue
	reportedEvicted int

	ended core.Fuse
}

func newSourceWorker(params sourceWorkerParams) *sourceWorker {
	queue := assembler.NewPacketQueue(assembler.PacketQueueParams{
		Capacity:   params.QueueCapacity,
		LateWindow: params.LateWindow,
	})
	src := assembler.NewSource(assembler.SourceParams{
		SSRC:              params.SSRC,
		MimeType:          params.Codec.MimeType,
		Queue:             queue,
		LargeGapThreshold: params.LargeGapThreshold,
	})

	w := &sourceWorker{
		params: params,
		queue:  queue,
		assembler: assembler.NewAssembler(assembler.AssemblerParams{
			Source:   src,
			Strategy: params.Strategy,
			Sink:     params.Sink,
			Notifier: params.Notifier,
			MaxWait:  params.MaxWait,
			Clock:    params.Clock,
			Logger:   params.Logger,
		}),
		ops: utils.NewOpsQueue(utils.OpsQueueParams{
			Name:   "source",
			Size:   sourceOpsQueueSize,
			Logger: params.Logger,
		}),
	}
	w.lastActivity.Store(params.Clock.Now().UnixNano())
	w.ops.Start()
	return w
}

func (w *sourceWorker) push(pkt *assembler.Packet) error {
	if err := w.queue.Push(pkt); err != nil {
		return err
	}
	w.lastActivity.Store(pkt.Arrival.UnixNano())
	return nil
}

// signal asks for an assembly pass. Signals raised while one is pending are folded into it.
func (w *sourceWorker) signal() {
	if !w.signalled.CompareAndSwap(false, true) {
		return
	}
	if !w.ops.Enqueue(w.assemble) {
		w.signalled.Store(false)
	}
}

func (w *sourceWorker) assemble() {
	w.signalled.Store(false)
	w.assembler.OnPacketReceived(false)
	w.reportEvicted()
}

func (w *sourceWorker) drain() error {
	if !w.ops.Enqueue(func() {
		w.assembler.OnPacketReceived(true)
		w.reportEvicted()
	}) {
		return ErrSourceEnded
	}
	return nil
}

func (w *sourceWorker) stats(ctx context.Context) (assembler.SourceStats, error) {
	res := make(chan assembler.SourceStats, 1)
	if !w.ops.Enqueue(func() {
		res <- w.assembler.Stats()
	}) {
		return assembler.SourceStats{}, ErrSourceEnded
	}

	select {
	case stats := <-res:
		return stats, nil
	case <-ctx.Done():
		return assembler.SourceStats{}, ctx.Err()
	}
}

// end stops accepting work, lets queued ops finish and then ends the source.
func (w *sourceWorker) end() {
	w.ops.Stop()
	go func() {
		<-w.ops.Done()

		w.assembler.OnByeReceived()
		w.reportEvicted()

		stats := w.assembler.Stats()
		queueStats := w.queue.Stats()
		w.params.Logger.Infow(
			"source closed",
			"ssrc", w.params.SSRC,
			"mime", w.params.Codec.MimeType,
			"packetsExpected", stats.PacketsExpected,
			"packetsConsumed", stats.PacketsConsumed,
			"packetsLost", stats.PacketsLost,
			"packetsMalformed", stats.PacketsMalformed,
			"packetsEvicted", stats.PacketsEvicted,
			"duplicates", queueStats.Duplicates,
			"tooOld", queueStats.TooOld,
			"accessUnits", stats.AccessUnits,
			"damagedAccessUnits", stats.DamagedAccessUnits,
		)
		prometheus.SourceEnded()
		w.ended.Break()
	}()
}

func (w *sourceWorker) idleSince() time.Time {
	return time.Unix(0, w.lastActivity.Load())
}

func (w *sourceWorker) reportEvicted() {
	evicted := w.assembler.Stats().PacketsEvicted
	prometheus.AddPacketsEvicted(evicted - w.reportedEvicted)
	w.reportedEvicted = evicted
}
