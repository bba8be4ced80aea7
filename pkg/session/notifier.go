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
	"github.com/gammazero/workerpool"

	"github.com/livekit/rtp-assembler/pkg/assembler"
)

// asyncNotifier moves notifier calls off the source workers. A single worker keeps events in
// the order they were raised.
type asyncNotifier struct {
	next assembler.Notifier
	pool *workerpool.WorkerPool
}

func newAsyncNotifier(next assembler.Notifier) *asyncNotifier {
	return &asyncNotifier{
		next: next,
		pool: workerpool.New(1),
	}
}

func (n *asyncNotifier) OnPacketLost(ssrc uint32, lost assembler.SequenceRange) {
	n.pool.Submit(func() {
		n.next.OnPacketLost(ssrc, lost)
	})
}

func (n *asyncNotifier) OnMalformedPacket(ssrc uint32, sequenceNumber uint16, err error) {
	n.pool.Submit(func() {
		n.next.OnMalformedPacket(ssrc, sequenceNumber, err)
	})
}

func (n *asyncNotifier) OnEndOfStream(ssrc uint32) {
	n.pool.Submit(func() {
		n.next.OnEndOfStream(ssrc)
	})
}

// stop waits for queued events to be delivered. Nothing may be raised afterwards.
func (n *asyncNotifier) stop() {
	n.pool.StopWait()
}
