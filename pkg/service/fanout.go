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

package service

import (
	"github.com/livekit/rtp-assembler/pkg/assembler"
)

type sinkSet []assembler.Sink

func (s sinkSet) WriteAccessUnit(au *assembler.AccessUnit) {
	for _, sink := range s {
		sink.WriteAccessUnit(au)
	}
}

type notifierSet []assembler.Notifier

func (n notifierSet) OnPacketLost(ssrc uint32, lost assembler.SequenceRange) {
	for _, notifier := range n {
		notifier.OnPacketLost(ssrc, lost)
	}
}

func (n notifierSet) OnMalformedPacket(ssrc uint32, sequenceNumber uint16, err error) {
	for _, notifier := range n {
		notifier.OnMalformedPacket(ssrc, sequenceNumber, err)
	}
}

func (n notifierSet) OnEndOfStream(ssrc uint32) {
	for _, notifier := range n {
		notifier.OnEndOfStream(ssrc)
	}
}
