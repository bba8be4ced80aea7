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
	"github.com/pion/rtp"

	"github.com/livekit/rtp-assembler/pkg/framebuilder"
)

type FrameStrategyParams struct {
	// a fresh depacketizer is used for every access unit
	NewDepacketizer func() rtp.Depacketizer
	// checks a raw RTP payload, nil if the codec has no notion of key frames
	IsKeyFrame func(payload []byte) bool
}

// FrameStrategy builds one access unit from a run of packets sharing an RTP timestamp,
// closed by the codec's partition tail (usually the marker bit).
type FrameStrategy struct {
	params FrameStrategyParams

	depacketizer rtp.Depacketizer
	fragments    []framebuilder.Fragment
	first        uint16
	last         uint16
	keyFrame     bool
	damaged      bool
}

func NewFrameStrategy(params FrameStrategyParams) *FrameStrategy {
	return &FrameStrategy{
		params:       params,
		depacketizer: params.NewDepacketizer(),
	}
}

func (f *FrameStrategy) AssembleMore(s *Source, flush bool) Result {
	for {
		pkt, status := s.Next()
		if status == StatusNotEnoughData && flush && len(f.fragments) != 0 {
			return Result{Status: StatusOK, Unit: f.finish(true)}
		}
		if status != StatusOK {
			return Result{Status: status}
		}

		if len(f.fragments) != 0 && pkt.Timestamp != f.fragments[0].Timestamp {
			// the tail of the previous unit never made it
			return Result{Status: StatusOK, Unit: f.finish(true)}
		}

		payload, err := f.depacketizer.Unmarshal(pkt.Payload)
		if err != nil {
			s.Discard(pkt)
			if len(f.fragments) != 0 {
				f.damaged = true
			}
			return Result{Status: StatusMalformedPacket, SequenceNumber: pkt.SequenceNumber, Err: err}
		}
		s.Consume(pkt)

		if len(f.fragments) == 0 {
			f.first = pkt.SequenceNumber
		}
		f.last = pkt.SequenceNumber
		if f.params.IsKeyFrame != nil && f.params.IsKeyFrame(pkt.Payload) {
			f.keyFrame = true
		}
		f.fragments = append(f.fragments, framebuilder.Fragment{
			Payload:   payload,
			Timestamp: pkt.Timestamp,
			Arrival:   pkt.Arrival,
		})

		if f.depacketizer.IsPartitionTail(pkt.Marker, pkt.Payload) {
			return Result{Status: StatusOK, Unit: f.finish(false)}
		}
	}
}

func (f *FrameStrategy) PacketLost(_ *Source) {
	if len(f.fragments) != 0 {
		f.damaged = true
	}
}

func (f *FrameStrategy) OnByeReceived(_ *Source) {
	f.reset()
}

func (f *FrameStrategy) finish(incomplete bool) *AccessUnit {
	c := framebuilder.MakeCompound(f.fragments)
	au := &AccessUnit{
		Timestamp:           c.Timestamp,
		Arrival:             c.Arrival,
		FirstSequenceNumber: f.first,
		LastSequenceNumber:  f.last,
		Payload:             c.Payload,
		KeyFrame:            f.keyFrame,
		Damaged:             f.damaged || incomplete,
	}
	f.reset()
	return au
}

func (f *FrameStrategy) reset() {
	f.fragments = nil
	f.keyFrame = false
	f.damaged = false
	f.depacketizer = f.params.NewDepacketizer()
}
