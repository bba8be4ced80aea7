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
)

// AudioStrategy maps every packet to one access unit. The marker bit flags the first packet
// of a talkspurt.
type AudioStrategy struct {
	depacketizer rtp.Depacketizer
	lossPending  bool
}

func NewAudioStrategy(depacketizer rtp.Depacketizer) *AudioStrategy {
	return &AudioStrategy{
		depacketizer: depacketizer,
	}
}

func (a *AudioStrategy) AssembleMore(s *Source, _ bool) Result {
	pkt, status := s.Next()
	if status != StatusOK {
		return Result{Status: status}
	}

	payload, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		s.Discard(pkt)
		return Result{Status: StatusMalformedPacket, SequenceNumber: pkt.SequenceNumber, Err: err}
	}
	s.Consume(pkt)

	au := &AccessUnit{
		Timestamp:           pkt.Timestamp,
		Arrival:             pkt.Arrival,
		FirstSequenceNumber: pkt.SequenceNumber,
		LastSequenceNumber:  pkt.SequenceNumber,
		Payload:             append([]byte(nil), payload...),
		StartOfTalkspurt:    pkt.Marker,
		Damaged:             a.lossPending,
	}
	a.lossPending = false
	return Result{Status: StatusOK, Unit: au}
}

func (a *AudioStrategy) PacketLost(_ *Source) {
	a.lossPending = true
}

func (a *AudioStrategy) OnByeReceived(_ *Source) {
	a.lossPending = false
}

// -------------------------------------

// rawDepacketizer passes payloads through, for codecs without payload framing (G.711, G.722).
type rawDepacketizer struct{}

func (rawDepacketizer) Unmarshal(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return payload, nil
}

func (rawDepacketizer) IsPartitionHead(_ []byte) bool {
	return true
}

func (rawDepacketizer) IsPartitionTail(_ bool, _ []byte) bool {
	return true
}
