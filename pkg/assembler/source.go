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
	"github.com/livekit/rtp-assembler/pkg/utils"
)

const (
	DefaultLargeGapThreshold = 20

	// a jump from the next expected sequence number longer than this is a restarted stream,
	// not a loss
	maxLossRange = 1 << 15
)

type SourceParams struct {
	SSRC     uint32
	MimeType string
	Queue    *PacketQueue
	// gaps larger than this are not waited for
	LargeGapThreshold uint16
}

type SourceStats struct {
	// size of the extended sequence number range seen so far
	PacketsExpected    uint64
	PacketsConsumed    int
	PacketsLost        int
	PacketsMalformed   int
	PacketsEvicted     int
	Resyncs            int
	Restarts           int
	AccessUnits        int
	DamagedAccessUnits int
}

// Source is the per synchronization source record. The queue is shared with the transport,
// everything else belongs to the assembler of this source.
type Source struct {
	params SourceParams

	nextExpected      uint16
	nextExpectedValid bool

	sequence *utils.WrapAround[uint16, uint64]
	// expected count of the streams before the last restart
	expectedBefore uint64
	stats          SourceStats
}

func NewSource(params SourceParams) *Source {
	if params.Queue == nil {
		params.Queue = NewPacketQueue(PacketQueueParams{})
	}
	if params.LargeGapThreshold == 0 {
		params.LargeGapThreshold = DefaultLargeGapThreshold
	}
	return &Source{
		params:   params,
		sequence: utils.NewWrapAround[uint16, uint64](),
	}
}

func (s *Source) SSRC() uint32 {
	return s.params.SSRC
}

func (s *Source) MimeType() string {
	return s.params.MimeType
}

func (s *Source) Queue() *PacketQueue {
	return s.params.Queue
}

func (s *Source) NextExpected() (uint16, bool) {
	return s.nextExpected, s.nextExpectedValid
}

// ClassifyGap places sn relative to the next expected sequence number. The distance is taken
// modulo 2^16 so a stream rolling over is not mistaken for a jump.
func ClassifyGap(nextExpected uint16, sn uint16, largeGapThreshold uint16) Status {
	gap := sn - nextExpected
	switch {
	case gap == 0:
		return StatusOK
	case gap > largeGapThreshold:
		return StatusLargeSequenceGap
	default:
		return StatusWrongSequenceNumber
	}
}

// Next returns the head of the queue if it is the next expected packet. Otherwise the status
// says why it cannot be used yet; the packet is still returned when there is one.
func (s *Source) Next() (*Packet, Status) {
	head := s.params.Queue.Front()
	if head == nil {
		return nil, StatusNotEnoughData
	}

	if !s.nextExpectedValid {
		s.nextExpected = head.SequenceNumber
		s.nextExpectedValid = true
		s.params.Queue.SetFloor(head.SequenceNumber)
	}

	return head, ClassifyGap(s.nextExpected, head.SequenceNumber, s.params.LargeGapThreshold)
}

// Consume removes pkt, which must be the in sequence head, and advances the next expected
// sequence number past it.
func (s *Source) Consume(pkt *Packet) {
	s.pop(pkt)
	s.stats.PacketsConsumed++
}

// Discard drops pkt, which must be the in sequence head, as unusable. Unlike a missing packet
// it advances the next expected sequence number, so the packets after it are not held back.
func (s *Source) Discard(pkt *Packet) {
	s.pop(pkt)
	s.stats.PacketsMalformed++
}

func (s *Source) pop(pkt *Packet) {
	head := s.params.Queue.PopFront()
	if head != pkt {
		panic("assembler: consumed packet is not the queue head")
	}

	if res := s.sequence.Update(pkt.SequenceNumber); res.IsOutOfOrder {
		// only a restart moves the consumer backwards, count it as a new stream
		s.expectedBefore += s.sequence.NumSeen()
		s.sequence = utils.NewWrapAround[uint16, uint64]()
		s.sequence.Update(pkt.SequenceNumber)
		s.stats.Restarts++
	}
	s.nextExpected = pkt.SequenceNumber + 1
}

// resync gives up on everything between the next expected sequence number and the queue
// head and continues from the head. A range longer than maxLossRange is a restart and is not
// counted as lost.
func (s *Source) resync() (SequenceRange, bool) {
	head := s.params.Queue.Front()
	if head == nil {
		return SequenceRange{}, false
	}

	if !s.nextExpectedValid {
		s.nextExpected = head.SequenceNumber
		s.nextExpectedValid = true
		s.params.Queue.SetFloor(head.SequenceNumber)
		return SequenceRange{}, false
	}

	if head.SequenceNumber == s.nextExpected {
		return SequenceRange{}, false
	}

	lost := SequenceRange{Start: s.nextExpected, End: head.SequenceNumber - 1}
	if !isRestart(lost) {
		s.stats.PacketsLost += lost.Count()
		s.sequence.Update(lost.End)
	}
	s.stats.Resyncs++

	s.nextExpected = head.SequenceNumber
	s.params.Queue.SetFloor(head.SequenceNumber)
	return lost, true
}

func isRestart(lost SequenceRange) bool {
	return lost.Count() > maxLossRange
}

func (s *Source) Stats() SourceStats {
	stats := s.stats
	stats.PacketsExpected = s.expectedBefore + s.sequence.NumSeen()
	return stats
}
