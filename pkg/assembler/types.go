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

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// Status is the outcome of one assembly attempt. It drives the intake loop and is never
// surfaced as an error.
type Status int

const (
	StatusOK Status = iota
	StatusNotEnoughData
	StatusWrongSequenceNumber
	StatusLargeSequenceGap
	StatusMalformedPacket
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotEnoughData:
		return "NOT_ENOUGH_DATA"
	case StatusWrongSequenceNumber:
		return "WRONG_SEQUENCE_NUMBER"
	case StatusLargeSequenceGap:
		return "LARGE_SEQUENCE_GAP"
	case StatusMalformedPacket:
		return "MALFORMED_PACKET"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// -------------------------------------

type Packet struct {
	*rtp.Packet
	Arrival time.Time
}

func NewPacket(pkt *rtp.Packet, arrival time.Time) *Packet {
	return &Packet{
		Packet:  pkt,
		Arrival: arrival,
	}
}

// -------------------------------------

// SequenceRange is an inclusive, possibly wrapping, range of sequence numbers.
type SequenceRange struct {
	Start uint16
	End   uint16
}

func (r SequenceRange) Count() int {
	return int(r.End-r.Start) + 1
}

func (r SequenceRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// -------------------------------------

type AccessUnit struct {
	SSRC     uint32
	MimeType string

	// timing of the first packet
	Timestamp uint32
	Arrival   time.Time

	FirstSequenceNumber uint16
	LastSequenceNumber  uint16

	Payload []byte

	KeyFrame         bool
	StartOfTalkspurt bool
	// assembled across a declared loss, or flushed before it was complete
	Damaged bool
}

// -------------------------------------

//counterfeiter:generate . Sink
type Sink interface {
	WriteAccessUnit(au *AccessUnit)
}

// Notifier receives advisory events. None of them stop the stream.
//
//counterfeiter:generate . Notifier
type Notifier interface {
	OnPacketLost(ssrc uint32, lost SequenceRange)
	OnMalformedPacket(ssrc uint32, sequenceNumber uint16, err error)
	OnEndOfStream(ssrc uint32)
}

type NullNotifier struct{}

func (NullNotifier) OnPacketLost(uint32, SequenceRange)      {}
func (NullNotifier) OnMalformedPacket(uint32, uint16, error) {}
func (NullNotifier) OnEndOfStream(uint32)                    {}

// -------------------------------------

type Result struct {
	Status Status
	// set with StatusOK
	Unit *AccessUnit

	// set with StatusMalformedPacket
	SequenceNumber uint16
	Err            error
}

// Strategy is the codec specific part of assembly. One instance serves one source and is
// only called from that source's assembler.
type Strategy interface {
	// AssembleMore consumes packets from the head of the source queue and returns at most
	// one finished access unit. With flush set, a partially built unit is returned damaged
	// instead of waiting for more data.
	AssembleMore(s *Source, flush bool) Result

	// PacketLost is called after a range of sequence numbers has been declared lost.
	PacketLost(s *Source)

	// OnByeReceived releases any partial state once the source has been drained.
	OnByeReceived(s *Source)
}
