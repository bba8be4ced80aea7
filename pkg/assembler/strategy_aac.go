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
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/rtp-assembler/pkg/framebuilder"
)

var (
	ErrInterleavedAU = errors.New("interleaved AUs are not supported")
	ErrNoAUHeaders   = errors.New("packet carries no AU headers")
)

// AAC-hbr defaults from RFC 3640 section 3.3.6
const (
	DefaultAACSizeLength       = 13
	DefaultAACIndexLength      = 3
	DefaultAACIndexDeltaLength = 3
)

type AACStrategyParams struct {
	AAC              framebuilder.AACParams
	SizeLength       int
	IndexLength      int
	IndexDeltaLength int
}

// AACStrategy reassembles RFC 3640 mpeg4-generic AAC and hands out every unit ADTS framed.
// A packet either carries one or more complete AUs or one fragment of a single AU, in which
// case the fragments run until the marker bit.
type AACStrategy struct {
	params AACStrategyParams

	fragments    [][]byte
	received     int
	expectedSize int
	timestamp    uint32
	arrival      time.Time
	first        uint16
	last         uint16
	damaged      bool
}

func NewAACStrategy(params AACStrategyParams) *AACStrategy {
	if params.SizeLength == 0 {
		params.SizeLength = DefaultAACSizeLength
		params.IndexLength = DefaultAACIndexLength
		params.IndexDeltaLength = DefaultAACIndexDeltaLength
	}
	return &AACStrategy{
		params: params,
	}
}

func (a *AACStrategy) AssembleMore(s *Source, flush bool) Result {
	for {
		pkt, status := s.Next()
		if status == StatusNotEnoughData && flush && len(a.fragments) != 0 {
			return a.finishFragmented(true)
		}
		if status != StatusOK {
			return Result{Status: status}
		}

		if len(a.fragments) != 0 && pkt.Timestamp != a.timestamp {
			return a.finishFragmented(true)
		}

		sizes, data, err := a.parseAUHeaders(pkt.Payload)
		if err == nil {
			err = a.checkSizes(sizes, data)
		}
		if err != nil {
			s.Discard(pkt)
			if len(a.fragments) != 0 {
				a.damaged = true
			}
			return Result{Status: StatusMalformedPacket, SequenceNumber: pkt.SequenceNumber, Err: err}
		}
		s.Consume(pkt)

		if len(a.fragments) == 0 && sum(sizes) == len(data) {
			// one or more complete AUs
			frames := make([][]byte, 0, len(sizes))
			off := 0
			for _, size := range sizes {
				frames = append(frames, data[off:off+size])
				off += size
			}
			return a.finish(pkt.Timestamp, pkt.Arrival, pkt.SequenceNumber, pkt.SequenceNumber, frames, false)
		}

		if len(a.fragments) == 0 {
			a.expectedSize = sizes[0]
			a.timestamp = pkt.Timestamp
			a.arrival = pkt.Arrival
			a.first = pkt.SequenceNumber
		}
		a.last = pkt.SequenceNumber
		a.fragments = append(a.fragments, append([]byte(nil), data...))
		a.received += len(data)

		if pkt.Marker || a.received >= a.expectedSize {
			return a.finishFragmented(a.received != a.expectedSize)
		}
	}
}

// checkSizes validates AU sizes against the data section. A fragment carries a single header
// with the size of the whole AU.
func (a *AACStrategy) checkSizes(sizes []int, data []byte) error {
	if len(a.fragments) != 0 {
		if len(sizes) != 1 {
			return ErrFragmentedAUHeader
		}
		if sizes[0] != a.expectedSize {
			return fmt.Errorf("%w: fragment of AU size %d, expected %d", ErrAUSizeMismatch, sizes[0], a.expectedSize)
		}
		return nil
	}

	total := sum(sizes)
	switch {
	case total == len(data):
		return nil
	case len(sizes) == 1 && total > len(data):
		return nil
	default:
		return fmt.Errorf("%w: %d bytes declared, %d present", ErrAUSizeMismatch, total, len(data))
	}
}

func (a *AACStrategy) finishFragmented(incomplete bool) Result {
	frame := make([]byte, 0, a.received)
	for _, f := range a.fragments {
		frame = append(frame, f...)
	}
	timestamp, arrival, first, last := a.timestamp, a.arrival, a.first, a.last
	damaged := a.damaged || incomplete
	a.reset()

	return a.finish(timestamp, arrival, first, last, [][]byte{frame}, damaged)
}

func (a *AACStrategy) finish(
	timestamp uint32,
	arrival time.Time,
	first uint16,
	last uint16,
	frames [][]byte,
	damaged bool,
) Result {
	payload, err := framebuilder.MakeADTSCompound(a.params.AAC, frames)
	if err != nil {
		// the packets are already consumed, report against the last one
		return Result{Status: StatusMalformedPacket, SequenceNumber: last, Err: err}
	}

	return Result{
		Status: StatusOK,
		Unit: &AccessUnit{
			Timestamp:           timestamp,
			Arrival:             arrival,
			FirstSequenceNumber: first,
			LastSequenceNumber:  last,
			Payload:             payload,
			Damaged:             damaged,
		},
	}
}

func (a *AACStrategy) PacketLost(_ *Source) {
	if len(a.fragments) != 0 {
		a.damaged = true
	}
}

func (a *AACStrategy) OnByeReceived(_ *Source) {
	a.reset()
}

func (a *AACStrategy) reset() {
	a.fragments = nil
	a.received = 0
	a.expectedSize = 0
	a.arrival = time.Time{}
	a.damaged = false
}

// parseAUHeaders reads the AU header section of an RFC 3640 payload
//
//	+---------+-----------+-----------+---------------+
//	| RTP     | AU Header | Auxiliary | Access Unit   |
//	| Header  | Section   | Section   | Data Section  |
//	+---------+-----------+-----------+---------------+
//
// The section starts with a 16 bit length in bits, then per AU the AU-size (SizeLength bits)
// and AU-Index or AU-Index-delta (IndexLength or IndexDeltaLength bits).
func (a *AACStrategy) parseAUHeaders(payload []byte) ([]int, []byte, error) {
	if len(payload) < 2 {
		return nil, nil, ErrShortAUHeader
	}

	headersLength := int(binary.BigEndian.Uint16(payload))
	if headersLength == 0 {
		return nil, nil, ErrNoAUHeaders
	}
	headersBytes := (headersLength + 7) / 8
	if len(payload) < 2+headersBytes {
		return nil, nil, ErrShortAUHeader
	}

	br := bitReader{buf: payload[2 : 2+headersBytes]}
	var sizes []int
	for br.pos < headersLength {
		indexLength := a.params.IndexDeltaLength
		if len(sizes) == 0 {
			indexLength = a.params.IndexLength
		}
		if br.pos+a.params.SizeLength+indexLength > headersLength {
			return nil, nil, ErrShortAUHeader
		}

		size := br.read(a.params.SizeLength)
		if index := br.read(indexLength); index != 0 {
			return nil, nil, ErrInterleavedAU
		}
		sizes = append(sizes, int(size))
	}

	return sizes, payload[2+headersBytes:], nil
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// -------------------------------------

type bitReader struct {
	buf []byte
	pos int
}

func (b *bitReader) read(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		bit := (b.buf[b.pos/8] >> (7 - uint(b.pos%8))) & 0x01
		v = v<<1 | uint32(bit)
		b.pos++
	}
	return v
}
