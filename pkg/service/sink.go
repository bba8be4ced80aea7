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
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/assembler"
)

type sourceTotals struct {
	units     uint64
	damaged   uint64
	bytes     uint64
	lost      int
	malformed int
}

// LoggingSink is the default consumer. It logs every access unit and keeps per source
// totals, which are summarised when the source ends.
type LoggingSink struct {
	logger logger.Logger

	lock   sync.Mutex
	totals map[uint32]*sourceTotals
}

func NewLoggingSink(lgr logger.Logger) *LoggingSink {
	if lgr == nil {
		lgr = logger.GetLogger()
	}
	return &LoggingSink{
		logger: lgr,
		totals: make(map[uint32]*sourceTotals),
	}
}

func (s *LoggingSink) WriteAccessUnit(au *assembler.AccessUnit) {
	size := uint64(len(au.Payload))

	s.lock.Lock()
	t := s.getTotals(au.SSRC)
	t.units++
	t.bytes += size
	if au.Damaged {
		t.damaged++
	}
	s.lock.Unlock()

	s.logger.Debugw(
		"access unit",
		"ssrc", au.SSRC,
		"mime", au.MimeType,
		"ts", au.Timestamp,
		"sn", au.FirstSequenceNumber,
		"lastSN", au.LastSequenceNumber,
		"size", humanize.Bytes(size),
		"keyFrame", au.KeyFrame,
		"talkspurt", au.StartOfTalkspurt,
		"damaged", au.Damaged,
	)
}

func (s *LoggingSink) OnPacketLost(ssrc uint32, lost assembler.SequenceRange) {
	s.lock.Lock()
	s.getTotals(ssrc).lost += lost.Count()
	s.lock.Unlock()
}

func (s *LoggingSink) OnMalformedPacket(ssrc uint32, _ uint16, _ error) {
	s.lock.Lock()
	s.getTotals(ssrc).malformed++
	s.lock.Unlock()
}

// OnEndOfStream logs and forgets the totals of a source.
func (s *LoggingSink) OnEndOfStream(ssrc uint32) {
	s.lock.Lock()
	t, ok := s.totals[ssrc]
	delete(s.totals, ssrc)
	s.lock.Unlock()
	if !ok {
		return
	}

	s.logger.Infow(
		"source output",
		"ssrc", ssrc,
		"accessUnits", t.units,
		"damaged", t.damaged,
		"bytes", humanize.Bytes(t.bytes),
		"packetsLost", t.lost,
		"packetsMalformed", t.malformed,
	)
}

func (s *LoggingSink) AccessUnits(ssrc uint32) uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	if t, ok := s.totals[ssrc]; ok {
		return t.units
	}
	return 0
}

func (s *LoggingSink) getTotals(ssrc uint32) *sourceTotals {
	t, ok := s.totals[ssrc]
	if !ok {
		t = &sourceTotals{}
		s.totals[ssrc] = t
	}
	return t
}
