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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/frostbyte73/core"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/config"
	"github.com/livekit/rtp-assembler/pkg/telemetry/prometheus"
)

const (
	defaultDriveInterval        = 5 * time.Millisecond
	defaultEndedSourceCacheSize = 1024
)

type Params struct {
	Codecs CodecMap
	// called from the source workers, concurrently for different sources
	Sink      assembler.Sink
	Notifier  assembler.Notifier
	Assembler config.AssemblerConfig
	Session   config.SessionConfig
	Clock     clock.Clock
	Logger    logger.Logger
}

// Session demultiplexes an RTP session by SSRC and runs one assembler per source.
type Session struct {
	params   Params
	notifier *asyncNotifier

	lock    sync.RWMutex
	sources *orderedmap.OrderedMap[uint32, *sourceWorker]
	ended   *lru.Cache[uint32, struct{}]
	// running workers, Close waits on them
	workers sync.WaitGroup

	closed   core.Fuse
	loopDone core.Fuse
}

func New(params Params) (*Session, error) {
	if len(params.Codecs) == 0 {
		return nil, errors.New("no codecs")
	}
	if params.Sink == nil {
		return nil, errors.New("no sink")
	}
	if params.Notifier == nil {
		params.Notifier = assembler.NullNotifier{}
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Session.DriveInterval <= 0 {
		params.Session.DriveInterval = defaultDriveInterval
	}
	if params.Session.EndedSourceCacheSize <= 0 {
		params.Session.EndedSourceCacheSize = defaultEndedSourceCacheSize
	}

	ended, err := lru.New[uint32, struct{}](params.Session.EndedSourceCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		params:   params,
		notifier: newAsyncNotifier(params.Notifier),
		sources:  orderedmap.NewOrderedMap[uint32, *sourceWorker](),
		ended:    ended,
	}
	go s.driveWorker()
	return s, nil
}

// HandlePacket takes one datagram of a port carrying both RTP and RTCP and routes it by the
// RFC 5761 payload type rule.
func (s *Session) HandlePacket(buf []byte, arrival time.Time) error {
	if len(buf) < 2 || buf[0]>>6 != 2 {
		return ErrNotRTP
	}
	if buf[1] >= 192 && buf[1] <= 223 {
		return s.HandleRTCP(buf)
	}
	return s.HandleRTP(buf, arrival)
}

func (s *Session) HandleRTP(buf []byte, arrival time.Time) error {
	prometheus.IncrementBytes(prometheus.PacketTypeRTP, uint64(len(buf)))

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf); err != nil {
		prometheus.IncrementPackets(prometheus.PacketTypeRTP, prometheus.PacketInvalid)
		return fmt.Errorf("%w: %v", ErrNotRTP, err)
	}
	// the read buffer gets reused
	pkt.Payload = append([]byte(nil), pkt.Payload...)

	err := s.pushRTP(pkt, arrival)
	prometheus.IncrementPackets(prometheus.PacketTypeRTP, packetOutcome(err))
	return err
}

func (s *Session) pushRTP(pkt *rtp.Packet, arrival time.Time) error {
	if s.ended.Contains(pkt.SSRC) {
		return ErrSourceEnded
	}

	codec, ok := s.params.Codecs[pkt.PayloadType]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPayloadType, pkt.PayloadType)
	}

	w, err := s.getOrCreateSource(pkt.SSRC, codec)
	if err != nil {
		return err
	}
	if !strings.EqualFold(w.params.Codec.MimeType, codec.MimeType) {
		return fmt.Errorf("%w: %d is %s, source is %s", ErrCodecChanged, pkt.PayloadType, codec.MimeType, w.params.Codec.MimeType)
	}

	if err := w.push(assembler.NewPacket(pkt, arrival)); err != nil {
		if errors.Is(err, assembler.ErrQueueClosed) {
			return ErrSourceEnded
		}
		return err
	}
	w.signal()
	return nil
}

func (s *Session) getOrCreateSource(ssrc uint32, codec assembler.CodecParams) (*sourceWorker, error) {
	s.lock.RLock()
	w, ok := s.sources.Get(ssrc)
	s.lock.RUnlock()
	if ok {
		return w, nil
	}

	strategy, err := assembler.NewStrategy(codec)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed.IsBroken() {
		return nil, ErrSessionClosed
	}
	if s.ended.Contains(ssrc) {
		return nil, ErrSourceEnded
	}
	if w, ok := s.sources.Get(ssrc); ok {
		return w, nil
	}

	w = newSourceWorker(sourceWorkerParams{
		SSRC:              ssrc,
		Codec:             codec,
		Strategy:          strategy,
		Sink:              s.params.Sink,
		Notifier:          s.notifier,
		QueueCapacity:     s.params.Assembler.QueueCapacity,
		LateWindow:        s.params.Assembler.LateWindow,
		LargeGapThreshold: s.params.Assembler.LargeGapThreshold,
		MaxWait:           s.params.Assembler.MaxWait,
		Clock:             s.params.Clock,
		Logger:            s.params.Logger,
	})
	s.sources.Set(ssrc, w)
	s.workers.Add(1)
	go func() {
		<-w.ended.Watch()
		s.workers.Done()
	}()
	prometheus.SourceStarted()

	s.params.Logger.Infow("source started", "ssrc", ssrc, "mime", codec.MimeType)
	return w, nil
}

func (s *Session) HandleRTCP(buf []byte) error {
	prometheus.IncrementBytes(prometheus.PacketTypeRTCP, uint64(len(buf)))

	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		prometheus.IncrementPackets(prometheus.PacketTypeRTCP, prometheus.PacketInvalid)
		return fmt.Errorf("%w: %v", ErrNotRTP, err)
	}
	prometheus.IncrementPackets(prometheus.PacketTypeRTCP, prometheus.PacketAccepted)

	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *rtcp.Goodbye:
			for _, ssrc := range p.Sources {
				s.params.Logger.Debugw("received BYE", "ssrc", ssrc, "reason", p.Reason)
				s.endSource(ssrc, true)
			}
		}
	}
	return nil
}

// Drain assembles whatever the source has queued without waiting for missing packets.
func (s *Session) Drain(ssrc uint32) error {
	s.lock.RLock()
	w, ok := s.sources.Get(ssrc)
	s.lock.RUnlock()
	if !ok {
		return ErrSourceNotFound
	}
	return w.drain()
}

func (s *Session) Stats(ctx context.Context, ssrc uint32) (assembler.SourceStats, error) {
	s.lock.RLock()
	w, ok := s.sources.Get(ssrc)
	s.lock.RUnlock()
	if !ok {
		return assembler.SourceStats{}, ErrSourceNotFound
	}
	return w.stats(ctx)
}

// SSRCs lists the active sources in the order they started.
func (s *Session) SSRCs() []uint32 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.sources.Keys()
}

// Close ends every source and returns once all their events are delivered.
func (s *Session) Close() {
	s.lock.Lock()
	if s.closed.IsBroken() {
		s.lock.Unlock()
		return
	}
	s.closed.Break()
	ssrcs := s.sources.Keys()
	s.lock.Unlock()

	<-s.loopDone.Watch()
	for _, ssrc := range ssrcs {
		s.endSource(ssrc, false)
	}

	s.workers.Wait()
	s.notifier.stop()
}

func (s *Session) endSource(ssrc uint32, remember bool) {
	s.lock.Lock()
	w, ok := s.sources.Get(ssrc)
	if ok {
		s.sources.Delete(ssrc)
	}
	if remember {
		s.ended.Add(ssrc, struct{}{})
	}
	s.lock.Unlock()

	if ok {
		w.end()
	}
}

func (s *Session) driveWorker() {
	defer s.loopDone.Break()

	ticker := s.params.Clock.Ticker(s.params.Session.DriveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed.Watch():
			return
		case <-ticker.C:
			s.drive()
		}
	}
}

// drive re-runs sources with queued packets so waits on missing packets expire without new
// arrivals, and ends sources that went quiet.
func (s *Session) drive() {
	s.lock.RLock()
	workers := make([]*sourceWorker, 0, s.sources.Len())
	for el := s.sources.Front(); el != nil; el = el.Next() {
		workers = append(workers, el.Value)
	}
	s.lock.RUnlock()

	now := s.params.Clock.Now()
	for _, w := range workers {
		if timeout := s.params.Session.SourceTimeout; timeout > 0 && now.Sub(w.idleSince()) > timeout {
			s.params.Logger.Infow("source timed out", "ssrc", w.params.SSRC, "idle", now.Sub(w.idleSince()))
			s.endSource(w.params.SSRC, false)
			continue
		}
		if w.queue.Len() != 0 {
			w.signal()
		}
	}
}

func packetOutcome(err error) prometheus.PacketOutcome {
	switch {
	case err == nil:
		return prometheus.PacketAccepted
	case errors.Is(err, assembler.ErrDuplicatePacket):
		return prometheus.PacketDuplicate
	case errors.Is(err, assembler.ErrPacketTooOld):
		return prometheus.PacketTooOld
	case errors.Is(err, assembler.ErrQueueFull):
		return prometheus.PacketQueueFull
	case errors.Is(err, ErrSourceEnded), errors.Is(err, ErrSessionClosed):
		return prometheus.PacketSourceEnded
	case errors.Is(err, ErrUnknownPayloadType), errors.Is(err, ErrCodecChanged):
		return prometheus.PacketUnknownPayloadType
	default:
		return prometheus.PacketInvalid
	}
}
