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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/assembler/assemblerfakes"
	"github.com/livekit/rtp-assembler/pkg/config"
)

const (
	ptPCMU = 0
	ptVP8  = 97
)

type testSession struct {
	*Session
	clock    *clock.Mock
	sink     *assemblerfakes.FakeSink
	notifier *assemblerfakes.FakeNotifier
}

func newTestSession(t *testing.T, sessionConfig config.SessionConfig) *testSession {
	t.Helper()

	ts := &testSession{
		clock:    clock.NewMock(),
		sink:     &assemblerfakes.FakeSink{},
		notifier: &assemblerfakes.FakeNotifier{},
	}
	ts.clock.Set(time.Unix(1_000_000, 0))

	s, err := New(Params{
		Codecs: CodecMap{
			ptPCMU: {MimeType: "audio/PCMU", ClockRate: 8000},
			ptVP8:  {MimeType: "video/VP8", ClockRate: 90000},
		},
		Sink:     ts.sink,
		Notifier: ts.notifier,
		Assembler: config.AssemblerConfig{
			LargeGapThreshold: 20,
			MaxWait:           10 * time.Millisecond,
			QueueCapacity:     64,
		},
		Session: sessionConfig,
		Clock:   ts.clock,
	})
	require.NoError(t, err)
	ts.Session = s
	t.Cleanup(s.Close)
	return ts
}

func marshalRTP(t *testing.T, ssrc uint32, pt uint8, sn uint16, ts uint32, marker bool, payload ...byte) []byte {
	t.Helper()
	buf, err := (&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: sn,
			Timestamp:      ts,
			SSRC:           ssrc,
			Marker:         marker,
		},
		Payload: payload,
	}).Marshal()
	require.NoError(t, err)
	return buf
}

func (ts *testSession) sendPCMU(t *testing.T, ssrc uint32, sn uint16) error {
	return ts.HandlePacket(marshalRTP(t, ssrc, ptPCMU, sn, uint32(sn)*160, false, byte(sn)), ts.clock.Now())
}

func (ts *testSession) payloads() [][]byte {
	var out [][]byte
	for i := 0; i < ts.sink.WriteAccessUnitCallCount(); i++ {
		out = append(out, ts.sink.WriteAccessUnitArgsForCall(i).Payload)
	}
	return out
}

func (ts *testSession) waitForUnits(t *testing.T, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.sink.WriteAccessUnitCallCount() >= count
	}, time.Second, time.Millisecond)
}

// -------------------------------------

func TestSession_RoundTrip(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	// the first packet fixes where the source starts
	for _, sn := range []uint16{1, 3, 2, 5, 4} {
		require.NoError(t, ts.sendPCMU(t, 0x1111, sn))
	}

	ts.waitForUnits(t, 5)
	require.Equal(t, [][]byte{{1}, {2}, {3}, {4}, {5}}, ts.payloads())
	require.Zero(t, ts.notifier.OnPacketLostCallCount())

	au := ts.sink.WriteAccessUnitArgsForCall(0)
	require.Equal(t, uint32(0x1111), au.SSRC)
	require.Equal(t, "audio/PCMU", au.MimeType)
	require.Equal(t, []uint32{0x1111}, ts.SSRCs())
}

func TestSession_BoundedWait(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{DriveInterval: 5 * time.Millisecond})

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	require.NoError(t, ts.sendPCMU(t, 0x1111, 3))
	ts.waitForUnits(t, 1)

	// the re-drive ticker resolves the wait without another packet arriving
	require.Eventually(t, func() bool {
		ts.clock.Add(5 * time.Millisecond)
		return ts.sink.WriteAccessUnitCallCount() == 2
	}, time.Second, time.Millisecond)
	require.Equal(t, [][]byte{{1}, {3}}, ts.payloads())
	require.True(t, ts.sink.WriteAccessUnitArgsForCall(1).Damaged)

	require.Eventually(t, func() bool {
		return ts.notifier.OnPacketLostCallCount() == 1
	}, time.Second, time.Millisecond)
	ssrc, lost := ts.notifier.OnPacketLostArgsForCall(0)
	require.Equal(t, uint32(0x1111), ssrc)
	require.Equal(t, assembler.SequenceRange{Start: 2, End: 2}, lost)
}

func TestSession_Interleaved(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	for sn := uint16(10); sn < 15; sn++ {
		require.NoError(t, ts.sendPCMU(t, 0x1111, sn))
		require.NoError(t, ts.sendPCMU(t, 0x2222, sn+1000))
	}
	ts.waitForUnits(t, 10)

	perSource := map[uint32][]uint16{}
	for i := 0; i < ts.sink.WriteAccessUnitCallCount(); i++ {
		au := ts.sink.WriteAccessUnitArgsForCall(i)
		perSource[au.SSRC] = append(perSource[au.SSRC], au.FirstSequenceNumber)
	}
	require.Equal(t, []uint16{10, 11, 12, 13, 14}, perSource[0x1111])
	require.Equal(t, []uint16{1010, 1011, 1012, 1013, 1014}, perSource[0x2222])
	require.ElementsMatch(t, []uint32{0x1111, 0x2222}, ts.SSRCs())
}

func TestSession_Duplicate(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	err := ts.sendPCMU(t, 0x1111, 1)
	require.True(t, errors.Is(err, assembler.ErrDuplicatePacket) || errors.Is(err, assembler.ErrPacketTooOld), err)

	require.NoError(t, ts.sendPCMU(t, 0x1111, 2))
	ts.waitForUnits(t, 2)
	require.Equal(t, [][]byte{{1}, {2}}, ts.payloads())
}

func TestSession_Bye(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	require.NoError(t, ts.sendPCMU(t, 0x1111, 2))

	bye, err := (&rtcp.Goodbye{Sources: []uint32{0x1111}, Reason: "done"}).Marshal()
	require.NoError(t, err)
	require.NoError(t, ts.HandlePacket(bye, ts.clock.Now()))

	require.Eventually(t, func() bool {
		return ts.notifier.OnEndOfStreamCallCount() == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, uint32(0x1111), ts.notifier.OnEndOfStreamArgsForCall(0))
	require.Equal(t, [][]byte{{1}, {2}}, ts.payloads())
	require.Empty(t, ts.SSRCs())

	// the source stays ended
	require.ErrorIs(t, ts.sendPCMU(t, 0x1111, 3), ErrSourceEnded)
	require.ErrorIs(t, ts.Drain(0x1111), ErrSourceNotFound)
}

func TestSession_ByeForUnknownSource(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	bye, err := (&rtcp.Goodbye{Sources: []uint32{0x3333}}).Marshal()
	require.NoError(t, err)
	require.NoError(t, ts.HandleRTCP(bye))

	require.ErrorIs(t, ts.sendPCMU(t, 0x3333, 1), ErrSourceEnded)
	require.Zero(t, ts.notifier.OnEndOfStreamCallCount())
}

func TestSession_RejectedPackets(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	require.ErrorIs(t, ts.HandlePacket([]byte{0x80}, ts.clock.Now()), ErrNotRTP)
	require.ErrorIs(t, ts.HandlePacket([]byte{0x00, 0x00, 0x00, 0x01}, ts.clock.Now()), ErrNotRTP)
	require.ErrorIs(t, ts.HandleRTP([]byte{0x80, 0x00, 0x00}, ts.clock.Now()), ErrNotRTP)
	require.ErrorIs(t, ts.HandleRTCP([]byte{0x80, 0xc8, 0x00}), ErrNotRTP)

	buf := marshalRTP(t, 0x1111, 50, 1, 0, false, 1)
	require.ErrorIs(t, ts.HandlePacket(buf, ts.clock.Now()), ErrUnknownPayloadType)

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	buf = marshalRTP(t, 0x1111, ptVP8, 2, 0, true, 0x10, 1)
	require.ErrorIs(t, ts.HandlePacket(buf, ts.clock.Now()), ErrCodecChanged)
}

func TestSession_Drain(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	// VP8 frame without its last packet
	require.NoError(t, ts.HandlePacket(marshalRTP(t, 0x4444, ptVP8, 1, 3000, false, 0x10, 0xaa, 0xab, 0xac), ts.clock.Now()))
	require.NoError(t, ts.HandlePacket(marshalRTP(t, 0x4444, ptVP8, 2, 3000, false, 0x00, 0xbb, 0xbc, 0xbd), ts.clock.Now()))

	stats, err := ts.Stats(context.Background(), 0x4444)
	require.NoError(t, err)
	require.Equal(t, 0, stats.AccessUnits)

	require.NoError(t, ts.Drain(0x4444))
	ts.waitForUnits(t, 1)

	au := ts.sink.WriteAccessUnitArgsForCall(0)
	require.Equal(t, []byte{0xaa, 0xab, 0xac, 0xbb, 0xbc, 0xbd}, au.Payload)
	require.True(t, au.Damaged)

	stats, err = ts.Stats(context.Background(), 0x4444)
	require.NoError(t, err)
	require.Equal(t, 1, stats.AccessUnits)
	require.Equal(t, 1, stats.DamagedAccessUnits)
}

func TestSession_SourceTimeout(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{
		SourceTimeout: time.Second,
		DriveInterval: 100 * time.Millisecond,
	})

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	ts.waitForUnits(t, 1)

	require.Eventually(t, func() bool {
		ts.clock.Add(100 * time.Millisecond)
		return ts.notifier.OnEndOfStreamCallCount() == 1
	}, time.Second, time.Millisecond)
	require.Empty(t, ts.SSRCs())

	// a timed out source may come back
	require.NoError(t, ts.sendPCMU(t, 0x1111, 50))
	require.Equal(t, []uint32{0x1111}, ts.SSRCs())
}

func TestSession_Close(t *testing.T) {
	ts := newTestSession(t, config.SessionConfig{})

	require.NoError(t, ts.sendPCMU(t, 0x1111, 1))
	require.NoError(t, ts.sendPCMU(t, 0x2222, 1))

	ts.Close()
	require.Equal(t, 2, ts.notifier.OnEndOfStreamCallCount())
	require.Equal(t, 2, ts.sink.WriteAccessUnitCallCount())
	require.ErrorIs(t, ts.sendPCMU(t, 0x5555, 1), ErrSessionClosed)

	// closing again is a no-op
	ts.Close()
}
