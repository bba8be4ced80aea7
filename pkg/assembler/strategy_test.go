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
	"testing"
	"time"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/livekit/rtp-assembler/pkg/framebuilder"
)

var testAACParams = framebuilder.AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2}

// aacPayload builds an AAC-hbr payload with 13 bit sizes and 3 bit indices.
func aacPayload(sizes []int, data ...byte) []byte {
	payload := make([]byte, 2+2*len(sizes))
	binary.BigEndian.PutUint16(payload, uint16(16*len(sizes)))
	for i, size := range sizes {
		binary.BigEndian.PutUint16(payload[2+2*i:], uint16(size<<3))
	}
	return append(payload, data...)
}

func adts(t *testing.T, frames ...[]byte) []byte {
	t.Helper()
	out, err := framebuilder.MakeADTSCompound(testAACParams, frames)
	require.NoError(t, err)
	return out
}

func TestAudioStrategy(t *testing.T) {
	h := newTestHarness(t, NewAudioStrategy(&codecs.OpusPacket{}), 0)

	h.push(t, 1, 960, true, 0x78, 1)
	h.push(t, 2, 1920, false, 0x78, 2)
	h.assembler.OnPacketReceived(false)

	// 3 lost
	h.push(t, 4, 3840, false, 0x78, 4)
	h.assembler.OnPacketReceived(false)
	h.clock.Add(15 * time.Millisecond)
	h.assembler.OnPacketReceived(false)

	h.push(t, 5, 4800, false, 0x78, 5)
	h.assembler.OnPacketReceived(false)

	require.Equal(t, [][]byte{{0x78, 1}, {0x78, 2}, {0x78, 4}, {0x78, 5}}, h.payloads())
	require.True(t, h.sink.units[0].StartOfTalkspurt)
	require.False(t, h.sink.units[1].StartOfTalkspurt)
	require.False(t, h.sink.units[1].Damaged)
	require.True(t, h.sink.units[2].Damaged)
	require.False(t, h.sink.units[3].Damaged)
	require.Equal(t, []lossEvent{{ssrc: testSSRC, lost: SequenceRange{Start: 3, End: 3}}}, h.notifier.lost)
}

func TestAudioStrategy_EmptyPayload(t *testing.T) {
	h := newTestHarness(t, NewAudioStrategy(rawDepacketizer{}), 0)

	h.push(t, 1, 160, false, 0xd5)
	h.push(t, 2, 320, false)
	h.push(t, 3, 480, false, 0xd5)
	h.assembler.OnPacketReceived(false)

	require.Equal(t, [][]byte{{0xd5}, {0xd5}}, h.payloads())
	require.Len(t, h.notifier.malformed, 1)
	require.ErrorIs(t, h.notifier.malformed[0].err, ErrEmptyPayload)
	require.Empty(t, h.notifier.lost)
}

func TestAACStrategy_CompleteUnits(t *testing.T) {
	h := newTestHarness(t, NewAACStrategy(AACStrategyParams{AAC: testAACParams}), 0)

	h.push(t, 1, 1024, true, aacPayload([]int{3, 2}, 1, 2, 3, 4, 5)...)
	h.push(t, 2, 3072, true, aacPayload([]int{1}, 6)...)
	h.assembler.OnPacketReceived(false)

	require.Equal(t, [][]byte{
		adts(t, []byte{1, 2, 3}, []byte{4, 5}),
		adts(t, []byte{6}),
	}, h.payloads())
	require.Equal(t, uint32(1024), h.sink.units[0].Timestamp)
	require.Equal(t, byte(0xff), h.sink.units[0].Payload[0])
}

func TestAACStrategy_FragmentedUnit(t *testing.T) {
	h := newTestHarness(t, NewAACStrategy(AACStrategyParams{AAC: testAACParams}), 0)

	h.push(t, 10, 1024, false, aacPayload([]int{6}, 1, 2)...)
	h.push(t, 11, 1024, false, aacPayload([]int{6}, 3, 4)...)
	h.assembler.OnPacketReceived(false)
	require.Empty(t, h.sink.units)

	h.push(t, 12, 1024, true, aacPayload([]int{6}, 5, 6)...)
	h.assembler.OnPacketReceived(false)

	require.Equal(t, [][]byte{adts(t, []byte{1, 2, 3, 4, 5, 6})}, h.payloads())
	au := h.sink.units[0]
	require.False(t, au.Damaged)
	require.Equal(t, uint16(10), au.FirstSequenceNumber)
	require.Equal(t, uint16(12), au.LastSequenceNumber)
}

func TestAACStrategy_LostFragment(t *testing.T) {
	h := newTestHarness(t, NewAACStrategy(AACStrategyParams{AAC: testAACParams}), 0)

	h.push(t, 10, 1024, false, aacPayload([]int{6}, 1, 2)...)
	// 11 lost
	h.push(t, 12, 1024, true, aacPayload([]int{6}, 5, 6)...)
	h.assembler.OnPacketReceived(true)

	require.Equal(t, [][]byte{adts(t, []byte{1, 2, 5, 6})}, h.payloads())
	require.True(t, h.sink.units[0].Damaged)
	require.Len(t, h.notifier.lost, 1)
}

func TestAACStrategy_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		err     error
	}{
		{"too short", []byte{0x00}, ErrShortAUHeader},
		{"no headers", []byte{0x00, 0x00, 1, 2}, ErrNoAUHeaders},
		{"truncated headers", []byte{0x00, 0x20, 0x00, 0x18}, ErrShortAUHeader},
		{"sizes do not add up", aacPayload([]int{3, 3}, 1, 2, 3, 4, 5), ErrAUSizeMismatch},
		{"interleaved", []byte{0x00, 0x10, 0x00, 0x09, 1}, ErrInterleavedAU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t, NewAACStrategy(AACStrategyParams{AAC: testAACParams}), 0)

			h.push(t, 1, 1024, true, tt.payload...)
			h.push(t, 2, 2048, true, aacPayload([]int{1}, 9)...)
			h.assembler.OnPacketReceived(false)

			require.Equal(t, [][]byte{adts(t, []byte{9})}, h.payloads())
			require.Len(t, h.notifier.malformed, 1)
			require.ErrorIs(t, h.notifier.malformed[0].err, tt.err)
			require.Equal(t, uint16(1), h.notifier.malformed[0].sn)
		})
	}
}

func TestFrameStrategy_H264(t *testing.T) {
	strategy, err := NewStrategy(CodecParams{MimeType: webrtc.MimeTypeH264, ClockRate: 90000})
	require.NoError(t, err)
	h := newTestHarness(t, strategy, 0)

	idr := []byte{0x65, 0x88, 0x84, 0x21}
	h.push(t, 1, 3000, true, idr...)
	h.push(t, 2, 6000, true, 0x41, 0x9a, 0x02)
	h.assembler.OnPacketReceived(false)

	require.Len(t, h.sink.units, 2)
	require.True(t, h.sink.units[0].KeyFrame)
	require.Contains(t, string(h.sink.units[0].Payload), string(idr))
	require.False(t, h.sink.units[1].KeyFrame)
}

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		mime string
		want Strategy
		err  error
	}{
		{webrtc.MimeTypeH264, &FrameStrategy{}, nil},
		{"video/vp8", &FrameStrategy{}, nil},
		{webrtc.MimeTypeVP9, &FrameStrategy{}, nil},
		{webrtc.MimeTypeOpus, &AudioStrategy{}, nil},
		{webrtc.MimeTypePCMU, &AudioStrategy{}, nil},
		{webrtc.MimeTypeG722, &AudioStrategy{}, nil},
		{MimeTypeAAC, nil, ErrUnsupportedCodec},
		{"video/H265", nil, ErrUnsupportedCodec},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			s, err := NewStrategy(CodecParams{MimeType: tt.mime})
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.IsType(t, tt.want, s)
		})
	}
}

func TestAACParamsFromFmtp(t *testing.T) {
	params, err := AACParamsFromFmtp(map[string]string{
		"streamtype":       "5",
		"mode":             "AAC-hbr",
		"config":           "1210",
		"sizelength":       "13",
		"indexlength":      "3",
		"indexdeltalength": "3",
	})
	require.NoError(t, err)
	require.Equal(t, testAACParams, params.AAC)
	require.Equal(t, 13, params.SizeLength)

	_, err = AACParamsFromFmtp(map[string]string{"mode": "AAC-hbr"})
	require.ErrorIs(t, err, ErrUnsupportedCodec)

	_, err = AACParamsFromFmtp(map[string]string{"config": "1210", "sizelength": "x"})
	require.Error(t, err)

	s, err := NewStrategy(CodecParams{MimeType: MimeTypeAAC, AAC: params})
	require.NoError(t, err)
	require.IsType(t, &AACStrategy{}, s)
}

func TestKeyFrameDetection(t *testing.T) {
	require.True(t, IsH264KeyFrame([]byte{0x65}))
	require.True(t, IsH264KeyFrame([]byte{0x67, 0x42}))
	require.False(t, IsH264KeyFrame([]byte{0x41}))
	// STAP-A carrying SPS
	require.True(t, IsH264KeyFrame([]byte{0x78, 0x00, 0x02, 0x67, 0x42}))
	// FU-A start of an IDR
	require.True(t, IsH264KeyFrame([]byte{0x7c, 0x85, 0x01}))
	require.False(t, IsH264KeyFrame([]byte{0x7c, 0x05, 0x01}))

	// S=1 PID=0, P bit clear
	require.True(t, IsVP8KeyFrame([]byte{0x10, 0x00, 0x9d, 0x01}))
	require.False(t, IsVP8KeyFrame([]byte{0x10, 0x01, 0x9d, 0x01}))
	require.False(t, IsVP8KeyFrame([]byte{0x00, 0x00, 0x9d, 0x01}))

	// flexible mode off, B set, no layers
	require.True(t, IsVP9KeyFrame([]byte{0x08}))
	require.False(t, IsVP9KeyFrame([]byte{0x48}))
}
