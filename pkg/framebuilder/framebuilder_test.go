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

package framebuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMakeCompound(t *testing.T) {
	first := time.Unix(100, 0)
	c := MakeCompound([]Fragment{
		{Payload: []byte{1, 2}, Timestamp: 3000, Arrival: first},
		{Payload: []byte{3}, Timestamp: 3000, Arrival: first.Add(time.Millisecond)},
		{Payload: nil, Timestamp: 3000, Arrival: first.Add(2 * time.Millisecond)},
		{Payload: []byte{4, 5, 6}, Timestamp: 3000, Arrival: first.Add(3 * time.Millisecond)},
	})
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, c.Payload)
	require.Equal(t, uint32(3000), c.Timestamp)
	require.Equal(t, first, c.Arrival)
}

func TestMakeCompoundDoesNotAlias(t *testing.T) {
	in := []byte{1, 2, 3}
	c := MakeCompound([]Fragment{{Payload: in}})
	in[0] = 9
	require.Equal(t, []byte{1, 2, 3}, c.Payload)
}

func TestMakeCompoundEmptyPanics(t *testing.T) {
	require.Panics(t, func() { MakeCompound(nil) })
	require.Panics(t, func() { _, _ = MakeADTSCompound(AACParams{ObjectType: 2}, nil) })
}

func TestWriteADTSHeader(t *testing.T) {
	// AAC-LC, 44.1 kHz, stereo, 100 byte frame
	buf := make([]byte, ADTSHeaderSize)
	require.NoError(t, WriteADTSHeader(buf, AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2}, 100))
	require.Equal(t, []byte{0xff, 0xf1, 0x50, 0x80, 0x0d, 0x7f, 0xfc}, buf)

	err := WriteADTSHeader(buf, AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2}, maxADTSFrameSize)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMakeADTSCompound(t *testing.T) {
	params := AACParams{ObjectType: 2, SampleRateIndex: 3, ChannelConfig: 1}
	out, err := MakeADTSCompound(params, [][]byte{{0xaa, 0xbb}, {0xcc}})
	require.NoError(t, err)
	require.Len(t, out, 2*ADTSHeaderSize+3)

	// first frame
	require.Equal(t, []byte{0xff, 0xf1}, out[:2])
	require.Equal(t, byte(1<<6|3<<2), out[2])
	length := int(out[3]&0x03)<<11 | int(out[4])<<3 | int(out[5])>>5
	require.Equal(t, ADTSHeaderSize+2, length)
	require.Equal(t, []byte{0xaa, 0xbb}, out[ADTSHeaderSize:ADTSHeaderSize+2])

	// second frame follows immediately
	second := out[ADTSHeaderSize+2:]
	length = int(second[3]&0x03)<<11 | int(second[4])<<3 | int(second[5])>>5
	require.Equal(t, ADTSHeaderSize+1, length)
	require.Equal(t, byte(0xcc), second[ADTSHeaderSize])

	_, err = MakeADTSCompound(AACParams{ObjectType: 0}, [][]byte{{1}})
	require.ErrorIs(t, err, ErrInvalidAACParams)
}

func TestParseAudioSpecificConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   AACParams
		err    error
	}{
		{
			name:   "AAC-LC 44.1kHz stereo",
			config: "1210",
			want:   AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2},
		},
		{
			name:   "AAC-LC 48kHz mono",
			config: "1188",
			want:   AACParams{ObjectType: 2, SampleRateIndex: 3, ChannelConfig: 1},
		},
		{
			name:   "too short",
			config: "12",
			err:    ErrShortAudioConfig,
		},
		{
			name:   "HE-AAC cannot be signalled in ADTS",
			config: "2b09",
			err:    ErrUnsupportedAudioType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAudioSpecificConfig(tt.config)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAudioSpecificConfig("zz")
	require.Error(t, err)
}
