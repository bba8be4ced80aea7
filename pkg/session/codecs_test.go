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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/config"
	"github.com/livekit/rtp-assembler/pkg/framebuilder"
)

const testSDP = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=stream
c=IN IP4 127.0.0.1
t=0 0
m=audio 5004 RTP/AVP 0 97 101
a=rtpmap:0 PCMU/8000
a=rtpmap:97 mpeg4-generic/44100/2
a=fmtp:97 streamtype=5;profile-level-id=15;mode=AAC-hbr;config=1210;SizeLength=13;IndexLength=3;IndexDeltaLength=3
a=rtpmap:101 telephone-event/8000
m=video 5006 RTP/AVP 96 99
a=rtpmap:96 H264/90000
a=fmtp:96 packetization-mode=1
a=rtpmap:99 rtx/90000
a=fmtp:99 apt=96
`

func TestCodecsFromSDP(t *testing.T) {
	codecs, err := CodecsFromSDP([]byte(strings.ReplaceAll(testSDP, "\n", "\r\n")), nil)
	require.NoError(t, err)

	require.Len(t, codecs, 3)
	require.Equal(t, "audio/PCMU", codecs[0].MimeType)
	require.Equal(t, "video/H264", codecs[96].MimeType)
	require.Equal(t, uint32(90000), codecs[96].ClockRate)

	aac := codecs[97]
	require.Equal(t, "audio/mpeg4-generic", aac.MimeType)
	require.NotNil(t, aac.AAC)
	require.Equal(t, framebuilder.AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2}, aac.AAC.AAC)
	require.Equal(t, 13, aac.AAC.SizeLength)

	require.Equal(t, "0:audio/PCMU, 96:video/H264, 97:audio/mpeg4-generic", codecs.String())
}

func TestCodecsFromSDP_NothingSupported(t *testing.T) {
	sdp := `v=0
o=- 0 0 IN IP4 127.0.0.1
s=stream
t=0 0
m=video 5006 RTP/AVP 99
a=rtpmap:99 rtx/90000
`
	_, err := CodecsFromSDP([]byte(strings.ReplaceAll(sdp, "\n", "\r\n")), nil)
	require.Error(t, err)

	_, err = CodecsFromSDP([]byte("not a session description"), nil)
	require.Error(t, err)
}

func TestCodecsFromConfig(t *testing.T) {
	codecs, err := CodecsFromConfig(config.DefaultConfig.Codecs)
	require.NoError(t, err)
	require.Len(t, codecs, len(config.DefaultConfig.Codecs))
	require.Equal(t, "audio/opus", codecs[111].MimeType)

	codecs, err = CodecsFromConfig([]config.CodecSpec{{
		PayloadType: 100,
		Mime:        assembler.MimeTypeAAC,
		ClockRate:   48000,
		FmtpLine:    "streamtype=5; mode=AAC-hbr; config=1190; sizelength=13; indexlength=3; indexdeltalength=3",
	}})
	require.NoError(t, err)
	require.Equal(t, uint8(3), codecs[100].AAC.AAC.SampleRateIndex)

	_, err = CodecsFromConfig([]config.CodecSpec{{PayloadType: 100, Mime: "video/H265"}})
	require.ErrorIs(t, err, assembler.ErrUnsupportedCodec)

	_, err = CodecsFromConfig([]config.CodecSpec{{PayloadType: 100, Mime: assembler.MimeTypeAAC}})
	require.ErrorIs(t, err, assembler.ErrUnsupportedCodec)
}

func TestParseFmtp(t *testing.T) {
	require.Equal(t, map[string]string{
		"packetization-mode": "1",
		"profile-level-id":   "42e01f",
	}, parseFmtp("packetization-mode=1; Profile-Level-Id=42e01f;"))
	require.Empty(t, parseFmtp(""))
}
