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
	"fmt"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/livekit/rtp-assembler/pkg/framebuilder"
)

const (
	MimeTypeAAC = "audio/mpeg4-generic"
)

type CodecParams struct {
	MimeType  string
	ClockRate uint32
	// mpeg4-generic only
	AAC *AACStrategyParams
}

func (c CodecParams) Type() webrtc.RTPCodecType {
	if strings.HasPrefix(strings.ToLower(c.MimeType), "video/") {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// NewStrategy picks the assembly strategy for a codec.
func NewStrategy(codec CodecParams) (Strategy, error) {
	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeH264):
		return NewFrameStrategy(FrameStrategyParams{
			NewDepacketizer: func() rtp.Depacketizer { return &codecs.H264Packet{} },
			IsKeyFrame:      IsH264KeyFrame,
		}), nil

	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		return NewFrameStrategy(FrameStrategyParams{
			NewDepacketizer: func() rtp.Depacketizer { return &codecs.VP8Packet{} },
			IsKeyFrame:      IsVP8KeyFrame,
		}), nil

	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP9):
		return NewFrameStrategy(FrameStrategyParams{
			NewDepacketizer: func() rtp.Depacketizer { return &codecs.VP9Packet{} },
			IsKeyFrame:      IsVP9KeyFrame,
		}), nil

	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		return NewAudioStrategy(&codecs.OpusPacket{}), nil

	case strings.EqualFold(codec.MimeType, webrtc.MimeTypePCMU),
		strings.EqualFold(codec.MimeType, webrtc.MimeTypePCMA),
		strings.EqualFold(codec.MimeType, webrtc.MimeTypeG722):
		return NewAudioStrategy(rawDepacketizer{}), nil

	case strings.EqualFold(codec.MimeType, MimeTypeAAC):
		if codec.AAC == nil {
			return nil, fmt.Errorf("%w: %s without stream parameters", ErrUnsupportedCodec, codec.MimeType)
		}
		if err := codec.AAC.AAC.Validate(); err != nil {
			return nil, err
		}
		return NewAACStrategy(*codec.AAC), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec.MimeType)
	}
}

// AACParamsFromFmtp builds mpeg4-generic parameters from SDP fmtp attributes.
func AACParamsFromFmtp(fmtp map[string]string) (*AACStrategyParams, error) {
	config, ok := fmtp["config"]
	if !ok {
		return nil, fmt.Errorf("%w: mpeg4-generic without config", ErrUnsupportedCodec)
	}
	aac, err := framebuilder.ParseAudioSpecificConfig(config)
	if err != nil {
		return nil, err
	}

	params := &AACStrategyParams{
		AAC:              aac,
		SizeLength:       DefaultAACSizeLength,
		IndexLength:      DefaultAACIndexLength,
		IndexDeltaLength: DefaultAACIndexDeltaLength,
	}
	for key, dst := range map[string]*int{
		"sizelength":       &params.SizeLength,
		"indexlength":      &params.IndexLength,
		"indexdeltalength": &params.IndexDeltaLength,
	} {
		val, ok := fmtp[key]
		if !ok {
			continue
		}
		if _, err := fmt.Sscanf(val, "%d", dst); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, val, err)
		}
	}
	if params.SizeLength <= 0 || params.SizeLength > 16 || params.IndexLength > 16 || params.IndexDeltaLength > 16 {
		return nil, fmt.Errorf("%w: unsupported AU header layout", ErrUnsupportedCodec)
	}
	return params, nil
}
