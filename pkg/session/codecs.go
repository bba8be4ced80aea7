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
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/config"
)

// CodecMap maps RTP payload types to codecs.
type CodecMap map[uint8]assembler.CodecParams

// CodecsFromConfig builds the payload type mapping from the codecs config section. Every
// entry has to name a codec that can be assembled.
func CodecsFromConfig(specs []config.CodecSpec) (CodecMap, error) {
	codecs := make(CodecMap, len(specs))
	for _, spec := range specs {
		codec, err := newCodecParams(spec.Mime, spec.ClockRate, parseFmtp(spec.FmtpLine))
		if err != nil {
			return nil, errors.Wrapf(err, "payload type %d", spec.PayloadType)
		}
		if _, err := assembler.NewStrategy(codec); err != nil {
			return nil, errors.Wrapf(err, "payload type %d", spec.PayloadType)
		}
		codecs[spec.PayloadType] = codec
	}
	return codecs, nil
}

// CodecsFromSDP builds the payload type mapping from the media sections of a session
// description. Formats that cannot be assembled (retransmission, FEC and the like) are skipped.
func CodecsFromSDP(data []byte, lgr logger.Logger) (CodecMap, error) {
	if lgr == nil {
		lgr = logger.GetLogger()
	}

	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "could not parse session description")
	}

	codecs := make(CodecMap)
	for _, md := range sd.MediaDescriptions {
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}

			c, err := sd.GetCodecForPayloadType(uint8(pt))
			if err != nil {
				lgr.Debugw("skipping format without rtpmap", "payloadType", pt, "media", md.MediaName.Media)
				continue
			}

			mime := md.MediaName.Media + "/" + c.Name
			codec, err := newCodecParams(mime, c.ClockRate, parseFmtp(c.Fmtp))
			if err == nil {
				_, err = assembler.NewStrategy(codec)
			}
			if err != nil {
				lgr.Debugw("skipping format", "payloadType", pt, "mime", mime, "reason", err.Error())
				continue
			}
			codecs[uint8(pt)] = codec
		}
	}

	if len(codecs) == 0 {
		return nil, errors.New("session description has no supported codecs")
	}
	return codecs, nil
}

func newCodecParams(mime string, clockRate uint32, fmtp map[string]string) (assembler.CodecParams, error) {
	codec := assembler.CodecParams{
		MimeType:  mime,
		ClockRate: clockRate,
	}
	if strings.EqualFold(mime, assembler.MimeTypeAAC) {
		aac, err := assembler.AACParamsFromFmtp(fmtp)
		if err != nil {
			return assembler.CodecParams{}, err
		}
		codec.AAC = aac
	}
	return codec, nil
}

// parseFmtp splits "key=value;key=value" with keys lower cased.
func parseFmtp(line string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(line, ";") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		if key == "" {
			continue
		}
		params[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return params
}

func (c CodecMap) String() string {
	pts := make([]int, 0, len(c))
	for pt := range c {
		pts = append(pts, int(pt))
	}
	sort.Ints(pts)

	var sb strings.Builder
	for _, pt := range pts {
		if sb.Len() != 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d:%s", pt, c[uint8(pt)].MimeType)
	}
	return sb.String()
}
