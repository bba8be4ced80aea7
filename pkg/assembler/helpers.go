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
	"github.com/pion/rtp/codecs"
)

// IsH264KeyFrame detects if h264 payload carries an IDR slice or a sequence parameter set
// this code was taken from https://github.com/jech/galene/blob/codecs/rtpconn/rtpreader.go#L45
// all credits belongs to Juliusz Chroboczek @jech and the awesome Galene SFU
func IsH264KeyFrame(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	nalu := payload[0] & 0x1F
	switch {
	case nalu == 0:
		// reserved
		return false

	case nalu <= 23:
		return isH264KeyNALU(nalu)

	case nalu == 24:
		// STAP-A
		i := 1
		for i+2 <= len(payload) {
			length := int(payload[i])<<8 | int(payload[i+1])
			i += 2
			if length == 0 || i+length > len(payload) {
				return false
			}
			if isH264KeyNALU(payload[i] & 0x1F) {
				return true
			}
			i += length
		}
		return false

	case nalu == 28 || nalu == 29:
		// FU-A or FU-B, only the starting fragment has the type
		if len(payload) < 2 || payload[1]&0x80 == 0 {
			return false
		}
		return isH264KeyNALU(payload[1] & 0x1F)
	}
	return false
}

func isH264KeyNALU(nalu byte) bool {
	return nalu == 5 || nalu == 7
}

// IsVP8KeyFrame checks the P bit of the VP8 frame header in the first partition.
func IsVP8KeyFrame(payload []byte) bool {
	var vp8 codecs.VP8Packet
	frame, err := vp8.Unmarshal(payload)
	if err != nil || len(frame) == 0 {
		return false
	}
	return vp8.S == 1 && vp8.PID == 0 && frame[0]&0x01 == 0
}

func IsVP9KeyFrame(payload []byte) bool {
	payloadLen := len(payload)
	if payloadLen < 1 {
		return false
	}

	idx := 0
	I := payload[idx]&0x80 > 0
	P := payload[idx]&0x40 > 0
	L := payload[idx]&0x20 > 0
	F := payload[idx]&0x10 > 0
	B := payload[idx]&0x08 > 0

	if F && !I {
		return false
	}

	// PictureID, 15 bits if M is set
	if I {
		idx++
		if payloadLen < idx+1 {
			return false
		}
		if payload[idx]&0x80 > 0 {
			idx++
			if payloadLen < idx+1 {
				return false
			}
		}
	}

	sid := -1
	if L {
		idx++
		if payloadLen < idx+1 {
			return false
		}

		tid := (payload[idx] >> 5) & 0x7
		if !P && tid != 0 {
			return false
		}

		sid = int((payload[idx] >> 1) & 0x7)
	}

	return !P && (!L || sid == 0) && B
}
