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
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	ADTSHeaderSize = 7

	// 13 bit frame length, header included
	maxADTSFrameSize = 1<<13 - 1

	numSampleRates = 13
)

var (
	ErrFrameTooLarge        = errors.New("frame too large for ADTS")
	ErrInvalidAACParams     = errors.New("invalid AAC parameters")
	ErrShortAudioConfig     = errors.New("audio specific config too short")
	ErrUnsupportedAudioType = errors.New("unsupported audio object type")
)

// AACParams is what an ADTS header needs to know about the elementary stream.
type AACParams struct {
	// MPEG-4 audio object type, 2 is AAC-LC. ADTS can only signal types 1 to 4.
	ObjectType      uint8
	SampleRateIndex uint8
	ChannelConfig   uint8
}

func (p AACParams) Validate() error {
	if p.ObjectType < 1 || p.ObjectType > 4 {
		return fmt.Errorf("%w: object type %d", ErrInvalidAACParams, p.ObjectType)
	}
	if p.SampleRateIndex >= numSampleRates {
		return fmt.Errorf("%w: sample rate index %d", ErrInvalidAACParams, p.SampleRateIndex)
	}
	if p.ChannelConfig > 7 {
		return fmt.Errorf("%w: channel config %d", ErrInvalidAACParams, p.ChannelConfig)
	}
	return nil
}

// ParseAudioSpecificConfig decodes the hex `config` fmtp parameter of an mpeg4-generic
// stream (ISO 14496-3 AudioSpecificConfig). Only the fixed leading fields are read.
func ParseAudioSpecificConfig(config string) (AACParams, error) {
	b, err := hex.DecodeString(config)
	if err != nil {
		return AACParams{}, err
	}
	if len(b) < 2 {
		return AACParams{}, ErrShortAudioConfig
	}

	p := AACParams{
		ObjectType:      b[0] >> 3,
		SampleRateIndex: (b[0]&0x07)<<1 | b[1]>>7,
		ChannelConfig:   (b[1] >> 3) & 0x0f,
	}
	if p.SampleRateIndex == 0x0f {
		// explicit 24 bit frequency, no ADTS index for it
		return AACParams{}, fmt.Errorf("%w: explicit sample rate", ErrInvalidAACParams)
	}
	if p.ObjectType < 1 || p.ObjectType > 4 {
		return AACParams{}, fmt.Errorf("%w: %d", ErrUnsupportedAudioType, p.ObjectType)
	}
	return p, p.Validate()
}

// WriteADTSHeader writes a 7 byte ADTS header without CRC for a raw frame of frameSize bytes.
/*
	AAAAAAAA AAAABCCD EEFFFFGH HHIJKLMM MMMMMMMM MMMOOOOO OOOOOOPP
	A: syncword, B: MPEG version (0 = MPEG-4), C: layer, D: protection absent
	E: profile (object type - 1), F: sample rate index, G: private, H: channel config
	I..L: originality/home/copyright bits, M: frame length incl. header
	O: buffer fullness (0x7FF = VBR), P: number of raw data blocks - 1
*/
func WriteADTSHeader(buf []byte, params AACParams, frameSize int) error {
	if len(buf) < ADTSHeaderSize {
		return fmt.Errorf("%w: header buffer", ErrInvalidAACParams)
	}
	length := frameSize + ADTSHeaderSize
	if length > maxADTSFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, frameSize)
	}

	buf[0] = 0xff
	buf[1] = 0xf1
	buf[2] = (params.ObjectType-1)<<6 | params.SampleRateIndex<<2 | (params.ChannelConfig>>2)&0x01
	buf[3] = (params.ChannelConfig&0x03)<<6 | byte(length>>11)&0x03
	buf[4] = byte(length >> 3)
	buf[5] = byte(length&0x07)<<5 | 0x1f
	buf[6] = 0xfc
	return nil
}

// MakeADTSCompound prefixes every raw AAC frame with an ADTS header so each one decodes on
// its own, then concatenates them in order. frames must not be empty.
func MakeADTSCompound(params AACParams, frames [][]byte) ([]byte, error) {
	if len(frames) == 0 {
		panic("framebuilder: ADTS compound of no frames")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	size := 0
	for _, f := range frames {
		size += ADTSHeaderSize + len(f)
	}

	out := make([]byte, size)
	off := 0
	for _, f := range frames {
		if err := WriteADTSHeader(out[off:], params, len(f)); err != nil {
			return nil, err
		}
		off += ADTSHeaderSize
		off += copy(out[off:], f)
	}
	return out, nil
}
