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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/framebuilder"
	"github.com/livekit/rtp-assembler/pkg/session"
)

type testStruct struct {
	configFileName string
	configBody     string

	expectedError      error
	expectedConfigBody string
}

func TestGetConfigString(t *testing.T) {
	dir := t.TempDir()
	tests := []testStruct{
		{"", "", nil, ""},
		{"", "configBody", nil, "configBody"},
		{filepath.Join(dir, "file"), "configBody", nil, "configBody"},
		{filepath.Join(dir, "file"), "", nil, "fileContent"},
	}
	for _, test := range tests {
		func() {
			writeConfigFile(test, t)
			defer os.Remove(test.configFileName)

			configBody, err := getConfigString(test.configFileName, test.configBody)
			require.Equal(t, test.expectedError, err)
			require.Equal(t, test.expectedConfigBody, configBody)
		}()
	}
}

func TestShouldReturnErrorIfConfigFileDoesNotExist(t *testing.T) {
	configBody, err := getConfigString("notExistingFile", "")
	require.Error(t, err)
	require.Empty(t, configBody)
}

func TestCodecRows(t *testing.T) {
	rows := codecRows(session.CodecMap{
		111: {MimeType: "audio/opus", ClockRate: 48000},
		96:  {MimeType: "video/H264", ClockRate: 90000},
		100: {
			MimeType:  "audio/mpeg4-generic",
			ClockRate: 44100,
			AAC: &assembler.AACStrategyParams{
				AAC:              framebuilder.AACParams{ObjectType: 2, SampleRateIndex: 4, ChannelConfig: 2},
				SizeLength:       13,
				IndexLength:      3,
				IndexDeltaLength: 3,
			},
		},
	})

	require.Len(t, rows, 3)
	require.Equal(t, []string{"96", "video/H264", "90000", "video", ""}, rows[0])
	require.Equal(t, "100", rows[1][0])
	require.Contains(t, rows[1][4], "sizeLength=13")
	require.Equal(t, "audio", rows[2][3])
}

func writeConfigFile(test testStruct, t *testing.T) {
	if test.configFileName != "" {
		d1 := []byte(test.expectedConfigBody)
		err := os.WriteFile(test.configFileName, d1, 0o644)
		require.NoError(t, err)
	}
}
