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

// Package framebuilder merges the payloads of RTP packets that belong to one access unit.
// The functions here keep no state and never retain their inputs.
package framebuilder

import (
	"time"
)

// Fragment is one payload of an access unit together with the timing of the packet it came in.
type Fragment struct {
	Payload   []byte
	Timestamp uint32
	Arrival   time.Time
}

// Compound is a single contiguous buffer built from one or more fragments.
type Compound struct {
	Payload   []byte
	Timestamp uint32
	Arrival   time.Time
}

// MakeCompound concatenates the payloads of fragments in order. Timing is copied from the
// first fragment. fragments must not be empty.
func MakeCompound(fragments []Fragment) Compound {
	if len(fragments) == 0 {
		panic("framebuilder: compound of no fragments")
	}

	size := 0
	for _, f := range fragments {
		size += len(f.Payload)
	}

	payload := make([]byte, 0, size)
	for _, f := range fragments {
		payload = append(payload, f.Payload...)
	}

	return Compound{
		Payload:   payload,
		Timestamp: fragments[0].Timestamp,
		Arrival:   fragments[0].Arrival,
	}
}
