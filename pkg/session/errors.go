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

import "errors"

var (
	ErrUnknownPayloadType = errors.New("unknown payload type")
	ErrCodecChanged       = errors.New("payload type maps to a different codec than the source uses")
	ErrSourceEnded        = errors.New("source has ended")
	ErrSourceNotFound     = errors.New("source not found")
	ErrSessionClosed      = errors.New("session closed")
	ErrNotRTP             = errors.New("not an RTP or RTCP packet")
)
