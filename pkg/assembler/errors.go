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

import "errors"

var (
	ErrDuplicatePacket    = errors.New("packet already queued")
	ErrPacketTooOld       = errors.New("received packet too old")
	ErrQueueClosed        = errors.New("packet queue closed")
	ErrQueueFull          = errors.New("packet queue full")
	ErrUnsupportedCodec   = errors.New("unsupported codec")
	ErrEmptyPayload       = errors.New("empty payload")
	ErrTimestampMismatch  = errors.New("fragment timestamp does not match access unit")
	ErrShortAUHeader      = errors.New("AU header section too short")
	ErrAUSizeMismatch     = errors.New("AU sizes do not match payload")
	ErrFragmentedAUHeader = errors.New("fragment must carry exactly one AU header")
)
