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

package service

import (
	"crypto/rand"

	"github.com/jxskiss/base62"
)

const NodePrefix = "AN_"

// NodeID identifies this process in metrics and logs.
type NodeID string

func NewNodeID() NodeID {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return NodeID(NodePrefix + base62.EncodeToString(b))
}

func (n NodeID) String() string {
	return string(n)
}
