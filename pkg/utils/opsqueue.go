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

package utils

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"
)

type OpsQueueParams struct {
	Name   string
	Size   int
	Logger logger.Logger
}

// OpsQueue runs enqueued operations one at a time on a single goroutine.
// Anything only touched from inside ops has a single writer.
type OpsQueue struct {
	params OpsQueueParams

	lock      sync.RWMutex
	ops       chan func()
	isStopped bool

	done core.Fuse
}

func NewOpsQueue(params OpsQueueParams) *OpsQueue {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &OpsQueue{
		params: params,
		ops:    make(chan func(), params.Size),
	}
}

func (oq *OpsQueue) Start() {
	go oq.process()
}

// Stop stops accepting ops. Ops already enqueued still run, Done fires after the last one.
func (oq *OpsQueue) Stop() {
	oq.lock.Lock()
	if oq.isStopped {
		oq.lock.Unlock()
		return
	}

	oq.isStopped = true
	close(oq.ops)
	oq.lock.Unlock()
}

func (oq *OpsQueue) Done() <-chan struct{} {
	return oq.done.Watch()
}

// Enqueue returns false if the op was not queued, either because the queue is stopped or full.
func (oq *OpsQueue) Enqueue(op func()) bool {
	oq.lock.RLock()
	defer oq.lock.RUnlock()

	if oq.isStopped {
		return false
	}

	select {
	case oq.ops <- op:
		return true
	default:
		oq.params.Logger.Errorw("ops queue full", nil, "name", oq.params.Name, "size", oq.params.Size)
		return false
	}
}

func (oq *OpsQueue) process() {
	defer oq.done.Break()

	for op := range oq.ops {
		op()
	}
}
