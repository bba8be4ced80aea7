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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpsQueue(t *testing.T) {
	oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 16})

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, oq.Enqueue(func() { order = append(order, i) }))
	}

	oq.Start()
	oq.Stop()
	require.False(t, oq.Enqueue(func() {}))

	select {
	case <-oq.Done():
	case <-time.After(time.Second):
		t.Fatal("ops queue did not drain")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestOpsQueueFull(t *testing.T) {
	oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 1})
	require.True(t, oq.Enqueue(func() {}))
	require.False(t, oq.Enqueue(func() {}))
	oq.Stop()
}
