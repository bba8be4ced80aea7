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
	"sync"

	"github.com/gammazero/deque"
)

const (
	DefaultQueueCapacity = 512
	DefaultLateWindow    = 1024

	// consecutive packets far behind the consumer needed before they are taken as a restarted stream
	restartRunLength = 5
)

type PacketQueueParams struct {
	// number of queued packets the consumer trims the queue back to, oldest first
	Capacity int
	// packets up to this many sequence numbers behind the consumer are rejected as stale,
	// a run of consecutive packets further behind is taken to be a stream restart
	LateWindow uint16
}

type PacketQueueStats struct {
	Duplicates int
	TooOld     int
	Evicted    int
	// refused because the consumer fell behind by more than twice the capacity
	Overflows int
	Restarts  int
}

// packetRun is an ordered run of packets keyed by their distance from base.
type packetRun struct {
	base    uint16
	packets deque.Deque[*Packet]
}

func (r *packetRun) insert(pkt *Packet) error {
	// most packets arrive in order, look for the slot from the back
	key := pkt.SequenceNumber - r.base
	at := r.packets.Len()
	for at > 0 {
		prev := r.packets.At(at-1).SequenceNumber - r.base
		if prev == key {
			return ErrDuplicatePacket
		}
		if prev < key {
			break
		}
		at--
	}

	r.packets.PushBack(pkt)
	for i := r.packets.Len() - 1; i > at; i-- {
		r.packets.Set(i, r.packets.At(i-1))
	}
	r.packets.Set(at, pkt)
	return nil
}

// PacketQueue holds the packets of one source ordered by sequence number.
// Push is called from the transport side, everything else from the source's assembler. Only
// the assembler removes packets.
type PacketQueue struct {
	params PacketQueueParams

	lock   sync.Mutex
	run    packetRun
	closed bool

	initialized bool
	// run.base is the consumer position, nothing behind it is accepted
	hasFloor bool

	// packets far behind the consumer, promoted once the run is long enough and the
	// current stream has drained
	restart          *packetRun
	restartLast      uint16
	restartConfirmed bool

	stats PacketQueueStats
}

func NewPacketQueue(params PacketQueueParams) *PacketQueue {
	if params.Capacity <= 0 {
		params.Capacity = DefaultQueueCapacity
	}
	if params.LateWindow == 0 {
		params.LateWindow = DefaultLateWindow
	}
	q := &PacketQueue{
		params: params,
	}
	q.run.packets.SetMinCapacity(7)
	return q
}

func (q *PacketQueue) Push(pkt *Packet) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.lenLocked() >= 2*q.params.Capacity {
		q.stats.Overflows++
		return ErrQueueFull
	}

	sn := pkt.SequenceNumber
	if !q.initialized {
		// leave room in front for packets reordered ahead of the first one
		q.run.base = sn - q.params.LateWindow
		q.initialized = true
	}

	if q.hasFloor {
		if behind := q.run.base - sn; behind != 0 && behind < 1<<15 {
			if behind <= q.params.LateWindow {
				q.stats.TooOld++
				return ErrPacketTooOld
			}
			return q.pushRestart(pkt)
		}
	}

	if err := q.run.insert(pkt); err != nil {
		q.stats.Duplicates++
		return err
	}
	return nil
}

func (q *PacketQueue) pushRestart(pkt *Packet) error {
	sn := pkt.SequenceNumber
	if q.restartConfirmed {
		if err := q.restart.insert(pkt); err != nil {
			q.stats.Duplicates++
			return err
		}
		return nil
	}

	if q.restart == nil || sn != q.restartLast+1 {
		q.restart = &packetRun{base: sn}
	}
	q.restart.packets.PushBack(pkt)
	q.restartLast = sn
	if q.restart.packets.Len() < restartRunLength {
		// held back until more of the run shows up
		q.stats.TooOld++
		return ErrPacketTooOld
	}

	q.restartConfirmed = true
	q.stats.Restarts++
	return nil
}

// promote switches to the restarted stream once the current one has drained.
func (q *PacketQueue) promote() bool {
	if q.run.packets.Len() != 0 || !q.restartConfirmed {
		return false
	}

	q.run = *q.restart
	q.restart = nil
	q.restartConfirmed = false
	return true
}

// TakeEvicted trims the queue back to capacity, dropping the oldest packets, and returns
// the range of packets evicted.
func (q *PacketQueue) TakeEvicted() (SequenceRange, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	var (
		evicted    SequenceRange
		hasEvicted bool
	)
	for q.lenLocked() > q.params.Capacity {
		if q.run.packets.Len() == 0 {
			// a range never spans a restart, the rest is trimmed on the next call
			if hasEvicted || !q.promote() {
				break
			}
		}

		pkt := q.run.packets.PopFront()
		if hasEvicted {
			evicted.End = pkt.SequenceNumber
		} else {
			evicted = SequenceRange{Start: pkt.SequenceNumber, End: pkt.SequenceNumber}
			hasEvicted = true
		}
		q.stats.Evicted++

		q.run.base = pkt.SequenceNumber + 1
		q.hasFloor = true
	}
	return evicted, hasEvicted
}

func (q *PacketQueue) Front() *Packet {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.promote()
	if q.run.packets.Len() == 0 {
		return nil
	}
	return q.run.packets.Front()
}

func (q *PacketQueue) PopFront() *Packet {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.promote()
	if q.run.packets.Len() == 0 {
		return nil
	}

	pkt := q.run.packets.PopFront()
	q.run.base = pkt.SequenceNumber + 1
	q.hasFloor = true
	return pkt
}

// SetFloor moves the consumer position to sn. Queued packets behind it are dropped and later
// arrivals behind it are rejected.
func (q *PacketQueue) SetFloor(sn uint16) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for q.run.packets.Len() != 0 {
		if behind := sn - q.run.packets.Front().SequenceNumber; behind == 0 || behind > q.params.LateWindow {
			break
		}
		q.run.packets.PopFront()
		q.stats.TooOld++
	}

	q.run.base = sn
	q.initialized = true
	q.hasFloor = true
}

func (q *PacketQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.lenLocked()
}

func (q *PacketQueue) lenLocked() int {
	n := q.run.packets.Len()
	if q.restart != nil {
		n += q.restart.packets.Len()
	}
	return n
}

// SequenceNumbers returns the queued sequence numbers in queue order, a confirmed restart
// after the current stream.
func (q *PacketQueue) SequenceNumbers() []uint16 {
	q.lock.Lock()
	defer q.lock.Unlock()

	sns := make([]uint16, 0, q.lenLocked())
	for i := 0; i < q.run.packets.Len(); i++ {
		sns = append(sns, q.run.packets.At(i).SequenceNumber)
	}
	if q.restartConfirmed {
		for i := 0; i < q.restart.packets.Len(); i++ {
			sns = append(sns, q.restart.packets.At(i).SequenceNumber)
		}
	}
	return sns
}

// Close drops everything queued, later pushes fail.
func (q *PacketQueue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.closed = true
	q.run.packets.Clear()
	q.restart = nil
	q.restartConfirmed = false
}

func (q *PacketQueue) Stats() PacketQueueStats {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.stats
}
