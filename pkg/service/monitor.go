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
	"net/http"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/logger"
	"go.uber.org/atomic"

	"github.com/livekit/rtp-assembler/pkg/assembler"
)

const (
	monitorClientBuffer = 256
	monitorWriteTimeout = time.Second
)

type MonitorEventType string

const (
	MonitorEventAccessUnit      MonitorEventType = "access_unit"
	MonitorEventPacketLost      MonitorEventType = "packet_lost"
	MonitorEventMalformedPacket MonitorEventType = "malformed_packet"
	MonitorEventEndOfStream     MonitorEventType = "end_of_stream"
)

type MonitorEvent struct {
	Type MonitorEventType `json:"type"`
	SSRC uint32           `json:"ssrc"`

	MimeType  string `json:"mime,omitempty"`
	Timestamp uint32 `json:"timestamp,omitempty"`
	Size      int    `json:"size,omitempty"`
	KeyFrame  bool   `json:"key_frame,omitempty"`
	Damaged   bool   `json:"damaged,omitempty"`

	FirstSequenceNumber uint16 `json:"first_sn,omitempty"`
	LastSequenceNumber  uint16 `json:"last_sn,omitempty"`
	Count               int    `json:"count,omitempty"`
	Error               string `json:"error,omitempty"`
}

type MonitorParams struct {
	// accept connections from any origin
	AllowAllOrigins bool
	Logger          logger.Logger
}

// Monitor streams assembler output and events as JSON to websocket clients. Slow clients
// miss events instead of holding up the assemblers.
type Monitor struct {
	params   MonitorParams
	upgrader websocket.Upgrader

	lock    sync.RWMutex
	clients map[*monitorClient]struct{}
	dropped atomic.Uint64

	closed core.Fuse
}

type monitorClient struct {
	conn   *websocket.Conn
	events chan *MonitorEvent
	done   core.Fuse
}

func NewMonitor(params MonitorParams) *Monitor {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	m := &Monitor{
		params:  params,
		clients: make(map[*monitorClient]struct{}),
	}
	if params.AllowAllOrigins {
		m.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
	return m
}

func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.closed.IsBroken() {
		handleError(w, r, http.StatusServiceUnavailable, ErrMonitorClosed)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.params.Logger.Warnw("could not upgrade to websocket", err)
		return
	}

	c := &monitorClient{
		conn:   conn,
		events: make(chan *MonitorEvent, monitorClientBuffer),
	}
	m.lock.Lock()
	m.clients[c] = struct{}{}
	m.lock.Unlock()
	m.params.Logger.Debugw("monitor connected", "remote", r.RemoteAddr)

	go m.writeWorker(c)

	// only control frames are expected, reading surfaces the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	m.removeClient(c)
	m.params.Logger.Debugw("monitor disconnected", "remote", r.RemoteAddr)
}

func (m *Monitor) writeWorker(c *monitorClient) {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done.Watch():
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(monitorWriteTimeout),
			)
			return

		case ev := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				m.removeClient(c)
				return
			}
		}
	}
}

func (m *Monitor) removeClient(c *monitorClient) {
	m.lock.Lock()
	delete(m.clients, c)
	m.lock.Unlock()
	c.done.Break()
}

func (m *Monitor) NumClients() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.clients)
}

// Dropped is the number of events not delivered because a client fell behind.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Monitor) Close() {
	m.closed.Break()

	m.lock.Lock()
	clients := m.clients
	m.clients = make(map[*monitorClient]struct{})
	m.lock.Unlock()

	for c := range clients {
		c.done.Break()
	}
}

func (m *Monitor) broadcast(ev *MonitorEvent) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for c := range m.clients {
		select {
		case c.events <- ev:
		default:
			m.dropped.Inc()
		}
	}
}

func (m *Monitor) WriteAccessUnit(au *assembler.AccessUnit) {
	m.broadcast(&MonitorEvent{
		Type:                MonitorEventAccessUnit,
		SSRC:                au.SSRC,
		MimeType:            au.MimeType,
		Timestamp:           au.Timestamp,
		Size:                len(au.Payload),
		KeyFrame:            au.KeyFrame,
		Damaged:             au.Damaged,
		FirstSequenceNumber: au.FirstSequenceNumber,
		LastSequenceNumber:  au.LastSequenceNumber,
	})
}

func (m *Monitor) OnPacketLost(ssrc uint32, lost assembler.SequenceRange) {
	m.broadcast(&MonitorEvent{
		Type:                MonitorEventPacketLost,
		SSRC:                ssrc,
		FirstSequenceNumber: lost.Start,
		LastSequenceNumber:  lost.End,
		Count:               lost.Count(),
	})
}

func (m *Monitor) OnMalformedPacket(ssrc uint32, sequenceNumber uint16, err error) {
	ev := &MonitorEvent{
		Type:                MonitorEventMalformedPacket,
		SSRC:                ssrc,
		FirstSequenceNumber: sequenceNumber,
		LastSequenceNumber:  sequenceNumber,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.broadcast(ev)
}

func (m *Monitor) OnEndOfStream(ssrc uint32) {
	m.broadcast(&MonitorEvent{
		Type: MonitorEventEndOfStream,
		SSRC: ssrc,
	})
}
