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
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/livekit/rtp-assembler/pkg/assembler"
	"github.com/livekit/rtp-assembler/pkg/session"
	"github.com/livekit/rtp-assembler/pkg/telemetry/prometheus"
)

const statsTimeout = time.Second

type SourceProvider interface {
	SSRCs() []uint32
	Stats(ctx context.Context, ssrc uint32) (assembler.SourceStats, error)
}

type SourceStatus struct {
	SSRC  uint32                `json:"ssrc"`
	Stats assembler.SourceStats `json:"stats"`
}

type StatusResponse struct {
	NodeID  string                    `json:"node_id"`
	Totals  prometheus.AssemblerStats `json:"totals"`
	Sources []SourceStatus            `json:"sources"`
}

// DebugHandler reports the state of the active sources, as JSON or as a text table.
type DebugHandler struct {
	nodeID  NodeID
	sources SourceProvider
}

func NewDebugHandler(nodeID NodeID, sources SourceProvider) *DebugHandler {
	return &DebugHandler{
		nodeID:  nodeID,
		sources: sources,
	}
}

func (h *DebugHandler) collect(ctx context.Context) []SourceStatus {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	ssrcs := h.sources.SSRCs()
	statuses := make([]SourceStatus, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		stats, err := h.sources.Stats(ctx, ssrc)
		if err != nil {
			// ended while collecting
			continue
		}
		statuses = append(statuses, SourceStatus{SSRC: ssrc, Stats: stats})
	}
	return statuses
}

func (h *DebugHandler) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &StatusResponse{
		NodeID:  h.nodeID.String(),
		Totals:  prometheus.GetAssemblerStats(),
		Sources: h.collect(r.Context()),
	})
}

func (h *DebugHandler) sourceHandler(w http.ResponseWriter, r *http.Request) {
	ssrc, err := strconv.ParseUint(r.PathValue("ssrc"), 10, 32)
	if err != nil {
		handleError(w, r, http.StatusBadRequest, ErrInvalidSSRCParam)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	stats, err := h.sources.Stats(ctx, uint32(ssrc))
	if errors.Is(err, session.ErrSourceNotFound) {
		handleError(w, r, http.StatusNotFound, ErrSourceNotFound, "ssrc", ssrc)
		return
	} else if err != nil {
		handleError(w, r, http.StatusInternalServerError, err, "ssrc", ssrc)
		return
	}
	writeJSON(w, http.StatusOK, &SourceStatus{SSRC: uint32(ssrc), Stats: stats})
}

func (h *DebugHandler) tableHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	table := tablewriter.NewWriter(w)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{
		"SSRC",
		"Expected",
		"Consumed",
		"Lost",
		"Malformed",
		"Evicted",
		"Resyncs",
		"Restarts",
		"Access Units",
		"Damaged",
	})

	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	for _, s := range h.collect(r.Context()) {
		table.Append([]string{
			fmt.Sprintf("%d", s.SSRC),
			fmt.Sprintf("%d", s.Stats.PacketsExpected),
			fmt.Sprintf("%d", s.Stats.PacketsConsumed),
			fmt.Sprintf("%d", s.Stats.PacketsLost),
			fmt.Sprintf("%d", s.Stats.PacketsMalformed),
			fmt.Sprintf("%d", s.Stats.PacketsEvicted),
			fmt.Sprintf("%d", s.Stats.Resyncs),
			fmt.Sprintf("%d", s.Stats.Restarts),
			fmt.Sprintf("%d", s.Stats.AccessUnits),
			fmt.Sprintf("%d", s.Stats.DamagedAccessUnits),
		})
	}

	table.Render()
}

func (h *DebugHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sources", h.statusHandler)
	mux.HandleFunc("GET /sources/{ssrc}", h.sourceHandler)
	mux.HandleFunc("GET /debug/sources", h.tableHandler)
}
