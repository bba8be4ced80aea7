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
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/thoas/go-funk"
	"github.com/urfave/cli/v2"

	"github.com/livekit/rtp-assembler/pkg/config"
	"github.com/livekit/rtp-assembler/pkg/service"
	"github.com/livekit/rtp-assembler/pkg/session"
)

func printCodecs(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	codecs, err := service.LoadCodecs(conf)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{
		"Payload Type",
		"Mime",
		"Clock Rate",
		"Kind",
		"Parameters",
	})

	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
	})

	for _, row := range codecRows(codecs) {
		table.Append(row)
	}

	table.Render()
	return nil
}

func codecRows(codecs session.CodecMap) [][]string {
	pts := funk.Keys(codecs).([]uint8)
	sort.Slice(pts, func(i, j int) bool {
		return pts[i] < pts[j]
	})

	rows := make([][]string, 0, len(pts))
	for _, pt := range pts {
		codec := codecs[pt]
		params := ""
		if codec.AAC != nil {
			params = fmt.Sprintf(
				"objectType=%d sampleRateIndex=%d channels=%d sizeLength=%d indexLength=%d indexDeltaLength=%d",
				codec.AAC.AAC.ObjectType,
				codec.AAC.AAC.SampleRateIndex,
				codec.AAC.AAC.ChannelConfig,
				codec.AAC.SizeLength,
				codec.AAC.IndexLength,
				codec.AAC.IndexDeltaLength,
			)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", pt),
			codec.MimeType,
			fmt.Sprintf("%d", codec.ClockRate),
			codec.Type().String(),
			params,
		})
	}
	return rows
}

func printPorts(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	tcpPorts := make([]string, 0)
	udpPorts := make([]string, 0)

	udpPorts = append(udpPorts, fmt.Sprintf("%d - RTP/RTCP", conf.Port))
	if conf.PrometheusPort != 0 {
		tcpPorts = append(tcpPorts, fmt.Sprintf("%d - metrics, status and monitor", conf.PrometheusPort))
	}

	fmt.Println("TCP Ports")
	for _, p := range tcpPorts {
		fmt.Println(p)
	}

	fmt.Println("UDP Ports")
	for _, p := range udpPorts {
		fmt.Println(p)
	}
	return nil
}

func helpVerbose(c *cli.Context) error {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, false)
	if err != nil {
		return err
	}

	c.App.Flags = append(baseFlags, generatedFlags...)
	return cli.ShowAppHelp(c)
}
