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
	"os"

	"github.com/google/wire"
	"github.com/livekit/protocol/logger"
	"github.com/pkg/errors"

	"github.com/livekit/rtp-assembler/pkg/config"
	"github.com/livekit/rtp-assembler/pkg/session"
	"github.com/livekit/rtp-assembler/pkg/telemetry"
)

var ServiceSet = wire.NewSet(
	NewAssemblerServer,
	LoadCodecs,
	createMonitor,
	createLoggingSink,
	createSession,
)

func LoadCodecs(conf *config.Config) (session.CodecMap, error) {
	var (
		codecs session.CodecMap
		err    error
	)
	if conf.SDPFile != "" {
		data, rerr := os.ReadFile(conf.SDPFile)
		if rerr != nil {
			return nil, errors.Wrap(rerr, "could not read sdp file")
		}
		codecs, err = session.CodecsFromSDP(data, logger.GetLogger())
	} else {
		codecs, err = session.CodecsFromConfig(conf.Codecs)
	}
	if err != nil {
		return nil, err
	}

	logger.Infow("codecs", "payloadTypes", codecs.String())
	return codecs, nil
}

func createMonitor(conf *config.Config) *Monitor {
	return NewMonitor(MonitorParams{
		AllowAllOrigins: conf.Development,
		Logger:          logger.GetLogger(),
	})
}

func createLoggingSink() *LoggingSink {
	return NewLoggingSink(logger.GetLogger())
}

func createSession(
	conf *config.Config,
	codecs session.CodecMap,
	monitor *Monitor,
	loggingSink *LoggingSink,
) (*session.Session, error) {
	notifier := telemetry.NewNotifier(telemetry.NotifierParams{
		Logger:           logger.GetLogger(),
		LossSummaryDelay: conf.Session.LossSummaryDelay,
	})

	return session.New(session.Params{
		Codecs:    codecs,
		Sink:      telemetry.NewSink(sinkSet{loggingSink, monitor}),
		Notifier:  notifierSet{notifier, loggingSink, monitor},
		Assembler: conf.Assembler,
		Session:   conf.Session,
		Logger:    logger.GetLogger(),
	})
}
