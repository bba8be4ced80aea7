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

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
)

const (
	generatedCLIFlagUsage = "generated"

	// RTP payload types RFC 5761 reserves for RTCP when both share a port
	rtcpConflictPayloadTypeMin = 64
	rtcpConflictPayloadTypeMax = 95
)

var (
	ErrInvalidPayloadType   = errors.New("invalid payload type")
	ErrDuplicatePayloadType = errors.New("duplicate payload type")
	ErrNoCodecs             = errors.New("no codecs configured")

	durationType = reflect.TypeOf(time.Duration(0))
)

type Config struct {
	Port           uint32          `yaml:"port,omitempty"`
	BindAddresses  []string        `yaml:"bind_addresses,omitempty"`
	PrometheusPort uint32          `yaml:"prometheus_port,omitempty"`
	Assembler      AssemblerConfig `yaml:"assembler,omitempty"`
	Session        SessionConfig   `yaml:"session,omitempty"`
	// payload type mapping, ignored when an SDP file is given
	Codecs  []CodecSpec `yaml:"codecs,omitempty"`
	SDPFile string      `yaml:"sdp_file,omitempty"`
	// how often totals are logged, 0 disables
	StatsInterval time.Duration `yaml:"stats_interval,omitempty"`
	Logging       LoggingConfig `yaml:"logging,omitempty"`

	Development bool `yaml:"development,omitempty"`
}

type AssemblerConfig struct {
	// sequence gaps up to this size are waited on, larger ones are declared lost at once
	LargeGapThreshold uint16 `yaml:"large_gap_threshold,omitempty"`
	// how long a small gap is waited on
	MaxWait time.Duration `yaml:"max_wait,omitempty"`
	// packets queued per source before the oldest is evicted
	QueueCapacity int `yaml:"queue_capacity,omitempty"`
	// how far behind the consumer a packet is still taken to be late rather than a restart
	LateWindow uint16 `yaml:"late_window,omitempty"`
}

type SessionConfig struct {
	// sources without packets for this long are flushed and removed
	SourceTimeout time.Duration `yaml:"source_timeout,omitempty"`
	// how often idle sources are re-driven so expired waits resolve
	DriveInterval time.Duration `yaml:"drive_interval,omitempty"`
	// number of ended SSRCs remembered so stray packets do not revive them
	EndedSourceCacheSize int           `yaml:"ended_source_cache_size,omitempty"`
	LossSummaryDelay     time.Duration `yaml:"loss_summary_delay,omitempty"`
}

type CodecSpec struct {
	PayloadType uint8  `yaml:"payload_type,omitempty"`
	Mime        string `yaml:"mime,omitempty"`
	ClockRate   uint32 `yaml:"clock_rate,omitempty"`
	FmtpLine    string `yaml:"fmtp_line,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

var DefaultConfig = Config{
	Port: 5004,
	Assembler: AssemblerConfig{
		LargeGapThreshold: 20,
		MaxWait:           10 * time.Millisecond,
		QueueCapacity:     512,
		LateWindow:        1024,
	},
	Session: SessionConfig{
		SourceTimeout:        30 * time.Second,
		DriveInterval:        5 * time.Millisecond,
		EndedSourceCacheSize: 1024,
		LossSummaryDelay:     2 * time.Second,
	},
	Codecs: []CodecSpec{
		{PayloadType: 0, Mime: "audio/PCMU", ClockRate: 8000},
		{PayloadType: 8, Mime: "audio/PCMA", ClockRate: 8000},
		{PayloadType: 9, Mime: "audio/G722", ClockRate: 8000},
		{PayloadType: 96, Mime: "video/H264", ClockRate: 90000, FmtpLine: "packetization-mode=1"},
		{PayloadType: 97, Mime: "video/VP8", ClockRate: 90000},
		{PayloadType: 98, Mime: "video/VP9", ClockRate: 90000},
		{PayloadType: 111, Mime: "audio/opus", ClockRate: 48000},
	},
	StatsInterval: time.Minute,
	Logging: LoggingConfig{
		Config: logger.Config{
			JSON: false,
		},
	},
}

func NewConfig(confString string, strictMode bool, c *cli.Context, baseFlags []cli.Flag) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	err = yaml.Unmarshal(marshalled, &conf)
	if err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c, baseFlags); err != nil {
			return nil, err
		}
	}

	// expand env vars in filenames
	if conf.SDPFile != "" {
		file, err := homedir.Expand(os.ExpandEnv(conf.SDPFile))
		if err != nil {
			return nil, err
		}
		conf.SDPFile = file
	}

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "could not validate config")
	}

	return &conf, nil
}

func (conf *Config) Validate() error {
	if conf.Assembler.LargeGapThreshold == 0 {
		return errors.New("assembler.large_gap_threshold must be positive")
	}
	if conf.Assembler.MaxWait <= 0 {
		return errors.New("assembler.max_wait must be positive")
	}
	if conf.Assembler.QueueCapacity <= 0 {
		return errors.New("assembler.queue_capacity must be positive")
	}
	if conf.Session.DriveInterval <= 0 {
		return errors.New("session.drive_interval must be positive")
	}
	if conf.SDPFile != "" {
		return nil
	}

	if len(conf.Codecs) == 0 {
		return ErrNoCodecs
	}
	seen := make(map[uint8]bool, len(conf.Codecs))
	for _, codec := range conf.Codecs {
		pt := codec.PayloadType
		if pt > 127 || (pt >= rtcpConflictPayloadTypeMin && pt <= rtcpConflictPayloadTypeMax) {
			return errors.Wrapf(ErrInvalidPayloadType, "%d (%s)", pt, codec.Mime)
		}
		if seen[pt] {
			return errors.Wrapf(ErrDuplicatePayloadType, "%d", pt)
		}
		seen[pt] = true
	}
	return nil
}

type configNode struct {
	TypeNode  reflect.Value
	TagPrefix string
}

func (conf *Config) ToCLIFlagNames(existingFlags []cli.Flag) map[string]reflect.Value {
	existingFlagNames := map[string]bool{}
	for _, flag := range existingFlags {
		for _, flagName := range flag.Names() {
			existingFlagNames[flagName] = true
		}
	}

	flagNames := map[string]reflect.Value{}
	var currNode configNode
	nodes := []configNode{{reflect.ValueOf(conf).Elem(), ""}}
	for len(nodes) > 0 {
		currNode, nodes = nodes[0], nodes[1:]
		for i := 0; i < currNode.TypeNode.NumField(); i++ {
			// inspect yaml tag from struct field to get path
			field := currNode.TypeNode.Type().Field(i)
			yamlTagArray := strings.SplitN(field.Tag.Get("yaml"), ",", 2)
			yamlTag := yamlTagArray[0]
			isInline := false
			if len(yamlTagArray) > 1 && yamlTagArray[1] == "inline" {
				isInline = true
			}
			if (yamlTag == "" && (!isInline || currNode.TagPrefix == "")) || yamlTag == "-" {
				continue
			}
			yamlPath := yamlTag
			if currNode.TagPrefix != "" {
				if isInline {
					yamlPath = currNode.TagPrefix
				} else {
					yamlPath = fmt.Sprintf("%s.%s", currNode.TagPrefix, yamlTag)
				}
			}
			if existingFlagNames[yamlPath] {
				continue
			}

			// map flag name to value
			value := currNode.TypeNode.Field(i)
			if value.Kind() == reflect.Struct {
				nodes = append(nodes, configNode{value, yamlPath})
			} else {
				flagNames[yamlPath] = value
			}
		}
	}

	return flagNames
}

func GenerateCLIFlags(existingFlags []cli.Flag, hidden bool) ([]cli.Flag, error) {
	blankConfig := &Config{}
	flags := make([]cli.Flag, 0)
	for name, value := range blankConfig.ToCLIFlagNames(existingFlags) {
		kind := value.Kind()
		if kind == reflect.Ptr {
			kind = value.Type().Elem().Kind()
		}

		var flag cli.Flag
		envVar := fmt.Sprintf("ASSEMBLER_%s", strings.ToUpper(strings.Replace(name, ".", "_", -1)))

		switch {
		case value.Type() == durationType:
			flag = &cli.DurationFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Bool:
			flag = &cli.BoolFlag{
				Name:   name,
				Usage:  generatedCLIFlagUsage,
				Hidden: hidden,
			}
		case kind == reflect.String:
			flag = &cli.StringFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Int, kind == reflect.Int32:
			flag = &cli.IntFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Int64:
			flag = &cli.Int64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Uint8, kind == reflect.Uint16, kind == reflect.Uint32:
			flag = &cli.UintFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Uint64:
			flag = &cli.Uint64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Float32, kind == reflect.Float64:
			flag = &cli.Float64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Slice, kind == reflect.Map, kind == reflect.Struct:
			continue
		default:
			return flags, fmt.Errorf("cli flag generation unsupported for config type: %s is a %s", name, kind.String())
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

func (conf *Config) updateFromCLI(c *cli.Context, baseFlags []cli.Flag) error {
	generatedFlagNames := conf.ToCLIFlagNames(baseFlags)
	for _, flag := range c.App.Flags {
		flagName := flag.Names()[0]

		// the `c.App.Name != "test"` check is needed because `c.IsSet(...)` is always false in unit tests
		if !c.IsSet(flagName) && c.App.Name != "test" {
			continue
		}

		configValue, ok := generatedFlagNames[flagName]
		if !ok {
			continue
		}

		if configValue.Type() == durationType {
			configValue.SetInt(int64(c.Duration(flagName)))
			continue
		}

		kind := configValue.Kind()
		if kind == reflect.Ptr {
			// instantiate value to be set
			configValue.Set(reflect.New(configValue.Type().Elem()))

			kind = configValue.Type().Elem().Kind()
			configValue = configValue.Elem()
		}

		switch kind {
		case reflect.Bool:
			configValue.SetBool(c.Bool(flagName))
		case reflect.String:
			configValue.SetString(c.String(flagName))
		case reflect.Int, reflect.Int32, reflect.Int64:
			configValue.SetInt(c.Int64(flagName))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			configValue.SetUint(c.Uint64(flagName))
		case reflect.Float32, reflect.Float64:
			configValue.SetFloat(c.Float64(flagName))
		default:
			return fmt.Errorf("unsupported generated cli flag type for config: %s is a %s", flagName, kind.String())
		}
	}

	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("bind") {
		conf.BindAddresses = c.StringSlice("bind")
	}
	if c.IsSet("sdp") {
		conf.SDPFile = c.String("sdp")
	}
	return nil
}

// Note: only pass in logr.Logger with default depth
func SetLogger(l logger.Logger) {
	logger.SetLogger(l, "assembler")
}

func InitLoggerFromConfig(config *LoggingConfig) {
	logger.InitFromConfig(config.Config, "assembler")
}
