// Package config loads softrf settings from YAML.
//
// Files are decoded over [Default], so a file only needs the keys it
// changes. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
	"github.com/ardnew/softrf/stream/hal/rtp"
)

// Transport kinds.
const (
	KindLoopback = "loopback"
	KindRTP      = "rtp"
)

// DefaultMetricsListen is the metrics endpoint address.
const DefaultMetricsListen = ":9109"

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration.
type Config struct {
	Log       Log          `yaml:"log"`
	Metrics   Metrics      `yaml:"metrics"`
	Transport Transport    `yaml:"transport"`
	RX        StreamConfig `yaml:"rx"`
	TX        StreamConfig `yaml:"tx"`
	BurstEnd  BurstEnd     `yaml:"burst_end"`
	Saturate  bool         `yaml:"saturate"` // Clamp float to fixed conversion on transmit
}

// Log selects the log level and output format.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Transport selects and configures the transport.
type Transport struct {
	Kind string `yaml:"kind"`
	RTP  RTP    `yaml:"rtp"`
}

// RTP configures the RTP/UDP transport.
type RTP struct {
	Listen           string `yaml:"listen"`
	Interface        string `yaml:"interface"`
	Dest             string `yaml:"dest"`
	PayloadType      int    `yaml:"payload_type"`
	SSRC             uint32 `yaml:"ssrc"`
	SamplesPerPacket int    `yaml:"samples_per_packet"`
}

// StreamConfig holds one direction's stream settings. Zero tunables select
// the engine defaults.
type StreamConfig struct {
	SampleRate float64 `yaml:"sample_rate"`
	Format     string  `yaml:"format"`
	Buffers    int     `yaml:"buffers"`
	BufLen     int     `yaml:"buflen"`
	Transfers  int     `yaml:"transfers"`
}

// BurstEnd bounds burst end retries; 0 retries until success.
type BurstEnd struct {
	MaxRetries int `yaml:"max_retries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "warn",
			Format: pkg.LogFormatText.String(),
		},
		Metrics: Metrics{
			Listen: DefaultMetricsListen,
		},
		Transport: Transport{
			Kind: KindLoopback,
			RTP: RTP{
				PayloadType:      rtp.DefaultPayloadType,
				SamplesPerPacket: rtp.DefaultSamplesPerPacket,
			},
		},
		RX: StreamConfig{SampleRate: stream.DefaultSampleRate, Format: sample.NameCF32},
		TX: StreamConfig{SampleRate: stream.DefaultSampleRate, Format: sample.NameCF32},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes and validates YAML data.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML from r over the defaults and validates the result.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every out-of-range value, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		bad("log.level %q", c.Log.Level)
	}
	if _, ok := pkg.ParseLogFormat(c.Log.Format); !ok {
		bad("log.format %q", c.Log.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		bad("metrics.listen is required when metrics are enabled")
	}

	switch c.Transport.Kind {
	case KindLoopback:
	case KindRTP:
		r := c.Transport.RTP
		if r.PayloadType < 0 || r.PayloadType > 127 {
			bad("transport.rtp.payload_type %d", r.PayloadType)
		}
		if r.SamplesPerPacket < 0 || r.SamplesPerPacket > rtp.MaxSamplesPerPacket {
			bad("transport.rtp.samples_per_packet %d", r.SamplesPerPacket)
		}
		if r.Listen == "" && r.Dest == "" {
			bad("transport.rtp needs listen or dest")
		}
	default:
		bad("transport.kind %q", c.Transport.Kind)
	}

	for _, s := range []struct {
		name string
		cfg  StreamConfig
	}{{"rx", c.RX}, {"tx", c.TX}} {
		if !(s.cfg.SampleRate > 0) {
			bad("%s.sample_rate %v", s.name, s.cfg.SampleRate)
		}
		if _, err := sample.ParseFormat(s.cfg.Format); err != nil {
			bad("%s.format %q", s.name, s.cfg.Format)
		}
		if s.cfg.Buffers < 0 || s.cfg.BufLen < 0 || s.cfg.Transfers < 0 {
			bad("%s tunables must not be negative", s.name)
		}
	}

	if c.BurstEnd.MaxRetries < 0 {
		bad("burst_end.max_retries %d", c.BurstEnd.MaxRetries)
	}
	return errors.Join(errs...)
}

// CheckDirection reports whether the transport can serve dir. The RTP
// transport needs a listen address to receive and a destination to
// transmit.
func (c *Config) CheckDirection(dir hal.Direction) error {
	if c.Transport.Kind != KindRTP {
		return nil
	}
	switch {
	case dir == hal.DirectionRX && c.Transport.RTP.Listen == "":
		return fmt.Errorf("%w: transport.rtp.listen is required to receive", ErrInvalid)
	case dir == hal.DirectionTX && c.Transport.RTP.Dest == "":
		return fmt.Errorf("%w: transport.rtp.dest is required to transmit", ErrInvalid)
	}
	return nil
}

// Stream returns the settings for dir.
func (c *Config) Stream(dir hal.Direction) StreamConfig {
	if dir == hal.DirectionTX {
		return c.TX
	}
	return c.RX
}

// SlogLevel parses the configured level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// LogFormat returns the configured log format, text when unrecognized.
func (l Log) LogFormat() pkg.LogFormat {
	f, _ := pkg.ParseLogFormat(l.Format)
	return f
}

// TransportConfig converts the settings for the rtp package.
func (r RTP) TransportConfig() rtp.Config {
	return rtp.Config{
		ListenAddr:       r.Listen,
		Interface:        r.Interface,
		DestAddr:         r.Dest,
		PayloadType:      uint8(r.PayloadType),
		SSRC:             r.SSRC,
		SamplesPerPacket: r.SamplesPerPacket,
	}
}

// Args renders the tunables as stream setup arguments, omitting zeros.
func (s StreamConfig) Args() stream.Args {
	args := stream.Args{}
	for key, v := range map[string]int{
		stream.ArgBuffers:   s.Buffers,
		stream.ArgBufferLen: s.BufLen,
		stream.ArgTransfers: s.Transfers,
	} {
		if v != 0 {
			args[key] = strconv.Itoa(v)
		}
	}
	return args
}
