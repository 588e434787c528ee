// Package config loads the YAML description of a chip instance: pool sizes,
// feature flags, the register bus it is reached through and the log level.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/oct6100/pkg/bus"
	"github.com/emergingrobotics/oct6100/pkg/oct6100"
)

// Errors for configuration loading
var (
	ErrUnknownBus   = errors.New("unknown bus kind")
	ErrNoWindowPath = errors.New("window bus requires a path")
	ErrUnknownLevel = errors.New("unknown log level")
	ErrInvalidChip  = errors.New("invalid chip sizing")
)

// Bus kinds
const (
	BusMemory = "memory"
	BusWindow = "window"
)

// Config is the top level of a chip configuration file
type Config struct {
	Chip Chip `yaml:"chip"`
	Bus  Bus  `yaml:"bus"`
	Log  Log  `yaml:"log"`
}

// Chip sizes the chip instance. It maps onto oct6100.ChipOpenParams.
type Chip struct {
	MaxChannels                 int           `yaml:"max_channels"`
	MaxConfBridges              int           `yaml:"max_conf_bridges"`
	MaxFlexibleConfParticipants int           `yaml:"max_flexible_conf_participants"`
	MaxMixerEvents              int           `yaml:"max_mixer_events"`
	MaxCopyEvents               int           `yaml:"max_copy_events"`
	MaxTsiMemEntries            int           `yaml:"max_tsi_mem_entries"`
	DominantSpeakerEnabled      bool          `yaml:"dominant_speaker_enabled"`
	SerializeTimeout            time.Duration `yaml:"serialize_timeout"`
}

// Bus selects the register access layer. A memory bus simulates the chip in
// host memory; a window bus maps Size bytes of Path at file offset Offset and
// serves chip addresses starting at Base.
type Bus struct {
	Kind   string `yaml:"kind"`
	Path   string `yaml:"path,omitempty"`
	Offset int64  `yaml:"offset,omitempty"`
	Base   uint32 `yaml:"base,omitempty"`
	Size   int    `yaml:"size,omitempty"`
	// Trace logs every register access at debug level
	Trace bool `yaml:"trace,omitempty"`
}

// Log configures the instance logger
type Log struct {
	Level      string `yaml:"level"`
	Timestamps bool   `yaml:"timestamps,omitempty"`
}

// Default returns the configuration used when no file is given: a full size
// chip simulated in memory, logging at info level
func Default() *Config {
	p := oct6100.NewChipOpenParams()
	return &Config{
		Chip: Chip{
			MaxChannels:                 p.MaxChannels,
			MaxConfBridges:              p.MaxConfBridges,
			MaxFlexibleConfParticipants: p.MaxFlexibleConfParticipants,
			MaxMixerEvents:              p.MaxMixerEvents,
			MaxCopyEvents:               p.MaxCopyEvents,
			MaxTsiMemEntries:            p.MaxTsiMemEntries,
			DominantSpeakerEnabled:      p.DominantSpeakerEnabled,
		},
		Bus: Bus{Kind: BusMemory},
		Log: Log{Level: "info"},
	}
}

// Load reads and validates a configuration file. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration data
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the bus and log settings and the chip sizing
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case BusMemory:
	case BusWindow:
		if c.Bus.Path == "" {
			return ErrNoWindowPath
		}
		if c.Bus.Size < 0 || c.Bus.Offset < 0 {
			return fmt.Errorf("%w: negative window size or offset", ErrInvalidChip)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBus, c.Bus.Kind)
	}

	if _, err := log.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, c.Log.Level)
	}

	// sizing limits are owned by the chip package
	if err := c.ChipOpenParams(nil).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChip, err)
	}
	return nil
}

// ChipOpenParams converts the chip section into open parameters for
// oct6100.OpenChip
func (c *Config) ChipOpenParams(logger *log.Logger) *oct6100.ChipOpenParams {
	return &oct6100.ChipOpenParams{
		MaxChannels:                 c.Chip.MaxChannels,
		MaxConfBridges:              c.Chip.MaxConfBridges,
		MaxFlexibleConfParticipants: c.Chip.MaxFlexibleConfParticipants,
		MaxMixerEvents:              c.Chip.MaxMixerEvents,
		MaxCopyEvents:               c.Chip.MaxCopyEvents,
		MaxTsiMemEntries:            c.Chip.MaxTsiMemEntries,
		DominantSpeakerEnabled:      c.Chip.DominantSpeakerEnabled,
		SerializeTimeout:            c.Chip.SerializeTimeout,
		Logger:                      logger,
	}
}

// NewLogger builds the logger described by the log section
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "oct6100",
		ReportTimestamp: c.Log.Timestamps,
	})
}

// WindowSize is the number of bytes a window bus maps. An unset size covers
// every register region from channel main memory to the end of the mixer
// control memory.
func (c *Config) WindowSize() int {
	if c.Bus.Size > 0 {
		return c.Bus.Size
	}
	end := oct6100.MixerControlMemBase + uint32(c.Chip.MaxMixerEvents)*oct6100.MixerControlMemEntrySize
	return int(end - c.windowBase())
}

func (c *Config) windowBase() uint32 {
	if c.Bus.Base != 0 {
		return c.Bus.Base
	}
	return oct6100.ChannelMainMemBase
}

// OpenBus opens the configured bus. The returned closer releases it and is
// never nil.
func (c *Config) OpenBus(logger *log.Logger) (bus.Bus, io.Closer, error) {
	var (
		b      bus.Bus
		closer io.Closer = nopCloser{}
	)
	switch c.Bus.Kind {
	case BusMemory:
		b = bus.NewMemory()
	case BusWindow:
		w, err := bus.OpenWindow(c.Bus.Path, c.Bus.Offset, c.windowBase(), c.WindowSize())
		if err != nil {
			return nil, nil, err
		}
		b, closer = w, w
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBus, c.Bus.Kind)
	}
	if c.Bus.Trace && logger != nil {
		b = bus.NewLogged(b, logger)
	}
	return b, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
