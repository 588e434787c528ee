// Package scenario runs YAML operation scripts against a chip instance. A
// script opens a set of named channels and then applies bridge, copy event
// and silence operations step by step, optionally expecting a step to fail
// with a given status.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/oct6100/pkg/oct6100"
)

// Errors for script loading and execution
var (
	ErrUnknownOp       = errors.New("unknown operation")
	ErrUnknownName     = errors.New("unknown name")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrMissingField    = errors.New("missing field")
	ErrUnknownStatus   = errors.New("unknown status name")
	ErrUnexpectedError = errors.New("unexpected error")
	ErrExpectedFailure = errors.New("step succeeded but an error was expected")
)

// Operations
const (
	OpBridgeOpen      = "bridge_open"
	OpBridgeClose     = "bridge_close"
	OpChanAdd         = "chan_add"
	OpChanRemove      = "chan_remove"
	OpChanMute        = "chan_mute"
	OpChanUnmute      = "chan_unmute"
	OpDominantSpeaker = "dominant_speaker"
	OpMaskChange      = "mask_change"
	OpCopyCreate      = "copy_create"
	OpCopyDestroy     = "copy_destroy"
	OpSilence         = "silence"
	OpChannelClose    = "channel_close"
)

// Script is a parsed scenario file
type Script struct {
	// Verify runs the integrity check after every step
	Verify   bool      `yaml:"verify"`
	Channels []Channel `yaml:"channels"`
	Steps    []Step    `yaml:"steps"`
}

// Channel describes one channel opened before the first step
type Channel struct {
	Name    string  `yaml:"name"`
	RinLaw  string  `yaml:"rin_law,omitempty"`
	RoutLaw string  `yaml:"rout_law,omitempty"`
	SinLaw  string  `yaml:"sin_law,omitempty"`
	SoutLaw string  `yaml:"sout_law,omitempty"`
	RinTsst *uint32 `yaml:"rin_tsst,omitempty"`
	SinTsst *uint32 `yaml:"sin_tsst,omitempty"`

	Bidirectional         bool   `yaml:"bidirectional,omitempty"`
	CodecPort             string `yaml:"codec_port,omitempty"`
	ExtendedToneDetection bool   `yaml:"extended_tone_detection,omitempty"`
	Nlp                   *bool  `yaml:"nlp,omitempty"`
	ConfNoiseReduction    *bool  `yaml:"conf_noise_reduction,omitempty"`
}

// Step is one operation. Only the fields used by Op are read.
type Step struct {
	Op      string `yaml:"op"`
	Bridge  string `yaml:"bridge,omitempty"`
	Channel string `yaml:"channel,omitempty"`
	Copy    string `yaml:"copy,omitempty"`

	// bridge_open
	Flexible bool `yaml:"flexible,omitempty"`

	// chan_add
	Input     string  `yaml:"input,omitempty"`
	Mute      bool    `yaml:"mute,omitempty"`
	Tap       string  `yaml:"tap,omitempty"`
	MaskIndex *uint32 `yaml:"mask_index,omitempty"`
	Mask      uint32  `yaml:"mask,omitempty"`

	// chan_remove
	All bool `yaml:"all,omitempty"`

	// copy_create
	Source          string `yaml:"source,omitempty"`
	SourcePort      string `yaml:"source_port,omitempty"`
	Destination     string `yaml:"destination,omitempty"`
	DestinationPort string `yaml:"destination_port,omitempty"`

	// silence
	Rin bool `yaml:"rin,omitempty"`
	Sin bool `yaml:"sin,omitempty"`

	// ExpectError is the status name the step must fail with, for example
	// ConfBridgeNotOpen
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Load reads and validates a script file
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates script data
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks names, operations, port and law spellings and expected
// status names. Handle references to objects created by earlier steps are
// resolved at run time.
func (s *Script) Validate() error {
	seen := make(map[string]bool, len(s.Channels))
	for i, ch := range s.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d: %w: name", i, ErrMissingField)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %q: %w", ch.Name, ErrDuplicateName)
		}
		seen[ch.Name] = true
		for _, law := range []string{ch.RinLaw, ch.RoutLaw, ch.SinLaw, ch.SoutLaw} {
			if _, err := parseLaw(law); err != nil {
				return fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
		if _, err := parsePort(ch.CodecPort, oct6100.PortNone); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}

	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return &StepError{Index: i, Op: st.Op, Err: err}
		}
	}
	return nil
}

func (st *Step) validate() error {
	need := func(field, v string) error {
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
		return nil
	}

	var err error
	switch st.Op {
	case OpBridgeOpen, OpBridgeClose:
		err = need("bridge", st.Bridge)
	case OpChanAdd:
		if err = need("bridge", st.Bridge); err == nil {
			err = need("channel", st.Channel)
		}
		if err == nil {
			_, err = parsePort(st.Input, oct6100.PortSout)
		}
	case OpChanRemove:
		if st.All {
			err = need("bridge", st.Bridge)
		} else {
			err = need("channel", st.Channel)
		}
	case OpChanMute, OpChanUnmute, OpMaskChange, OpSilence, OpChannelClose:
		err = need("channel", st.Channel)
	case OpDominantSpeaker:
		err = need("bridge", st.Bridge)
	case OpCopyCreate:
		if err = need("copy", st.Copy); err == nil {
			err = need("source", st.Source)
		}
		if err == nil {
			err = need("destination", st.Destination)
		}
		if err == nil {
			_, err = parsePort(st.SourcePort, oct6100.PortNone)
		}
		if err == nil {
			_, err = parsePort(st.DestinationPort, oct6100.PortNone)
		}
	case OpCopyDestroy:
		err = need("copy", st.Copy)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, st.Op)
	}
	if err != nil {
		return err
	}

	if st.ExpectError != "" {
		if _, ok := oct6100.ParseStatus(st.ExpectError); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStatus, st.ExpectError)
		}
	}
	return nil
}

func parseLaw(s string) (oct6100.PcmLaw, error) {
	switch strings.ToLower(s) {
	case "", "ulaw", "mulaw", "u-law":
		return oct6100.PcmULaw, nil
	case "alaw", "a-law":
		return oct6100.PcmALaw, nil
	}
	return 0, fmt.Errorf("unknown law %q", s)
}

// parsePort accepts a port name. The empty string selects def.
func parsePort(s string, def oct6100.Port) (oct6100.Port, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "none":
		return oct6100.PortNone, nil
	case "rin":
		return oct6100.PortRin, nil
	case "rout":
		return oct6100.PortRout, nil
	case "sin":
		return oct6100.PortSin, nil
	case "sout":
		return oct6100.PortSout, nil
	}
	return 0, fmt.Errorf("unknown port %q", s)
}

// StepError reports the step a script failed at
type StepError struct {
	Index int
	Op    string
	Err   error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	return e.Err
}
