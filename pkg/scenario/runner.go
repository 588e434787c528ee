package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/emergingrobotics/oct6100/pkg/oct6100"
)

// StepResult records the outcome of one step
type StepResult struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Status string `json:"status"`
	// FreeMixerEvents is the pool level after the step
	FreeMixerEvents int `json:"free_mixer_events"`
}

// Runner executes scripts against one chip instance. Names stay bound to
// their handle after the object is closed, so later steps can exercise
// stale handles.
type Runner struct {
	inst   *oct6100.Instance
	logger *log.Logger

	channels map[string]uint32
	bridges  map[string]uint32
	copies   map[string]uint32
}

// NewRunner returns a runner bound to inst
func NewRunner(inst *oct6100.Instance, logger *log.Logger) *Runner {
	if logger == nil {
		logger = inst.Logger()
	}
	return &Runner{
		inst:     inst,
		logger:   logger.WithPrefix("scenario"),
		channels: make(map[string]uint32),
		bridges:  make(map[string]uint32),
		copies:   make(map[string]uint32),
	}
}

// Channel returns the handle bound to a channel name
func (r *Runner) Channel(name string) (uint32, bool) {
	h, ok := r.channels[name]
	return h, ok
}

// Bridge returns the handle bound to a bridge name
func (r *Runner) Bridge(name string) (uint32, bool) {
	h, ok := r.bridges[name]
	return h, ok
}

// Run opens the script channels and executes every step in order. It stops
// at the first step whose outcome differs from the expectation.
func (r *Runner) Run(ctx context.Context, s *Script) ([]StepResult, error) {
	for _, ch := range s.Channels {
		if err := r.openChannel(ctx, ch); err != nil {
			return nil, fmt.Errorf("opening channel %q: %w", ch.Name, err)
		}
	}

	results := make([]StepResult, 0, len(s.Steps))
	for i, st := range s.Steps {
		err := r.step(ctx, &st)
		if IsScriptError(err) {
			return results, &StepError{Index: i, Op: st.Op, Err: err}
		}
		res := StepResult{Index: i, Op: st.Op, Status: oct6100.StatusOf(err).Name()}

		if cerr := r.check(&st, err); cerr != nil {
			results = append(results, res)
			return results, &StepError{Index: i, Op: st.Op, Err: cerr}
		}
		if s.Verify {
			if err := r.inst.CheckIntegrity(ctx); err != nil {
				results = append(results, res)
				return results, &StepError{Index: i, Op: st.Op, Err: err}
			}
		}

		free, err := r.inst.FreeMixerEventCount(ctx)
		if err != nil {
			return results, &StepError{Index: i, Op: st.Op, Err: err}
		}
		res.FreeMixerEvents = free
		results = append(results, res)
		r.logger.Debug("step done", "index", i, "op", st.Op, "status", res.Status, "free_events", free)
	}
	return results, nil
}

// check compares a step outcome with its expectation
func (r *Runner) check(st *Step, err error) error {
	if st.ExpectError == "" {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnexpectedError, err)
		}
		return nil
	}
	want, _ := oct6100.ParseStatus(st.ExpectError)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExpectedFailure, st.ExpectError)
	}
	if got := oct6100.StatusOf(err); got != want {
		return fmt.Errorf("%w: want %s, got %s: %w", ErrUnexpectedError, st.ExpectError, got.Name(), err)
	}
	return nil
}

func (r *Runner) openChannel(ctx context.Context, ch Channel) error {
	if _, dup := r.channels[ch.Name]; dup {
		return ErrDuplicateName
	}
	p := oct6100.NewChannelOpenParams()

	laws := []*oct6100.PcmLaw{&p.RinLaw, &p.RoutLaw, &p.SinLaw, &p.SoutLaw}
	for i, s := range []string{ch.RinLaw, ch.RoutLaw, ch.SinLaw, ch.SoutLaw} {
		law, err := parseLaw(s)
		if err != nil {
			return err
		}
		*laws[i] = law
	}
	if ch.RinTsst != nil {
		p.RinTsst = *ch.RinTsst
	}
	if ch.SinTsst != nil {
		p.SinTsst = *ch.SinTsst
	}
	codec, err := parsePort(ch.CodecPort, oct6100.PortNone)
	if err != nil {
		return err
	}
	p.CodecPort = codec
	p.Bidirectional = ch.Bidirectional
	p.ExtendedToneDetection = ch.ExtendedToneDetection
	// conferencing channels run NLP and noise reduction unless told otherwise
	p.EnableNlp = ch.Nlp == nil || *ch.Nlp
	p.EnableConfNoiseReduction = ch.ConfNoiseReduction == nil || *ch.ConfNoiseReduction

	h, err := r.inst.ChannelOpen(ctx, p)
	if err != nil {
		return err
	}
	r.channels[ch.Name] = h
	return nil
}

func (r *Runner) step(ctx context.Context, st *Step) error {
	switch st.Op {
	case OpBridgeOpen:
		if _, dup := r.bridges[st.Bridge]; dup {
			return fmt.Errorf("bridge %q: %w", st.Bridge, ErrDuplicateName)
		}
		p := oct6100.NewConfBridgeOpenParams()
		p.FlexibleConferencing = st.Flexible
		h, err := r.inst.ConfBridgeOpen(ctx, p)
		if err != nil {
			return err
		}
		r.bridges[st.Bridge] = h
		return nil

	case OpBridgeClose:
		b, err := lookup(r.bridges, "bridge", st.Bridge)
		if err != nil {
			return err
		}
		return r.inst.ConfBridgeClose(ctx, b)

	case OpChanAdd:
		return r.chanAdd(ctx, st)

	case OpChanRemove:
		p := oct6100.NewConfBridgeChanRemoveParams()
		if st.All {
			b, err := lookup(r.bridges, "bridge", st.Bridge)
			if err != nil {
				return err
			}
			p.ConfBridgeHandle = b
			p.RemoveAll = true
		} else {
			c, err := lookup(r.channels, "channel", st.Channel)
			if err != nil {
				return err
			}
			p.ChannelHandle = c
		}
		return r.inst.ConfBridgeChanRemove(ctx, p)

	case OpChanMute, OpChanUnmute:
		c, err := lookup(r.channels, "channel", st.Channel)
		if err != nil {
			return err
		}
		if st.Op == OpChanMute {
			return r.inst.ConfBridgeChanMute(ctx, c)
		}
		return r.inst.ConfBridgeChanUnMute(ctx, c)

	case OpDominantSpeaker:
		b, err := lookup(r.bridges, "bridge", st.Bridge)
		if err != nil {
			return err
		}
		p := oct6100.NewConfBridgeDominantSpeakerSetParams()
		p.ConfBridgeHandle = b
		if st.Channel != "" {
			if p.ChannelHandle, err = lookup(r.channels, "channel", st.Channel); err != nil {
				return err
			}
		}
		return r.inst.ConfBridgeDominantSpeakerSet(ctx, p)

	case OpMaskChange:
		c, err := lookup(r.channels, "channel", st.Channel)
		if err != nil {
			return err
		}
		p := oct6100.NewConfBridgeMaskChangeParams()
		p.ChannelHandle = c
		p.NewListenerMask = st.Mask
		return r.inst.ConfBridgeMaskChange(ctx, p)

	case OpCopyCreate:
		return r.copyCreate(ctx, st)

	case OpCopyDestroy:
		h, err := lookup(r.copies, "copy", st.Copy)
		if err != nil {
			return err
		}
		return r.inst.CopyEventDestroy(ctx, h)

	case OpSilence:
		c, err := lookup(r.channels, "channel", st.Channel)
		if err != nil {
			return err
		}
		p := oct6100.NewChannelMutePortsParams()
		p.ChannelHandle = c
		p.MuteRin = st.Rin
		p.MuteSin = st.Sin
		return r.inst.ChannelMutePorts(ctx, p)

	case OpChannelClose:
		c, err := lookup(r.channels, "channel", st.Channel)
		if err != nil {
			return err
		}
		return r.inst.ChannelClose(ctx, c)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, st.Op)
}

func (r *Runner) chanAdd(ctx context.Context, st *Step) error {
	b, err := lookup(r.bridges, "bridge", st.Bridge)
	if err != nil {
		return err
	}
	c, err := lookup(r.channels, "channel", st.Channel)
	if err != nil {
		return err
	}
	p := oct6100.NewConfBridgeChanAddParams()
	p.ConfBridgeHandle = b
	p.ChannelHandle = c
	if p.InputPort, err = parsePort(st.Input, oct6100.PortSout); err != nil {
		return err
	}
	p.Mute = st.Mute
	if st.Tap != "" {
		if p.TappedChannelHandle, err = lookup(r.channels, "channel", st.Tap); err != nil {
			return err
		}
	}
	if st.MaskIndex != nil {
		p.ListenerMaskIndex = *st.MaskIndex
		p.ListenerMask = st.Mask
	}
	return r.inst.ConfBridgeChanAdd(ctx, p)
}

func (r *Runner) copyCreate(ctx context.Context, st *Step) error {
	if _, dup := r.copies[st.Copy]; dup {
		return fmt.Errorf("copy %q: %w", st.Copy, ErrDuplicateName)
	}
	src, err := lookup(r.channels, "channel", st.Source)
	if err != nil {
		return err
	}
	dst, err := lookup(r.channels, "channel", st.Destination)
	if err != nil {
		return err
	}
	p := oct6100.NewCopyEventCreateParams()
	p.SourceChannelHandle = src
	p.DestinationChannelHandle = dst
	if p.SourcePort, err = parsePort(st.SourcePort, oct6100.PortNone); err != nil {
		return err
	}
	if p.DestinationPort, err = parsePort(st.DestinationPort, oct6100.PortNone); err != nil {
		return err
	}
	h, err := r.inst.CopyEventCreate(ctx, p)
	if err != nil {
		return err
	}
	r.copies[st.Copy] = h
	return nil
}

func lookup(names map[string]uint32, kind, name string) (uint32, error) {
	h, ok := names[name]
	if !ok {
		return 0, fmt.Errorf("%s %q: %w", kind, name, ErrUnknownName)
	}
	return h, nil
}

// IsScriptError reports whether err comes from the script itself rather
// than from the chip API
func IsScriptError(err error) bool {
	return errors.Is(err, ErrUnknownName) || errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrUnknownOp) || errors.Is(err, ErrMissingField)
}
