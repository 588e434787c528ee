package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"

	"github.com/emergingrobotics/oct6100/pkg/config"
	"github.com/emergingrobotics/oct6100/pkg/oct6100"
	"github.com/emergingrobotics/oct6100/pkg/scenario"
)

var errNoScript = errors.New("--script is required")

// report is everything run prints once the script is done
type report struct {
	Steps       []scenario.StepResult    `json:"steps"`
	MixerEvents []oct6100.MixerEventInfo `json:"mixer_events"`
	Stats       oct6100.ChipStats        `json:"stats"`
	Error       string                   `json:"error,omitempty"`
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "OCT6100 conference mixer tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: octconf <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run               Run a scenario script and dump the mixer list")
	fmt.Fprintln(w, "  defaults          Print the default request parameters")
	fmt.Fprintln(w, "  version           Print version information")
	fmt.Fprintln(w, "  help              Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run options:")
	fmt.Fprintln(w, "  -c, --config FILE  chip configuration (simulated full size chip when omitted)")
	fmt.Fprintln(w, "  -s, --script FILE  scenario script")
	fmt.Fprintln(w, "  -j, --json         print the result as JSON")
	fmt.Fprintln(w, "  -v, --verbose      log at debug level")
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "octconf version %s\n", Version)
	fmt.Fprintf(w, "  Build time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Go version: %s\n", GoVersion)
}

func runCommand(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Chip configuration file.")
	scriptPath := fs.StringP("script", "s", "", "Scenario script.")
	asJSON := fs.BoolP("json", "j", false, "Print the result as JSON.")
	verbose := fs.BoolP("verbose", "v", false, "Log at debug level.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *scriptPath == "" {
		return errNoScript
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger := cfg.NewLogger(stderr)

	script, err := scenario.Load(*scriptPath)
	if err != nil {
		return err
	}

	b, closer, err := cfg.OpenBus(logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	inst, err := oct6100.OpenChip(b, cfg.ChipOpenParams(logger))
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rep report
	steps, runErr := scenario.NewRunner(inst, logger).Run(ctx, script)
	rep.Steps = steps
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	if rep.MixerEvents, err = inst.MixerEvents(ctx); err != nil {
		return err
	}
	if rep.Stats, err = inst.ChipGetStats(ctx); err != nil {
		return err
	}

	if *asJSON {
		data, err := sonnet.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, &rep)
	}

	if runErr != nil {
		return runErr
	}
	return inst.Close(ctx, true)
}

func printReport(w io.Writer, rep *report) {
	fmt.Fprintf(w, "Steps (%d):\n", len(rep.Steps))
	for _, st := range rep.Steps {
		fmt.Fprintf(w, "  [%d] %-18s %-40s free=%d\n", st.Index, st.Op, st.Status, st.FreeMixerEvents)
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "  failed: %s\n", rep.Error)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Mixer list (%d events):\n", len(rep.MixerEvents))
	fmt.Fprintln(w, "  index  type         src   dst   next  bridge")
	for _, ev := range rep.MixerEvents {
		fmt.Fprintf(w, "  %5d  %-11s  %4d  %4d  %4d  %s\n",
			ev.Index, ev.TypeName, ev.SourceTsi, ev.DestinationTsi, ev.NextEventPtr, indexString(ev.BridgeIndex))
	}

	s := rep.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Chip %s:\n", s.InstanceID)
	pools := []struct {
		name string
		p    oct6100.PoolStats
	}{
		{"mixer events", s.MixerEvents},
		{"copy events", s.CopyEvents},
		{"conference bridges", s.ConfBridges},
		{"flexible participants", s.FlexConfParticipants},
		{"TSI entries", s.TsiMemEntries},
		{"channels", s.Channels},
	}
	for _, pool := range pools {
		fmt.Fprintf(w, "  %-22s %d/%d free\n", pool.name, pool.p.Free, pool.p.Total)
	}
	fmt.Fprintf(w, "  %-22s %d\n", "list length", s.MixerEventListLength)
}

func indexString(idx uint16) string {
	if idx == oct6100.InvalidIndex {
		return "-"
	}
	return fmt.Sprintf("%d", idx)
}

func defaultsCommand(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("defaults", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	asJSON := fs.BoolP("json", "j", false, "Print the defaults as JSON.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	defaults := []struct {
		Name   string      `json:"name"`
		Params interface{} `json:"params"`
	}{
		{"ChipOpen", oct6100.NewChipOpenParams()},
		{"ChannelOpen", oct6100.NewChannelOpenParams()},
		{"ChannelMutePorts", oct6100.NewChannelMutePortsParams()},
		{"ConfBridgeOpen", oct6100.NewConfBridgeOpenParams()},
		{"ConfBridgeChanAdd", oct6100.NewConfBridgeChanAddParams()},
		{"ConfBridgeChanRemove", oct6100.NewConfBridgeChanRemoveParams()},
		{"ConfBridgeMaskChange", oct6100.NewConfBridgeMaskChangeParams()},
		{"ConfBridgeDominantSpeakerSet", oct6100.NewConfBridgeDominantSpeakerSetParams()},
		{"CopyEventCreate", oct6100.NewCopyEventCreateParams()},
	}

	if *asJSON {
		data, err := sonnet.MarshalIndent(defaults, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	for _, d := range defaults {
		fmt.Fprintf(stdout, "%-30s %+v\n", d.Name, d.Params)
	}
	return nil
}
