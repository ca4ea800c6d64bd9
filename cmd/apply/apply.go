// Package apply is a subcommand of the root command. It programs P-states,
// northbridge P-states and boost settings from command line tokens.
package apply

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	engine "amdmsrtweaker/internal/apply"
	"amdmsrtweaker/internal/changeset"
	"amdmsrtweaker/internal/common"
	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/metrics"
	"amdmsrtweaker/internal/pstate"
	"amdmsrtweaker/internal/report"
	"amdmsrtweaker/internal/table"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const cmdName = "apply"

var examples = []string{
	fmt.Sprintf("  Undervolt P0 and P1:                  $ %s %s P0=@1.3 P1=@1.2", common.AppName, cmdName),
	fmt.Sprintf("  Set P0 multiplier and voltage:        $ %s %s P0=16@1.35", common.AppName, cmdName),
	fmt.Sprintf("  Link P0-P1 to NB_P0, the rest to NB_P1: $ %s %s NB_low=2", common.AppName, cmdName),
	fmt.Sprintf("  Disable boost and switch to P1:       $ %s %s Turbo=0 P1", common.AppName, cmdName),
	fmt.Sprintf("  Show what would change:               $ %s %s P2=8@1.0 --dry-run", common.AppName, cmdName),
}

var tokenHelp = `Tokens (case-insensitive):
  Pi=multi@volts    override multiplier and/or voltage of P-state i, either part may be omitted
  NB_Pi=multi@volts override northbridge P-state i (NB voltage only on family 10h)
  NB_low=n          link P-states below n to NB_P0 and the others to NB_P1
  Turbo=0|1         disable or enable core performance boost
  APM=0|1           disable or enable application power management (family 15h)
  Pi                switch every core to P-state i after committing`

var Cmd = &cobra.Command{
	Use:           cmdName + " TOKEN...",
	Short:         "Program P-states and boost settings",
	Long:          "Parses the tokens, shows the requested changes and writes them to every core.\n\n" + tokenHelp,
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.MinimumNArgs(1),
	SilenceErrors: true,
}

const (
	flagYesName          = "yes"
	flagDryRunName       = "dry-run"
	flagReloadDelayName  = "reload-delay"
	flagPromTextfileName = "prom-textfile"
)

var flags []flagDefinition

func init() {
	flags = []flagDefinition{
		newBoolFlag(Cmd, flagYesName, false, "do not ask for confirmation"),
		newBoolFlag(Cmd, flagDryRunName, false, "show the requested changes without writing to the processor"),
		newDurationFlag(Cmd, flagReloadDelayName, 0, fmt.Sprintf("time spent in the temporary P-state when reloading the current one (default from %s)", common.EnvReloadDelay),
			"a non-negative duration, e.g., 1ms",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetDuration(flagReloadDelayName)
				return value >= 0
			}),
		newStringFlag(Cmd, flagPromTextfileName, "", "write the resulting P-state table and apply counters as Prometheus metrics to this file",
			"a file path",
			func(cmd *cobra.Command) bool {
				value, _ := cmd.Flags().GetString(flagPromTextfileName)
				return strings.TrimSpace(value) != ""
			}),
	}
}

func validateFlags(cmd *cobra.Command, args []string) error {
	for _, flag := range flags {
		if cmd.Flags().Lookup(flag.GetName()).Changed && flag.validationFunc != nil {
			if !flag.validationFunc(cmd) {
				err := fmt.Errorf("invalid flag value, --%s %s, valid values are %s", flag.GetName(), flag.GetValueAsString(), flag.validationDescription)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				slog.Error(err.Error())
				return err
			}
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext, err := common.GetAppContext(cmd.Parent().Context())
	if err != nil {
		return err
	}
	fail := func(err error) error {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	dev, proc, err := common.OpenProcessor(appContext.Settings)
	if err != nil {
		return fail(err)
	}
	defer dev.Close()
	cs, err := changeset.Parse(args, proc)
	if err != nil {
		return fail(err)
	}
	out := cmd.OutOrStdout()
	modelName := common.ModelName()
	before, err := table.TakeSnapshot(proc, modelName)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(out, "Current Configuration")
	if err := printTables(out, table.ProcessTables(table.Tables, before)); err != nil {
		return fail(err)
	}
	if err := printTables(out, []table.TableValues{table.ChangesTable(cs, proc.Variant, proc.Codec())}); err != nil {
		return fail(err)
	}
	dryRun, _ := cmd.Flags().GetBool(flagDryRunName)
	if dryRun {
		slog.Info("dry run, nothing written")
		return nil
	}
	yes, _ := cmd.Flags().GetBool(flagYesName)
	if !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fail(fmt.Errorf("confirmation required, use --%s when stdin is not a terminal", flagYesName))
		}
		ok, err := confirm(os.Stdin, out)
		if err != nil {
			return fail(err)
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			slog.Info("apply aborted by user")
			return nil
		}
	}
	opts := engine.Options{ReloadDelay: appContext.Settings.ReloadDelay, Nice: appContext.Settings.Nice}
	if delay, _ := cmd.Flags().GetDuration(flagReloadDelayName); delay > 0 {
		opts.ReloadDelay = delay
	}
	result, err := engine.New(proc, dev, opts).Apply(cs)
	if err != nil {
		return fail(fmt.Errorf("failed to apply changes after %d CPU(s): %w", result.CPUs, err))
	}
	fmt.Fprintln(out, summarize(result))
	after, err := snapshotOnFirstCPU(dev, proc, modelName)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintln(out, "\nNew Configuration")
	if err := printTables(out, table.ProcessTables(table.Tables, after)); err != nil {
		return fail(err)
	}
	if promTextfile, _ := cmd.Flags().GetString(flagPromTextfileName); promTextfile != "" {
		exporter := metrics.NewExporter()
		exporter.ObserveSnapshot(after)
		exporter.ObserveApply(result, time.Now())
		if err := exporter.WriteTextfile(promTextfile); err != nil {
			return fail(err)
		}
	}
	return nil
}

// snapshotOnFirstCPU re-reads the registers on the first online CPU, the
// engine leaves the thread pinned to the last one.
func snapshotOnFirstCPU(dev driver.Device, proc *pstate.Processor, modelName string) (*table.Snapshot, error) {
	cpus, err := dev.LogicalCPUs()
	if err != nil {
		return nil, err
	}
	if len(cpus) > 0 {
		if err := dev.PinToCPU(cpus[0]); err != nil {
			return nil, err
		}
	}
	return table.TakeSnapshot(proc, modelName)
}

func printTables(w io.Writer, allTableValues []table.TableValues) error {
	out, err := report.Create(report.FormatTxt, allTableValues)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func summarize(result engine.Result) string {
	return fmt.Sprintf("Applied to %d CPU(s): %d P-state write(s), %d NB P-state write(s), %d P-state switch(es).",
		result.CPUs, result.PStateWrites, result.NBPStateWrites, result.StateSwitches)
}

// confirm asks for a yes/no answer on out and reads it from in. Anything but
// y or yes declines.
func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Write these changes to the processor? [y/N] ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
