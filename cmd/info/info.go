// Package info is a subcommand of the root command. It reports the processor's
// P-state configuration.
package info

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"amdmsrtweaker/internal/common"
	"amdmsrtweaker/internal/metrics"
	"amdmsrtweaker/internal/report"
	"amdmsrtweaker/internal/table"
	"amdmsrtweaker/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "info"

var examples = []string{
	fmt.Sprintf("  Print the P-state table:            $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Save the report as a spreadsheet:   $ %s %s --format xlsx --output pstates.xlsx", common.AppName, cmdName),
	fmt.Sprintf("  Export for node_exporter:           $ %s %s --prom-textfile /var/lib/node_exporter/amdmsrtweaker.prom", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Report the processor's P-state configuration",
	Long:          "Reads the P-state, boost and northbridge registers and reports them. Nothing is written to the processor.",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagFormat       string
	flagOutput       string
	flagPromTextfile string
)

const (
	flagFormatName       = "format"
	flagOutputName       = "output"
	flagPromTextfileName = "prom-textfile"
)

func init() {
	Cmd.Flags().StringVar(&flagFormat, flagFormatName, report.FormatTxt, fmt.Sprintf("report format, one of: %s", strings.Join(report.FormatOptions, ", ")))
	Cmd.Flags().StringVar(&flagOutput, flagOutputName, "", "write the report to this file instead of stdout")
	Cmd.Flags().StringVar(&flagPromTextfile, flagPromTextfileName, "", "also write the P-state table as Prometheus metrics to this file")
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if !slices.Contains(report.FormatOptions, flagFormat) {
		err := fmt.Errorf("format options are: %s", strings.Join(report.FormatOptions, ", "))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if flagFormat == report.FormatXlsx && flagOutput == "" {
		err := fmt.Errorf("--%s is required with --%s %s", flagOutputName, flagFormatName, report.FormatXlsx)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext, err := common.GetAppContext(cmd.Parent().Context())
	if err != nil {
		return err
	}
	dev, proc, err := common.OpenProcessor(appContext.Settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	defer dev.Close()
	snapshot, err := table.TakeSnapshot(proc, common.ModelName())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), snapshot, flagFormat, flagOutput); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	if flagPromTextfile != "" {
		exporter := metrics.NewExporter()
		exporter.ObserveSnapshot(snapshot)
		if err := exporter.WriteTextfile(flagPromTextfile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
	}
	return nil
}

// writeReport renders the snapshot and writes it to output, or to w when
// output is empty.
func writeReport(w io.Writer, snapshot *table.Snapshot, format, output string) error {
	out, err := report.Create(format, table.ProcessTables(table.Tables, snapshot))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if output == "" {
		_, err = w.Write(out)
		return err
	}
	path, err := util.AbsPath(output)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0644); err != nil { // #nosec G306
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(w, "Report: %s\n", path)
	slog.Info("wrote report", slog.String("path", path), slog.String("format", format))
	return nil
}
