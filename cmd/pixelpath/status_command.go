package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"pixelpath/internal/config"
	"pixelpath/internal/ipc"
	"pixelpath/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scanner, and worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var status *ipc.StatusResponse
			err = ctx.withClient(func(client *ipc.Client) error {
				var callErr error
				status, callErr = client.Status()
				return callErr
			})
			if err != nil && !errors.Is(err, errDaemonOffline) {
				return err
			}

			printSection(out, "Daemon", colorize)
			if status == nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				fmt.Fprintln(out)
				printChecks(out, cmd, cfg, colorize)
				return nil
			}
			renderDaemonStatus(out, status, colorize)
			fmt.Fprintln(out)
			printChecks(out, cmd, cfg, colorize)
			return nil
		},
	}
}

func renderDaemonStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	kind := statusOK
	state := "running"
	if !status.Running {
		kind, state = statusWarn, "idle"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", kind, fmt.Sprintf("%s (pid %d, since %s)", state, status.PID, relativeTime(status.StartedAt)), colorize))
	fmt.Fprintln(out, renderStatusLine("Watch directory", statusInfo, status.WatchDir, colorize))
	fmt.Fprintln(out, renderStatusLine("Watch mode", statusInfo, status.WatchMode, colorize))
	fmt.Fprintln(out, renderStatusLine("Device trigger", statusInfo, yesNo(status.DeviceTrigger), colorize))
	if status.RetrySchedule != "" {
		fmt.Fprintln(out, renderStatusLine("Retry schedule", statusInfo, status.RetrySchedule, colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Ingest", colorize)
	scan := status.LastScan
	fmt.Fprintln(out, renderStatusLine("Last scan", statusInfo,
		fmt.Sprintf("%s, %d listed, %d enqueued, %d too young (%s)",
			relativeTime(scan.StartedAt), scan.Listed, scan.Enqueued, scan.TooYoung,
			(time.Duration(scan.DurationMS) * time.Millisecond).String()), colorize))
	fmt.Fprintln(out, renderStatusLine("Scan cycles", statusInfo, formatCount(int64(status.ScanCycles)), colorize))
	fmt.Fprintln(out, renderStatusLine("Queue depth", statusInfo, formatCount(int64(status.QueueDepth)), colorize))
	fmt.Fprintln(out, renderStatusLine("Workers busy", statusInfo, fmt.Sprintf("%d of %d", status.InFlight, status.Workers), colorize))
	fmt.Fprintln(out, renderStatusLine("Processed", statusInfo,
		fmt.Sprintf("%s (%s failed)", formatCount(status.Processed), formatCount(status.Failed)), colorize))
	if item := status.LastItem; item != nil {
		detail := fmt.Sprintf("%s %s (%s)", item.Outcome, item.Path, relativeTime(item.FinishedAt))
		fmt.Fprintln(out, renderStatusLine("Last item", outcomeKind(item.Outcome), detail, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Outcomes", colorize)
	rows := outcomeRows(status.Outcomes, status.Ledger)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No items processed yet")
		return
	}
	fmt.Fprint(out, renderTable([]column{
		{Header: "Outcome"},
		{Header: "This run", Right: true},
		{Header: "All time", Right: true},
	}, rows))
	fmt.Fprintln(out)
}

func outcomeRows(run, ledger map[string]int) [][]string {
	names := map[string]struct{}{}
	for name := range run {
		names[name] = struct{}{}
	}
	for name := range ledger {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	rows := make([][]string, 0, len(sorted))
	for _, name := range sorted {
		rows = append(rows, []string{name, formatCount(int64(run[name])), formatCount(int64(ledger[name]))})
	}
	return rows
}

func printChecks(out io.Writer, cmd *cobra.Command, cfg *config.Config, colorize bool) {
	printSection(out, "Checks", colorize)
	for _, result := range preflight.RunAll(cmd.Context(), cfg) {
		kind := statusOK
		if !result.Passed {
			kind = statusWarn
			if result.Required {
				kind = statusError
			}
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
}
