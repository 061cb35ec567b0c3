package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pixelpath/internal/ingest"
	"pixelpath/internal/ipc"
	"pixelpath/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var outcome string
	var pathFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List processed files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outcome != "" {
				parsed, ok := ingest.ParseOutcome(outcome)
				if !ok {
					return fmt.Errorf("unknown outcome %q (want succeeded, failed, skipped, or simulated)", outcome)
				}
				outcome = string(parsed)
			}
			if pathFilter != "" {
				abs, err := filepath.Abs(pathFilter)
				if err != nil {
					return err
				}
				pathFilter = abs
			}
			req := ipc.HistoryRequest{Outcome: outcome, Path: pathFilter, Limit: limit}

			entries, err := fetchHistory(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history entries")
				return nil
			}
			fmt.Fprint(out, renderTable(historyColumns, historyRows(entries)))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only show entries with this outcome")
	cmd.Flags().StringVar(&pathFilter, "path", "", "Only show entries for this file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	return cmd
}

// fetchHistory asks the daemon and falls back to the ledger file when the
// daemon is offline.
func fetchHistory(ctx *commandContext, req ipc.HistoryRequest) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	err := ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.History(req)
		if err != nil {
			return err
		}
		entries = resp.Entries
		return nil
	})
	if err == nil || !errors.Is(err, errDaemonOffline) {
		return entries, err
	}

	cfg, cfgErr := ctx.ensureConfig()
	if cfgErr != nil {
		return nil, cfgErr
	}
	store, openErr := ledger.Open(cfg)
	if openErr != nil {
		return nil, fmt.Errorf("open ledger: %w", openErr)
	}
	defer store.Close()
	return store.List(context.Background(), ledger.Filter{Outcome: req.Outcome, Path: req.Path, Limit: req.Limit})
}

var historyColumns = []column{
	{Header: "Finished"},
	{Header: "Outcome"},
	{Header: "Media"},
	{Header: "File", MaxWidth: 48},
	{Header: "Detail", MaxWidth: 48},
	{Header: "Took", Right: true},
	{Header: "Tries", Right: true},
}

func historyRows(entries []ledger.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.Destination
		if e.ErrorMessage != "" {
			detail = strings.TrimSpace(e.ErrorKind + ": " + e.ErrorMessage)
		} else if len(e.Tags) > 0 && detail == "" {
			detail = strings.Join(e.Tags, ", ")
		}
		rows = append(rows, []string{
			relativeTime(e.FinishedAt),
			e.Outcome,
			e.MediaType,
			e.Path,
			detail,
			e.Duration().Round(10 * time.Millisecond).String(),
			strconv.Itoa(e.Attempts),
		})
	}
	return rows
}
