package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pixelpath/internal/daemonctl"
	"pixelpath/internal/ipc"
)

func newForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <path>",
		Short: "Forget a file so the next scan treats it as new",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Forget(target)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Tracker == 0 && resp.Ledger == 0 {
					fmt.Fprintf(out, "No records for %s\n", resp.Path)
					return nil
				}
				fmt.Fprintf(out, "Forgot %s (%d tracked, %d history entries)\n", resp.Path, resp.Tracker, resp.Ledger)
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Make failed files eligible for processing again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RetryFailed()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Released == 0 {
					fmt.Fprintln(out, "No failed items to retry")
					return nil
				}
				fmt.Fprintf(out, "Released %d failed item(s); a scan has been requested\n", resp.Released)
				return nil
			})
		},
	}
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the watch directory now",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				if !dryRun {
					if _, err := client.Scan(); err != nil {
						return err
					}
					fmt.Fprintln(out, "Scan requested")
					return nil
				}
				resp, err := client.Preview()
				if err != nil {
					return err
				}
				if len(resp.Candidates) == 0 {
					fmt.Fprintln(out, "Nothing to process")
					return nil
				}
				rows := make([][]string, 0, len(resp.Candidates))
				for _, c := range resp.Candidates {
					rows = append(rows, []string{c.Path, c.MediaType, relativeTime(time.Now().Add(-c.Age))})
				}
				fmt.Fprint(out, renderTable([]column{
					{Header: "File", MaxWidth: 64},
					{Header: "Media"},
					{Header: "Modified"},
				}, rows))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%d file(s) would be processed\n", len(rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what the next scan would pick up without claiming anything")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pixelpath daemon after in-flight items finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, timeout, force)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case result.ForcedKill:
				fmt.Fprintf(out, "Daemon did not stop in %s; killed pid %d\n", timeout, result.PID)
			case timeout > 0:
				fmt.Fprintln(out, "Daemon stopped")
			default:
				fmt.Fprintln(out, "Stop requested")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "How long to wait for shutdown (0 returns immediately)")
	cmd.Flags().BoolVar(&force, "force", false, "Kill the daemon if it is still running after --timeout")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pixelpath daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				SocketPath: ctx.socketOverride(),
				ConfigPath: ctx.configPath(),
				LogLevel:   logLevel,
			}, wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the daemon socket")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if it is running, then start it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, timeout, true)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			case result.ForcedKill:
				fmt.Fprintf(out, "Killed unresponsive daemon (pid %d)\n", result.PID)
			default:
				fmt.Fprintln(out, "Daemon stopped")
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			started, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				SocketPath: ctx.socketOverride(),
				ConfigPath: ctx.configPath(),
			}, 10*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon started (pid %d)\n", started.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "How long to wait for the old daemon before killing it")
	return cmd
}
