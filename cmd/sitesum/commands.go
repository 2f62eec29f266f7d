package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/sitesum/internal/calllog"
	"github.com/kalambet/sitesum/internal/config"
	"github.com/kalambet/sitesum/internal/ledger"
	"github.com/kalambet/sitesum/internal/workflow"
)

func outputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", formatText, "output format: text, json or yaml")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <url>",
	Short: "Summarize a web page and print the result",
	Long: `Summarize a web page in-process and print the summary.

Objects created on the prompt service are deleted before exit unless --keep
is given.

Examples:
  sitesum summarize https://example.com
  sitesum summarize https://example.com --raw --debug
  sitesum summarize https://example.com -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep")
		raw, _ := cmd.Flags().GetBool("raw")
		debug, _ := cmd.Flags().GetBool("debug")
		format, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		machine, err := newMachine(cfg, setupLogging(cfg.Log.Level))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return summarize(ctx, cmd.OutOrStdout(), machine, args[0], summarizeOptions{
			keep:   keep,
			raw:    raw,
			debug:  debug,
			format: format,
		})
	},
}

func init() {
	summarizeCmd.Flags().Bool("keep", false, "leave created objects on the prompt service")
	summarizeCmd.Flags().Bool("raw", false, "also print the raw retrieve payload")
	summarizeCmd.Flags().Bool("debug", false, "also print every call made to the prompt service")
	outputFlag(summarizeCmd)
}

type summarizeOptions struct {
	keep   bool
	raw    bool
	debug  bool
	format string
}

type summarizeResult struct {
	Run     workflow.Run            `json:"run" yaml:"run"`
	Calls   []calllog.Record        `json:"calls,omitempty" yaml:"calls,omitempty"`
	Cleanup *workflow.CleanupReport `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

func summarize(ctx context.Context, w io.Writer, m *workflow.Machine, target string, opts summarizeOptions) error {
	printStep("Summarizing %s", target)
	run, runErr := m.Submit(ctx, target)

	res := summarizeResult{Run: run}
	if !opts.keep {
		// The process is about to exit; nothing else would delete them.
		report := m.Cleanup(context.WithoutCancel(ctx))
		res.Cleanup = &report
		if len(report.Failed) > 0 {
			printWarning("%d of %d objects could not be deleted", len(report.Failed), report.Attempted)
		}
	}
	if opts.debug {
		res.Calls = m.Calls()
	}

	err := renderOutput(w, opts.format, res, func(w io.Writer) {
		if run.Summary != "" {
			fmt.Fprintln(w, run.Summary)
		}
		if opts.raw && len(run.Raw) > 0 {
			fmt.Fprintln(w)
			writeRaw(w, run.Raw)
		}
		if opts.debug {
			fmt.Fprintln(w)
			writeCalls(w, res.Calls)
		}
	})
	if err != nil {
		return err
	}
	if runErr != nil {
		return runFailure(run, runErr)
	}
	return nil
}

// runFailure prefers the message the run displays over the wrapped error.
func runFailure(run workflow.Run, err error) error {
	if errors.Is(err, workflow.ErrSuperseded) {
		return fmt.Errorf("run was interrupted")
	}
	if run.Error != "" {
		return errors.New(run.Error)
	}
	return err
}

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit a URL to the running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		format, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/workflow/submit"
		if wait {
			path += "?" + url.Values{"wait": {"true"}}.Encode()
		}
		resp, err := client.post(cmd.Context(), path, map[string]string{"url": args[0]})
		if err != nil {
			return err
		}

		var run workflow.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		return renderOutput(cmd.OutOrStdout(), format, run, func(w io.Writer) { writeRun(w, run) })
	},
}

func init() {
	submitCmd.Flags().Bool("wait", false, "wait for the run to finish")
	outputFlag(submitCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's current run",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/workflow")
		if err != nil {
			printStatus("Server", "stopped")
			return nil
		}

		var run workflow.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		printStatus("Server", "running at %s", client.baseURL)
		return renderOutput(cmd.OutOrStdout(), format, run, func(w io.Writer) { writeRun(w, run) })
	},
}

func init() {
	outputFlag(statusCmd)
}

// --- calls ---

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List the calls made to the prompt service since the last submission",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/workflow/calls")
		if err != nil {
			return err
		}

		var calls []calllog.Record
		if err := decodeJSON(resp, &calls); err != nil {
			return err
		}
		return renderOutput(cmd.OutOrStdout(), format, calls, func(w io.Writer) { writeCalls(w, calls) })
	},
}

func init() {
	outputFlag(callsCmd)
}

// --- artifacts ---

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List objects tracked for deletion",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/workflow/artifacts")
		if err != nil {
			return err
		}

		var artifacts []ledger.Artifact
		if err := decodeJSON(resp, &artifacts); err != nil {
			return err
		}
		return renderOutput(cmd.OutOrStdout(), format, artifacts, func(w io.Writer) { writeArtifacts(w, artifacts) })
	},
}

func init() {
	outputFlag(artifactsCmd)
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Abandon the server's current run",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workflow/reset", nil)
		if err != nil {
			return err
		}

		var run workflow.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		printSuccess("Workflow reset (%s)", run.Step)
		return nil
	},
}

// --- cleanup ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete every tracked object from the prompt service",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workflow/cleanup", nil)
		if err != nil {
			return err
		}

		var report workflow.CleanupReport
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			printWarning("%d of %d objects could not be deleted", len(report.Failed), report.Attempted)
		}
		return renderOutput(cmd.OutOrStdout(), format, report, func(w io.Writer) { writeReport(w, report) })
	},
}

func init() {
	outputFlag(cleanupCmd)
}

// --- tui ---

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		return renderOutput(cmd.OutOrStdout(), format, keys, func(w io.Writer) {
			for _, k := range keys {
				fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	outputFlag(configShowCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
