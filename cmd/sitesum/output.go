package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/sitesum/internal/calllog"
	"github.com/kalambet/sitesum/internal/ledger"
	"github.com/kalambet/sitesum/internal/workflow"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// Output formats accepted by -o.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// renderOutput writes v in the requested format. text falls back to the
// supplied renderer.
func renderOutput(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "", formatText:
		text(w)
		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func writeRun(w io.Writer, run workflow.Run) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Step:"), run.Step)
	if run.URL != "" {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "URL:"), run.URL)
	}
	if run.Loading {
		fmt.Fprintln(w, colorize(colorCyan, "Summarizing..."))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Error:"), colorize(colorRed, run.Error))
	}
	if run.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", run.Summary)
	}
}

func writeRaw(w io.Writer, raw json.RawMessage) {
	fmt.Fprintln(w, colorize(colorBold, "Raw Results"))
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func writeCalls(w io.Writer, calls []calllog.Record) {
	fmt.Fprintln(w, colorize(colorBold, fmt.Sprintf("API Debug Log (%d calls)", len(calls))))
	for _, c := range calls {
		status := colorize(colorGreen, fmt.Sprintf("%d", c.Status))
		if c.Failed() {
			status = colorize(colorRed, fmt.Sprintf("%d", c.Status))
		}
		fmt.Fprintf(w, "#%d %-6s %s %s %s\n",
			c.Seq, c.Method, c.Endpoint, status,
			colorize(colorDim, fmt.Sprintf("%s %s", c.Timestamp.Local().Format(time.TimeOnly), c.Duration.Round(time.Millisecond))),
		)
		if len(c.Request) > 0 {
			fmt.Fprintf(w, "  request:  %s\n", compact(c.Request))
		}
		if len(c.Response) > 0 {
			fmt.Fprintf(w, "  response: %s\n", compact(c.Response))
		}
	}
}

func writeArtifacts(w io.Writer, artifacts []ledger.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(w, "No objects tracked.")
		return
	}
	for _, a := range artifacts {
		fmt.Fprintf(w, "%-4d %-20s %-8s %s\n", a.Seq, a.Name, a.Role, colorize(colorDim, a.RunID.String()))
	}
}

func writeReport(w io.Writer, r workflow.CleanupReport) {
	if r.Attempted == 0 {
		fmt.Fprintln(w, "Nothing to delete.")
		return
	}
	for _, name := range r.Deleted {
		fmt.Fprintf(w, "%s %s\n", colorize(colorGreen, "deleted"), name)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "%s %s: %s\n", colorize(colorRed, "failed "), f.Name, f.Error)
	}
	fmt.Fprintf(w, "%d of %d deleted\n", len(r.Deleted), r.Attempted)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
