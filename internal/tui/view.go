package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/sitesum/internal/calllog"
	"github.com/kalambet/sitesum/internal/workflow"
)

const payloadPreview = 400

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" sitesum "))
	b.WriteString("  ")
	b.WriteString(m.viewSteps())
	b.WriteString("\n\n")

	switch m.run.Step {
	case workflow.StepAwaitingInput:
		b.WriteString(m.viewInput())
	case workflow.StepProcessing:
		b.WriteString(m.viewProcessing())
	case workflow.StepCompleted:
		b.WriteString(m.viewSummary())
	}

	if m.artifacts > 0 {
		b.WriteString("\n")
		if m.cleaning {
			b.WriteString(statusWarnStyle.Render(fmt.Sprintf("%s Deleting %d objects...", m.spinner.View(), m.artifacts)))
		} else {
			b.WriteString(hintStyle.Render(fmt.Sprintf("Delete Objects (%d)  press ctrl+d", m.artifacts)))
		}
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(statusOkStyle.Render(m.statusMsg))
		b.WriteString("\n")
	}

	if m.showLog {
		b.WriteString("\n")
		b.WriteString(viewCallLog(m.calls))
	}

	b.WriteString(helpStyle.Render(m.help.ShortHelpView(m.bindings())))
	return appStyle.Render(b.String())
}

func (m Model) viewSteps() string {
	names := []string{"1 URL", "2 Processing", "3 Summary"}
	current := int(m.run.Step)

	parts := make([]string, len(names))
	for i, name := range names {
		switch {
		case i == current:
			parts[i] = stepActiveStyle.Render(name)
		case i < current:
			parts[i] = stepDoneStyle.Render(name)
		default:
			parts[i] = stepPendingStyle.Render(name)
		}
	}
	return strings.Join(parts, stepPendingStyle.Render(" › "))
}

func (m Model) viewInput() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Website URL"))
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.input.View()))
	b.WriteString("\n")
	if m.run.Error != "" {
		b.WriteString(statusErrorStyle.Render("✗ " + m.run.Error))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewProcessing() string {
	return fmt.Sprintf("%s %s\n%s\n",
		m.spinner.View(),
		valueStyle.Render("Summarizing..."),
		hintStyle.Render(m.run.URL),
	)
}

func (m Model) viewSummary() string {
	var b strings.Builder

	content := labelStyle.Render("Summary") + "\n\n" + valueStyle.Render(m.run.Summary)
	panel := panelStyle
	if m.width > 8 {
		panel = panel.Width(m.width - 8)
	}
	b.WriteString(panel.Render(content))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(m.run.URL))
	b.WriteString("\n")

	if m.showRaw && len(m.run.Raw) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Raw Results"))
		b.WriteString("\n")
		b.WriteString(codeStyle.Render(indentJSON(m.run.Raw)))
		b.WriteString("\n")
	}
	return b.String()
}

func viewCallLog(calls []calllog.Record) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("API Debug Log (%d calls)", len(calls))))
	b.WriteString("\n")

	if len(calls) == 0 {
		b.WriteString(hintStyle.Render("No calls yet."))
		b.WriteString("\n")
		return b.String()
	}

	for _, c := range calls {
		status := statusOkStyle
		if c.Failed() {
			status = statusErrorStyle
		}
		line := fmt.Sprintf("#%d %-6s %s", c.Seq, c.Method, c.Endpoint)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			valueStyle.Render(line), "  ",
			status.Render(fmt.Sprintf("%d", c.Status)), "  ",
			hintStyle.Render(c.Timestamp.Local().Format("15:04:05")),
		))
		b.WriteString("\n")
		if len(c.Request) > 0 {
			b.WriteString(codeStyle.Render("  → " + truncate(compactJSON(c.Request), payloadPreview)))
			b.WriteString("\n")
		}
		if len(c.Response) > 0 {
			b.WriteString(codeStyle.Render("  ← " + truncate(compactJSON(c.Response), payloadPreview)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) bindings() []key.Binding {
	switch m.run.Step {
	case workflow.StepAwaitingInput:
		// Letters go to the input here; only the ctrl variants act.
		return []key.Binding{
			keys.Submit,
			keys.Cancel,
			withHelpKey(keys.Cleanup, "ctrl+d"),
			withHelpKey(keys.Log, "ctrl+l"),
			withHelpKey(keys.Quit, "ctrl+c"),
		}
	case workflow.StepProcessing:
		return []key.Binding{keys.Cancel, keys.Log, keys.Quit}
	default:
		return []key.Binding{keys.New, keys.Raw, keys.Cleanup, keys.Log, keys.Quit}
	}
}

func withHelpKey(b key.Binding, k string) key.Binding {
	b.SetHelp(k, b.Help().Desc)
	return b
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
