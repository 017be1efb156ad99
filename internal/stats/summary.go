package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-workload-monitor/internal/recorder"
	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

// SummaryConfig holds the run facts shown in the exit report.
type SummaryConfig struct {
	RunID       string
	Command     string
	OutFile     string
	Cause       string
	ExitStatus  int
	Duration    time.Duration
	Rows        int
	Span        time.Duration // first to last sample
	MetricsAddr string
}

// column widths of the per-field table
var tableWidths = []int{16, 8, 6, 10, 10, 10, 10, 10}

// FormatExitSummary renders the report printed when a run ends.
func FormatExitSummary(fields []FieldStats, cfg SummaryConfig) string {
	var sections []string

	sections = append(sections, titleStyle.Render("workload-monitor exit summary"))

	info := []string{
		renderRow("Command", cfg.Command),
		renderRow("Termination", renderCause(cfg.Cause)),
		renderRow("Exit Status", fmt.Sprintf("%d %s", cfg.ExitStatus, exitCodeLabel(cfg.ExitStatus))),
		renderRow("Duration", recorder.FormatHMS(cfg.Duration)),
		renderRow("Samples", strconv.Itoa(cfg.Rows)),
	}
	if cfg.Span > 0 {
		info = append(info, renderRow("Sampled", recorder.FormatHMS(cfg.Span)))
	}
	info = append(info, renderRow("Log", cfg.OutFile))
	if cfg.RunID != "" {
		info = append(info, renderRow("Run ID", cfg.RunID))
	}
	if cfg.MetricsAddr != "" {
		info = append(info, renderRow("Metrics", "http://"+cfg.MetricsAddr+"/metrics"))
	}
	sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, info...))

	if len(fields) > 0 {
		sections = append(sections,
			sectionHeaderStyle.Render("Per-column statistics"),
			renderTable(fields),
		)
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...)) + "\n"
}

func renderRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label),
		valueStyle.Render(value),
	)
}

func renderCause(cause string) string {
	switch cause {
	case "completed":
		return statusOK.Render(cause)
	case "timed_out":
		return statusWarning.Render(cause)
	case "interrupted":
		return statusError.Render(cause)
	default:
		return cause
	}
}

func renderTable(fields []FieldStats) string {
	header := []string{"column", "n", "n/a", "min", "mean", "p50", "p95", "max"}
	lines := []string{renderCells(tableHeaderStyle, header)}

	for _, fs := range fields {
		cells := []string{
			fs.Field.String(),
			strconv.FormatInt(fs.Count, 10),
			strconv.FormatInt(fs.Unavailable, 10),
		}
		if fs.Count == 0 {
			for range 5 {
				cells = append(cells, sampler.NotAvailable)
			}
		} else {
			for _, v := range []float64{fs.Min, fs.Mean, fs.P50, fs.P95, fs.Max} {
				cells = append(cells, strconv.FormatFloat(v, 'f', 1, 64))
			}
		}
		lines = append(lines, renderCells(tableCellStyle, cells))
	}
	return strings.Join(lines, "\n")
}

func renderCells(style lipgloss.Style, cells []string) string {
	rendered := make([]string, len(cells))
	for i, c := range cells {
		s := style.Width(tableWidths[i])
		if i > 0 {
			s = s.Align(lipgloss.Right)
		}
		rendered[i] = s.Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 127:
		return "(command not found)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}
