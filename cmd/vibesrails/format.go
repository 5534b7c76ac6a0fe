package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"vibesrails/internal/drift"
	"vibesrails/internal/export"
	"vibesrails/internal/metrics"
	"vibesrails/internal/monitor"
	"vibesrails/internal/session"
	"vibesrails/internal/version"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
)

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	levelStyles = map[string]lipgloss.Style{
		session.LevelSafe:     badgeBase.Foreground(lipgloss.Color("#0B3D0B")).Background(lipgloss.Color("#7FD77F")),
		session.LevelWarning:  badgeBase.Foreground(lipgloss.Color("#3D2F00")).Background(lipgloss.Color("#F2D16B")),
		session.LevelElevated: badgeBase.Foreground(lipgloss.Color("#3D1A00")).Background(lipgloss.Color("#F29E4C")),
		session.LevelCritical: badgeBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#C0392B")),
		drift.LevelNormal:     badgeBase.Foreground(lipgloss.Color("#0B3D0B")).Background(lipgloss.Color("#7FD77F")),
	}

	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// badge renders a level label. Warning and critical are shared by both
// trackers.
func badge(level string) string {
	if style, ok := levelStyles[level]; ok {
		return style.Render(strings.ToUpper(level))
	}
	return strings.ToUpper(level)
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp any) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp any) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *startResult:
		return fmt.Sprintf("Session started: %s\n  Project: %s", v.SessionID, v.ProjectPath), nil
	case *entropyResult:
		return fmt.Sprintf("Session %s\n  Entropy: %.4f %s", v.SessionID, v.EntropyScore, badge(v.EntropyLevel)), nil
	case *session.Summary:
		return formatSummaryHuman(v), nil
	case *session.Session:
		return formatSessionHuman(v), nil
	case []session.Session:
		return formatSessionListHuman(v), nil
	case *drift.SnapshotResult:
		return formatSnapshotHuman(v), nil
	case *velocityResult:
		return formatVelocityHuman(v), nil
	case []drift.Snapshot:
		return formatHistoryHuman(v), nil
	case *metricsResult:
		return formatMetricsHuman(v), nil
	case *monitor.Response:
		return formatMonitorHuman(v)
	case *dbStatusResult:
		return formatDBStatusHuman(v), nil
	case *export.Stats:
		return formatExportHuman(v), nil
	case *configInitResult:
		return "Config written to " + v.Path, nil
	case version.BuildInfo:
		return "vibesrails " + v.Version + "\ncommit: " + v.Commit + "\nbuilt:  " + v.BuildDate, nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatSummaryHuman(s *session.Summary) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Session "+s.SessionID+" ended") + "\n")
	fmt.Fprintf(&b, "  Project:    %s\n", s.ProjectPath)
	if s.AITool != nil {
		fmt.Fprintf(&b, "  AI tool:    %s\n", *s.AITool)
	}
	fmt.Fprintf(&b, "  Duration:   %.2f min\n", s.DurationMinutes)
	fmt.Fprintf(&b, "  Files:      %d\n", s.FilesModifiedCount)
	fmt.Fprintf(&b, "  Changes:    %d LOC\n", s.TotalChangesLOC)
	fmt.Fprintf(&b, "  Violations: %d\n", s.ViolationsCount)
	fmt.Fprintf(&b, "  Entropy:    %.4f %s", s.EntropyScore, badge(s.EntropyLevel))
	return b.String()
}

func formatSessionHuman(s *session.Session) string {
	var b strings.Builder
	state := "open"
	if s.Closed() {
		state = "ended " + *s.EndTime
	}
	b.WriteString(headerStyle.Render("Session "+s.ID) + " " + dimStyle.Render("("+state+")") + "\n")
	fmt.Fprintf(&b, "  Project:    %s\n", s.ProjectPath)
	fmt.Fprintf(&b, "  Started:    %s\n", s.StartTime)
	if s.AITool != nil {
		fmt.Fprintf(&b, "  AI tool:    %s\n", *s.AITool)
	}
	fmt.Fprintf(&b, "  Changes:    %d LOC\n", s.TotalChangesLOC)
	fmt.Fprintf(&b, "  Violations: %d\n", s.ViolationsCount)
	fmt.Fprintf(&b, "  Entropy:    %.4f %s\n", s.EntropyScore, badge(session.ClassifyEntropy(s.EntropyScore)))
	fmt.Fprintf(&b, "  Files (%d):", len(s.FilesModified))
	for _, f := range s.FilesModified {
		b.WriteString("\n    " + f)
	}
	return b.String()
}

func formatSessionListHuman(list []session.Session) string {
	if len(list) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s  %-30s  %7s  %s", "ID", "STARTED", "ENTROPY", "STATE")))
	for _, s := range list {
		state := "open"
		if s.Closed() {
			state = "ended"
		}
		fmt.Fprintf(&b, "\n%-36s  %-30s  %7.4f  %s", s.ID, s.StartTime, s.EntropyScore, state)
	}
	return b.String()
}

func formatMetricsBlock(b *strings.Builder, m metrics.FileMetrics, indent string) {
	fmt.Fprintf(b, "%sImports:      %d\n", indent, m.ImportCount)
	fmt.Fprintf(b, "%sDependencies: %d\n", indent, m.DependencyCount)
	fmt.Fprintf(b, "%sClasses:      %d\n", indent, m.ClassCount)
	fmt.Fprintf(b, "%sFunctions:    %d\n", indent, m.FunctionCount)
	fmt.Fprintf(b, "%sPublic API:   %d\n", indent, m.PublicAPISurface)
	fmt.Fprintf(b, "%sComplexity:   %.2f", indent, m.ComplexityAvg)
}

func formatSnapshotHuman(r *drift.SnapshotResult) string {
	if r.Error != "" {
		return "Snapshot skipped: " + r.Error
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Snapshot #%d", r.ID)) + " " + dimStyle.Render(r.Timestamp) + "\n")
	fmt.Fprintf(&b, "  Project: %s\n", r.ProjectPath)
	fmt.Fprintf(&b, "  Files:   %d\n", r.Metrics.FileCount)
	formatMetricsBlock(&b, r.Metrics.FileMetrics, "  ")
	return b.String()
}

func formatVelocityHuman(v *velocityResult) string {
	c := v.Comparison
	if c == nil {
		return "Not enough snapshots for " + v.ProjectPath + " (need at least 2)."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Drift velocity") + " " + dimStyle.Render(c.ProjectPath) + "\n")
	fmt.Fprintf(&b, "  Velocity: %.2f %s\n", c.VelocityScore, badge(c.VelocityLevel))
	fmt.Fprintf(&b, "  Trend:    %s\n", c.Trend)
	fmt.Fprintf(&b, "  Consecutive high: %d", c.ConsecutiveHigh)
	if c.ReviewRequired {
		b.WriteString("  " + badge(drift.LevelCritical) + " review required")
	}
	b.WriteString("\n")

	names := make([]string, 0, len(c.MetricsDelta))
	for name := range c.MetricsDelta {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := c.MetricsDelta[name]
		fmt.Fprintf(&b, "\n  %-20s %8.2f -> %-8.2f (%6.2f%%)", name, d.Previous, d.Current, d.ChangePct)
	}
	return b.String()
}

func formatHistoryHuman(snaps []drift.Snapshot) string {
	if len(snaps) == 0 {
		return "No snapshots found."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%6s  %-30s  %6s  %6s  %6s  %6s", "ID", "TIMESTAMP", "FILES", "FUNCS", "CLASS", "CMPLX")))
	for _, s := range snaps {
		fmt.Fprintf(&b, "\n%6d  %-30s  %6d  %6d  %6d  %6.2f",
			s.ID, s.Timestamp, s.Metrics.FileCount, s.Metrics.FunctionCount, s.Metrics.ClassCount, s.Metrics.ComplexityAvg)
	}
	return b.String()
}

func formatMetricsHuman(r *metricsResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(r.Path) + "\n")
	switch {
	case r.Project != nil:
		fmt.Fprintf(&b, "  Files:        %d\n", r.Project.FileCount)
		formatMetricsBlock(&b, r.Project.FileMetrics, "  ")
	case r.File != nil:
		formatMetricsBlock(&b, *r.File, "  ")
	default:
		b.WriteString("  skipped (unsupported, oversized or unparseable)")
	}
	return b.String()
}

func formatMonitorHuman(r *monitor.Response) (string, error) {
	if r.Error != nil {
		return fmt.Sprintf("%s: %s", r.Error.Code, r.Error.Message), nil
	}
	if r.Summary != nil {
		return formatSummaryHuman(r.Summary), nil
	}
	return fmt.Sprintf("%s %s\n  Entropy: %.4f %s", r.Action, r.SessionID, *r.EntropyScore, badge(r.EntropyLevel)), nil
}

func formatDBStatusHuman(s *dbStatusResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Database") + " " + s.Path + "\n")
	fmt.Fprintf(&b, "  Schema version: %d / %d\n", s.Current, s.Latest)
	if len(s.Pending) > 0 {
		b.WriteString("  Pending:\n")
		for _, p := range s.Pending {
			b.WriteString("    " + p + "\n")
		}
	}
	if s.Valid {
		b.WriteString("  Schema: ok")
	} else {
		b.WriteString("  Schema: " + s.Problem)
	}
	return b.String()
}

func formatExportHuman(s *export.Stats) string {
	kind := "plain"
	if s.Compressed {
		kind = "zstd"
	}
	return fmt.Sprintf("Exported %d sessions and %d snapshots for %s (%d bytes, %s)",
		s.Sessions, s.Snapshots, s.ProjectPath, s.Bytes, kind)
}
