package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openkraft/dsnscan/internal/domain"
)

var (
	accent  = lipgloss.Color("#D97706") // amber
	fg      = lipgloss.Color("#E8E6E3") // warm light gray
	dim     = lipgloss.Color("#6B7280") // muted gray
	faint   = lipgloss.Color("#3F3F46") // very dim
	success = lipgloss.Color("#22C55E") // green
	warning = lipgloss.Color("#F59E0B") // amber-yellow
	info    = lipgloss.Color("#8B949E") // soft blue-gray
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle      = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	passStyle     = lipgloss.NewStyle().Foreground(success)
	warnStyle     = lipgloss.NewStyle().Foreground(warning)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	fileStyle     = lipgloss.NewStyle().Foreground(dim)
	separatorLine = faintStyle.Render(strings.Repeat("─", 64))

	sourceColors = map[domain.DsnSource]lipgloss.Color{
		domain.SourceCode:     success,
		domain.SourceEnvFile:  lipgloss.Color("#A3E635"), // lime
		domain.SourceConfig:   lipgloss.Color("#A3E635"),
		domain.SourceEnv:      warning,
		domain.SourceInferred: info,
	}
)

// RenderDsn formats the single detected DSN for root.
func RenderDsn(root string, d *domain.DetectedDsn) string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render("dsnscan") + "  " + dimStyle.Render(root) + "\n")
	b.WriteString("  " + separatorLine + "\n\n")

	if d == nil {
		b.WriteString("  " + warnStyle.Render("No DSN found.") + "\n")
		b.WriteString("  " + dimStyle.Render("Looked in source files, .env files and SENTRY_DSN.") + "\n")
		return b.String()
	}

	renderDsn(&b, *d, true)
	return b.String()
}

// RenderDetection formats every DSN collected for root.
func RenderDetection(root string, res *domain.DetectionResult) string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render("dsnscan") + "  " + dimStyle.Render(root) + "\n")
	b.WriteString("  " + separatorLine + "\n\n")

	if res == nil || len(res.All) == 0 {
		b.WriteString("  " + warnStyle.Render("No DSN found.") + "\n")
		return b.String()
	}

	count := fmt.Sprintf("%d DSN", len(res.All))
	if len(res.All) > 1 {
		count += "s"
	}
	b.WriteString("  " + titleStyle.Render(count))
	if res.HasMultiple {
		b.WriteString("  " + warnStyle.Render("multiple projects"))
	}
	b.WriteString("\n\n")

	for i, d := range res.All {
		renderDsn(&b, d, i == 0)
	}

	if res.Fingerprint != "" {
		b.WriteString("  " + dimStyle.Render("fingerprint "+res.Fingerprint) + "\n")
	}
	return b.String()
}

func renderDsn(b *strings.Builder, d domain.DetectedDsn, primary bool) {
	marker := faintStyle.Render("○")
	if primary {
		marker = passStyle.Render("●")
	}
	src := lipgloss.NewStyle().Bold(true).Foreground(sourceColor(d.Source)).Render(padRight(string(d.Source), 9))

	fmt.Fprintf(b, "  %s %s %s\n", marker, src, d.Raw)

	var details []string
	if d.SourcePath != "" {
		details = append(details, fileStyle.Render(d.SourcePath))
	}
	if d.PackagePath != "" {
		details = append(details, dimStyle.Render("package "+d.PackagePath))
	}
	ident := "project " + d.ProjectID
	if d.OrgID != "" {
		ident = "org " + d.OrgID + " · " + ident
	}
	details = append(details, dimStyle.Render(ident))
	if d.Resolved != nil {
		details = append(details, passStyle.Render(d.Resolved.OrgSlug+"/"+d.Resolved.ProjectSlug))
	}
	fmt.Fprintf(b, "              %s\n\n", strings.Join(details, dimStyle.Render("  ")))
}

func sourceColor(s domain.DsnSource) lipgloss.Color {
	if c, ok := sourceColors[s]; ok {
		return c
	}
	return dim
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
