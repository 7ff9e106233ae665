package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/hbomb79/galleria/internal"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	styleValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	stylePath   = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("192"))
	styleError  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("204"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	styleLabel  = styleHeader.Width(22)

	styleBanner = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("34")).
			Padding(0, 2)
)

func printSummary(w io.Writer, outcome *internal.Outcome) {
	rep := outcome.Report
	s := rep.Summary

	fmt.Fprintln(w, styleBanner.Render(fmt.Sprintf("%s run %s", rep.Mode, rep.RunID)))
	rows := []struct {
		label string
		value int
		style lipgloss.Style
	}{
		{"Projects", s.Projects, styleValue},
		{"Ready", s.Ready, styleValue},
		{"Already processed", s.AlreadyProcessed, styleDim},
		{"Processed", s.Processed, styleValue},
		{"Created", s.Created, styleValue},
		{"Unmatched", s.Unmatched, styleWarn},
		{"Failed", s.Failed, styleError},
		{"Converted", s.Converted, styleValue},
		{"Already converted", s.AlreadyConverted, styleDim},
		{"Conversion failures", s.ConversionFailures, styleError},
		{"Size warnings", s.SizeWarnings, styleWarn},
		{"Skipped files", s.SkippedFiles, styleDim},
	}

	for _, row := range rows {
		if row.value == 0 && row.label != "Projects" {
			continue
		}
		fmt.Fprintf(w, "  %s%s\n", styleLabel.Render(row.label), row.style.Render(fmt.Sprint(row.value)))
	}

	if len(rep.UnusedTargets) > 0 {
		fmt.Fprintf(w, "  %s%s\n", styleLabel.Render("Unused targets"), styleWarn.Render(fmt.Sprint(len(rep.UnusedTargets))))
	}

	if a := outcome.Artifacts; a != nil {
		fmt.Fprintf(w, "\n%s\n", styleDim.Render("Artifacts:"))
		for _, path := range []string{a.Log, a.Mapping, a.JSON} {
			fmt.Fprintf(w, "  %s\n", stylePath.Render(path))
		}
	}
}
