package output

import (
	"bytes"
	"fmt"
	"strings"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if errs := f.formatErrors(r); errs != "" {
		w.WriteString("\n")
		w.WriteString(errs)
	}
	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Destination:"), ValueStyle.Render(r.Destination)),
	}
	if r.DryRun {
		lines = append(lines, WarningStyle.Render("Dry run: nothing was written"))
	}
	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Report) string {
	if len(r.Files) == 0 {
		return MutedStyle.Render("  No images processed") + "\n"
	}

	outcomeWidth, sizeWidth := len("passthrough"), 8
	for _, file := range r.Files {
		sizeWidth = max(sizeWidth, len(file.BeforeHuman), len(file.AfterHuman))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("STATUS", outcomeWidth)),
		TableHeaderStyle.Render(padLeft("BEFORE", sizeWidth)),
		TableHeaderStyle.Render(padLeft("AFTER", sizeWidth)),
		TableHeaderStyle.Render(padLeft("SAVED", 6)),
		TableHeaderStyle.Render("PATH")))

	for _, file := range r.Files {
		saved := ""
		if file.Outcome == "compressed" {
			saved = fmt.Sprintf("%.1f%%", file.Savings)
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s  %s\n",
			outcomeStyle(file.Outcome).Render(padRight(file.Outcome, outcomeWidth)),
			SizeStyle.Render(padLeft(file.BeforeHuman, sizeWidth)),
			SizeStyle.Render(padLeft(file.AfterHuman, sizeWidth)),
			SuccessStyle.Render(padLeft(saved, 6)),
			ValueStyle.Render(file.Path)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	t := r.Totals
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Compressed:"), SuccessStyle.Render(fmt.Sprintf("%d", t.Compressed))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Skipped:"), ValueStyle.Render(fmt.Sprintf("%d", t.Skipped))),
	}
	if t.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Failed:"), ErrorStyle.Render(fmt.Sprintf("%d", t.Failed))))
	}
	parts = append(parts,
		fmt.Sprintf("%s %s", LabelStyle.Render("Saved:"),
			SizeStyle.Render(fmt.Sprintf("%s (%.1f%%)", t.SavedHuman, t.Savings))),
		MutedStyle.Render("in "+formatDuration(t.Duration)))
	if t.CompressionCount > 0 {
		parts = append(parts, MutedStyle.Render(fmt.Sprintf("%d compressions this month", t.CompressionCount)))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatErrors(r *Report) string {
	var sb strings.Builder
	for _, file := range r.Files {
		if file.Error == "" {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString(ErrorStyle.Bold(true).Render("Errors:"))
			sb.WriteString("\n")
		}
		sb.WriteString(ErrorStyle.Render("  " + file.Error))
		sb.WriteString("\n")
	}
	return sb.String()
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
