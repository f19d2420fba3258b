package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/bft-labs/serialship/pkg/serialship"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func statusLabel(s serialship.Outcome) string {
	switch s.Status {
	case serialship.StatusCompleted:
		return okColor.Sprint("ok  ")
	case serialship.StatusSkipped:
		return skipColor.Sprint("skip")
	default:
		return failColor.Sprint("FAIL")
	}
}

func printOutcomes(w io.Writer, outcomes []serialship.Outcome) {
	for _, o := range outcomes {
		line := fmt.Sprintf("  %s %s", statusLabel(o), o.Path)
		if o.Status == serialship.StatusCompleted {
			line += dimColor.Sprintf(" (%s", humanBytes(o.Bytes))
			if o.Retries > 0 {
				line += dimColor.Sprintf(", %d retries", o.Retries)
			}
			line += dimColor.Sprint(")")
		}
		if o.Reason != "" {
			line += ": " + o.Reason
		}
		fmt.Fprintln(w, line)
	}
}

func totals(w io.Writer, completed, failed, skipped int, bytes uint64, elapsed time.Duration) {
	headline := okColor.Sprint("done")
	if failed > 0 {
		headline = failColor.Sprint("failed")
	}
	fmt.Fprintf(w, "%s: %d completed, %d failed, %d skipped, %s",
		headline, completed, failed, skipped, humanBytes(bytes))
	if elapsed > 0 {
		fmt.Fprintf(w, " in %s", elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
}

// printReport writes the end-of-run summary of a send.
func printReport(w io.Writer, report serialship.Report, err error) {
	if len(report.Outcomes) == 0 && report.Name == "" {
		return
	}
	fmt.Fprintf(w, "session %s (%s)\n", color.CyanString(report.Name), report.Variant)
	printOutcomes(w, report.Outcomes)

	completed, failed, skipped := report.Counts()
	if report.Aborted || (err != nil && failed == 0) {
		failed = max(failed, 1)
	}
	totals(w, completed, failed, skipped, report.Bytes(), report.FinishedAt.Sub(report.StartedAt))
	if report.Error != "" {
		fmt.Fprintf(w, "  %s\n", failColor.Sprint(report.Error))
	}
}

// printMirror writes the end-of-run summary of a dataset fetch.
func printMirror(w io.Writer, summary serialship.MirrorSummary) {
	if summary.Dataset == "" {
		return
	}
	fmt.Fprintf(w, "dataset %s -> %s\n", color.CyanString(summary.Dataset), summary.Root)
	printOutcomes(w, summary.Outcomes)

	completed, failed, skipped := summary.Counts()
	totals(w, completed, failed, skipped, summary.Bytes(), 0)
	if summary.ReportedFiles > 0 {
		fmt.Fprintf(w, "  board reported %d files, %s\n", summary.ReportedFiles, humanBytes(summary.ReportedBytes))
	}
}
