package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

var (
	colorComplete   = color.New(color.FgGreen, color.Bold)
	colorIncomplete = color.New(color.FgYellow, color.Bold)
	colorFailed     = color.New(color.FgRed, color.Bold)
	colorExpired    = color.New(color.FgHiBlack, color.Bold)
	colorHeader     = color.New(color.FgCyan)
)

func printRefs(w io.Writer, c *color.Color, label string, refs []model.MessageRef) {
	c.Fprintf(w, "%-11s %d\n", label, len(refs))
	for _, ref := range refs {
		fmt.Fprintf(w, "  - %s\n", ref.Key())
	}
}

func printSweepResult(w io.Writer, result *model.SweepResult) {
	colorHeader.Fprintf(w, "sweep %s (started %s)\n", result.SweepID, result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	printRefs(w, colorComplete, "complete", result.Complete)
	printRefs(w, colorIncomplete, "incomplete", result.Incomplete)
	printRefs(w, colorFailed, "failed", result.Failed)
	printRefs(w, colorExpired, "expired", result.Expired)
}

func printEvaluateResult(w io.Writer, result *model.EvaluateResult) {
	colorHeader.Fprintf(w, "message %s\n", result.Ref.Key())

	switch {
	case result.NotFound:
		colorExpired.Fprintln(w, "message not found (treated as complete)")
	case result.IsComplete:
		colorComplete.Fprintln(w, "complete")
	default:
		colorIncomplete.Fprintf(w, "incomplete: %s\n", strings.Join(result.Outstanding, ", "))
		fmt.Fprintf(w, "reminders sent: %d\n", result.Reminded)
	}
}
