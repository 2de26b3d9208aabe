// Package report prints the per-item PASS/FAIL/WARN/SKIP lines and the
// final verdict of a check run.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Level is the outcome label printed at the start of an item line.
type Level string

const (
	Pass    Level = "PASS"
	Fail    Level = "FAIL"
	Warn    Level = "WARN"
	Skip    Level = "SKIP"
	Wait    Level = "WAIT"
	Blocked Level = "BLOCKED"
	Force   Level = "FORCE"
)

var levelColors = map[Level]color.Attribute{
	Pass:    color.FgGreen,
	Fail:    color.FgRed,
	Blocked: color.FgRed,
	Warn:    color.FgYellow,
	Force:   color.FgYellow,
	Skip:    color.FgCyan,
	Wait:    color.FgBlue,
}

// Reporter writes human-facing check output.
type Reporter struct {
	out     io.Writer
	colored bool
}

// New creates a reporter. Colors are only emitted when colored is set.
func New(out io.Writer, colored bool) *Reporter {
	return &Reporter{out: out, colored: colored}
}

// Stdout creates a reporter on os.Stdout, colored unless color is disabled
// for the terminal.
func Stdout() *Reporter {
	return New(color.Output, !color.NoColor)
}

// Discard returns a reporter that prints nothing.
func Discard() *Reporter {
	return New(io.Discard, false)
}

func (r *Reporter) label(l Level) string {
	text := string(l)
	if !r.colored {
		return text
	}
	c := color.New(levelColors[l], color.Bold)
	c.EnableColor()
	return c.Sprint(text)
}

// Section starts a new titled block.
func (r *Reporter) Section(format string, args ...any) {
	fmt.Fprintf(r.out, "\n[%s]\n", fmt.Sprintf(format, args...))
}

// Item prints one outcome line.
func (r *Reporter) Item(l Level, format string, args ...any) {
	fmt.Fprintf(r.out, "  %s  %s\n", r.label(l), fmt.Sprintf(format, args...))
}

// Info prints an unlabelled line.
func (r *Reporter) Info(format string, args ...any) {
	fmt.Fprintf(r.out, "  %s\n", fmt.Sprintf(format, args...))
}

// Detail prints an indented continuation line under an item.
func (r *Reporter) Detail(format string, args ...any) {
	fmt.Fprintf(r.out, "        %s\n", fmt.Sprintf(format, args...))
}

// List prints an item followed by up to limit detail lines and a count of
// the rest. A limit of zero prints every entry.
func (r *Reporter) List(l Level, header string, entries []string, limit int) {
	r.Item(l, "%s", header)
	for i, e := range entries {
		if limit > 0 && i >= limit {
			r.Detail("... %d more", len(entries)-limit)
			break
		}
		r.Detail("%s", e)
	}
}

// Verdict prints the aggregate line of a check. It must be the last line
// printed for that check.
func (r *Reporter) Verdict(subject string, l Level, note string) {
	if note != "" {
		fmt.Fprintf(r.out, "\n  %s: %s (%s)\n", subject, r.label(l), note)
		return
	}
	fmt.Fprintf(r.out, "\n  %s: %s\n", subject, r.label(l))
}

// Banner prints a top-level line such as "[PASS] phase_2->phase_3".
func (r *Reporter) Banner(l Level, format string, args ...any) {
	fmt.Fprintf(r.out, "[%s] %s\n", r.label(l), fmt.Sprintf(format, args...))
}

// Rule prints a separator line.
func (r *Reporter) Rule() {
	fmt.Fprintf(r.out, "\n%s\n", "==================================================")
}

// Plain writes text verbatim.
func (r *Reporter) Plain(text string) {
	fmt.Fprint(r.out, text)
}

// Errorf prints an error line to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("ERROR:"), fmt.Sprintf(format, args...))
}
