package harness

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/manifest"
)

// ProgressReporter receives lifecycle callbacks during a run.
type ProgressReporter interface {
	RunStart(suites []*Suite)
	SuiteStart(suite *Suite, index, total int)
	SuiteEnd(result *SuiteResult, index, total int)
	CaseStart(suite string, c *TestCase, ensure manifest.Ensure)
	CaseEnd(suite string, result *CaseResult, index, total int)
	RunEnd(results []*SuiteResult, duration time.Duration)
}

// ConsoleProgress is an append-only terminal progress reporter.
// It never uses ANSI cursor rewriting, so output is safe for pipes, CI,
// and scrollback buffers.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool
	Target  string

	dotWidth int
}

// NewConsoleProgress creates a ConsoleProgress writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{
		W:       os.Stdout,
		Verbose: verbose,
	}
}

func (p *ConsoleProgress) RunStart(suites []*Suite) {
	if len(suites) == 0 {
		return
	}

	maxName := 0
	for _, s := range suites {
		if len(s.Name) > maxName {
			maxName = len(s.Name)
		}
	}
	p.dotWidth = maxName + 6

	fmt.Fprintf(p.W, "\nprovtest: %d suites", len(suites))
	if p.Target != "" {
		fmt.Fprintf(p.W, ", target: %s", p.Target)
	}
	fmt.Fprint(p.W, "\n\n")

	fmt.Fprintf(p.W, "  %-4s  %-*s  %s\n", "#", p.dotWidth-6, "SUITE", "CASES")
	for i, s := range suites {
		fmt.Fprintf(p.W, "  %-4d  %-*s  %d\n", i+1, p.dotWidth-6, s.Name, s.RunCount())
	}
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) SuiteStart(suite *Suite, index, total int) {
	if p.Verbose {
		fmt.Fprintf(p.W, "  [%d/%d]  %s\n", index+1, total, suite.Name)
	}
}

func (p *ConsoleProgress) SuiteEnd(result *SuiteResult, index, total int) {
	tag := fmt.Sprintf("[%d/%d]", index+1, total)

	if p.Verbose {
		if result.SetupError != nil {
			fmt.Fprintf(p.W, "          %s\n", cli.Dim(result.SetupError.Error()))
		}
		fmt.Fprintf(p.W, "          %s  (%s)\n\n", p.colorStatus(result.Status), formatDuration(result.Duration))
		return
	}

	padded := cli.DotPad(result.Name, p.dotWidth)
	switch result.Status {
	case StatusSkipped:
		fmt.Fprintf(p.W, "  %-7s %s %s\n", tag, padded, cli.Yellow("SKIP"))
	default:
		fmt.Fprintf(p.W, "  %-7s %s %s  (%s)\n", tag, padded, p.colorStatus(result.Status), formatDuration(result.Duration))
	}
}

func (p *ConsoleProgress) CaseStart(suite string, c *TestCase, ensure manifest.Ensure) {
	// Only CaseEnd is shown
}

func (p *ConsoleProgress) CaseEnd(suite string, result *CaseResult, index, total int) {
	if !p.Verbose {
		return
	}

	caseDot := cli.DotPad(result.Name(), p.dotWidth+10)
	tag := fmt.Sprintf("[%d/%d]", index+1, total)
	fmt.Fprintf(p.W, "          %s %s %s  (%s)\n", tag, caseDot, p.colorStatus(result.Outcome.Status), formatDuration(result.Duration))

	switch result.Outcome.Status {
	case StatusFailed, StatusError:
		fmt.Fprintf(p.W, "               %s: %s\n", result.Outcome.Stage, cli.Dim(result.Outcome.Reason))
	case StatusSkipped:
		fmt.Fprintf(p.W, "               %s\n", cli.Dim(result.Outcome.Reason))
	}
}

func (p *ConsoleProgress) RunEnd(results []*SuiteResult, duration time.Duration) {
	counts := Counts(results)

	fmt.Fprintf(p.W, "\n---\n")
	fmt.Fprintf(p.W, "provtest: %d suites", len(results))

	parts := []string{}
	if n := counts[StatusPassed]; n > 0 {
		parts = append(parts, cli.Green(fmt.Sprintf("%d passed", n)))
	}
	if n := counts[StatusFailed]; n > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[StatusError]; n > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d errored", n)))
	}
	if n := counts[StatusSkipped]; n > 0 {
		parts = append(parts, cli.Yellow(fmt.Sprintf("%d skipped", n)))
	}
	if len(parts) > 0 {
		fmt.Fprintf(p.W, ": %s", strings.Join(parts, ", "))
	}
	fmt.Fprintf(p.W, "  (%s)\n", formatDuration(duration))

	if counts[StatusFailed]+counts[StatusError] > 0 {
		fmt.Fprintf(p.W, "\n  FAILED:\n")
		for i, r := range results {
			if r.Status != StatusFailed && r.Status != StatusError {
				continue
			}
			fmt.Fprintf(p.W, "    [%d]  %s\n", i+1, r.Name)
			if r.SetupError != nil {
				fmt.Fprintf(p.W, "         setup: %s\n", r.SetupError)
			}
			for j := range r.Cases {
				c := &r.Cases[j]
				if c.Outcome.Status == StatusFailed || c.Outcome.Status == StatusError {
					fmt.Fprintf(p.W, "         case %q (%s): %s\n", c.Name(), c.Outcome.Stage, c.Outcome.Reason)
				}
			}
		}
	}

	// Skip summary; skips never fail the run
	if skips := SkipSummary(results); len(skips) > 0 {
		fmt.Fprintf(p.W, "\n  SKIPPED:\n")
		for _, s := range skips {
			name := s.Suite
			if s.Case != "" {
				name += "/" + s.Case
			}
			fmt.Fprintf(p.W, "    %s %s\n", cli.DotPad(name, p.dotWidth+10), s.Reason)
		}
	}

	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) colorStatus(s Status) string {
	return cli.Result(string(s))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

var _ ProgressReporter = (*ConsoleProgress)(nil)
