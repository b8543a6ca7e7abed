package harness

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newtron-network/provtest/pkg/manifest"
)

// DateTimeFormat is the timestamp layout used in reports.
const DateTimeFormat = "2006-01-02 15:04:05"

// SuiteResult holds the result of a single suite execution.
type SuiteResult struct {
	Name       string
	Resource   string
	Status     Status
	Duration   time.Duration
	Cases      []CaseResult
	SetupError error
	SkipReason string // set when the whole suite was skipped
}

// CaseResult holds the result of one case in one ensure state.
type CaseResult struct {
	Suite       string
	ID          string
	Description string
	Ensure      manifest.Ensure
	Toggled     bool
	Title       string

	Outcome  Outcome
	Duration time.Duration

	Manifest string
	ExitCode int
	// Output is the output of the last command the case ran.
	Output string
}

// Name is the case id, qualified by the ensure state when the case toggles.
func (c *CaseResult) Name() string {
	if c.Toggled {
		return fmt.Sprintf("%s (%s)", c.ID, c.Ensure)
	}
	return c.ID
}

// SkipEntry is one entry of the skip summary.
type SkipEntry struct {
	Suite  string
	Case   string // empty when the whole suite was skipped
	Reason string
}

// SkipSummary lists every skipped suite and case run in order.
func SkipSummary(results []*SuiteResult) []SkipEntry {
	var out []SkipEntry
	for _, r := range results {
		if r.Status == StatusSkipped && r.SkipReason != "" {
			out = append(out, SkipEntry{Suite: r.Name, Reason: r.SkipReason})
			continue
		}
		for i := range r.Cases {
			c := &r.Cases[i]
			if c.Outcome.Status == StatusSkipped {
				out = append(out, SkipEntry{Suite: r.Name, Case: c.Name(), Reason: c.Outcome.Reason})
			}
		}
	}
	return out
}

// Counts tallies case-run outcomes across results. A skipped suite counts
// as one skip.
func Counts(results []*SuiteResult) map[Status]int {
	counts := make(map[Status]int)
	for _, r := range results {
		if len(r.Cases) == 0 {
			counts[r.Status]++
			continue
		}
		for i := range r.Cases {
			counts[r.Cases[i].Outcome.Status]++
		}
	}
	return counts
}

// ReportGenerator produces test reports from suite results.
type ReportGenerator struct {
	Target  string
	Results []*SuiteResult
}

// WriteMarkdown writes a markdown report to the given path.
func (g *ReportGenerator) WriteMarkdown(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "# provtest Report: %s\n\n", time.Now().Format(DateTimeFormat))
	if g.Target != "" {
		fmt.Fprintf(f, "Target: `%s`\n\n", g.Target)
	}

	fmt.Fprintln(f, "| Suite | Resource | Cases | Result | Duration | Note |")
	fmt.Fprintln(f, "|-------|----------|-------|--------|----------|------|")
	for _, r := range g.Results {
		note := r.SkipReason
		if r.SetupError != nil {
			note = r.SetupError.Error()
		}
		fmt.Fprintf(f, "| %s | %s | %d | %s | %s | %s |\n",
			r.Name, r.Resource, len(r.Cases), r.Status,
			r.Duration.Round(time.Second), mdEscape(note))
	}

	hasFailures := false
	for _, r := range g.Results {
		for i := range r.Cases {
			c := &r.Cases[i]
			if c.Outcome.Status != StatusFailed && c.Outcome.Status != StatusError {
				continue
			}
			if !hasFailures {
				fmt.Fprintf(f, "\n## Failures\n\n")
				hasFailures = true
			}
			fmt.Fprintf(f, "### %s / %s\n", r.Name, c.Name())
			fmt.Fprintf(f, "%s at %s: %s\n\n", c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
			if c.Manifest != "" {
				fmt.Fprintf(f, "```puppet\n%s```\n\n", c.Manifest)
			}
			if out := strings.TrimSpace(c.Output); out != "" {
				fmt.Fprintf(f, "```\n%s\n```\n\n", out)
			}
		}
	}

	if skips := SkipSummary(g.Results); len(skips) > 0 {
		fmt.Fprintf(f, "\n## Skipped\n\n")
		for _, s := range skips {
			name := s.Suite
			if s.Case != "" {
				name += " / " + s.Case
			}
			fmt.Fprintf(f, "- %s: %s\n", name, s.Reason)
		}
	}

	return nil
}

func mdEscape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// WriteJUnit writes a JUnit XML report for CI integration.
func (g *ReportGenerator) WriteJUnit(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	suites := junitTestSuites{}

	for _, r := range g.Results {
		suite := junitTestSuite{
			Name: r.Name,
			Time: r.Duration.Seconds(),
		}

		// Suite-level skip or setup error: emit a single test case
		if len(r.Cases) == 0 && (r.SkipReason != "" || r.SetupError != nil) {
			suite.Tests = 1
			tc := junitTestCase{Name: r.Name, ClassName: r.Resource}
			if r.SetupError != nil {
				suite.Errors = 1
				tc.Error = &junitError{Message: r.SetupError.Error(), Type: "setup"}
			} else {
				suite.Skipped = 1
				tc.Skipped = &junitSkipped{Message: r.SkipReason}
			}
			suite.Cases = append(suite.Cases, tc)
			suites.Suites = append(suites.Suites, suite)
			continue
		}

		for i := range r.Cases {
			c := &r.Cases[i]
			suite.Tests++
			tc := junitTestCase{
				Name:      c.Name(),
				ClassName: r.Resource,
				Time:      c.Duration.Seconds(),
			}

			switch c.Outcome.Status {
			case StatusFailed:
				suite.Failures++
				tc.Failure = &junitFailure{
					Message: c.Outcome.Reason,
					Type:    string(c.Outcome.Stage),
					Body:    c.Output,
				}
			case StatusSkipped:
				suite.Skipped++
				tc.Skipped = &junitSkipped{Message: c.Outcome.Reason}
			case StatusError:
				suite.Errors++
				tc.Error = &junitError{
					Message: c.Outcome.Reason,
					Type:    string(c.Outcome.Stage),
				}
			}

			suite.Cases = append(suite.Cases, tc)
		}

		suites.Suites = append(suites.Suites, suite)
	}

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

// JUnit XML types

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}
