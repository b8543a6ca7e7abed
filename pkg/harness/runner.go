package harness

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/provtest/pkg/audit"
	"github.com/newtron-network/provtest/pkg/facts"
	"github.com/newtron-network/provtest/pkg/filter"
	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/match"
	"github.com/newtron-network/provtest/pkg/probe"
	"github.com/newtron-network/provtest/pkg/transport"
	"github.com/newtron-network/provtest/pkg/util"
)

// Target is what the runner drives. *target.Target implements it.
type Target interface {
	Name() string
	Apply(ctx context.Context, doc string) (*transport.Result, error)
	Exec(ctx context.Context, cmd string) (string, error)
	ResourceCommand(resourceType, title string, assigns ...string) string
	Show(ctx context.Context, cli string) (string, error)
	Config(ctx context.Context, cmds []string) (*transport.Result, error)
	AbsentCleanup(ctx context.Context, resourceType string) error
}

// Runner is the top-level provtest orchestrator.
type Runner struct {
	SuitesDir string
	Target    Target
	Facts     *facts.Context

	// Interface pins the interface substituted for {{interface}}; when
	// empty one is discovered from "show interface brief".
	Interface string

	Progress ProgressReporter

	// Audit, when set, records every change pushed to the target. User
	// is recorded with each event.
	Audit audit.Logger
	User  string

	caps     map[string]probe.CapabilityTable
	accepted map[string][]string
}

// RunOptions controls Runner behavior from CLI flags.
type RunOptions struct {
	Suites []string
	All    bool
}

// NewRunner creates a runner for tgt. The facts context is owned by the
// caller and shared by every suite of the run.
func NewRunner(suitesDir string, tgt Target, fc *facts.Context) *Runner {
	return &Runner{
		SuitesDir: suitesDir,
		Target:    tgt,
		Facts:     fc,
	}
}

// LoadSuites parses the suites named in opts, or all of them. With --all
// and any requires, suites come back in dependency order.
func (r *Runner) LoadSuites(opts RunOptions) ([]*Suite, error) {
	if len(opts.Suites) == 0 && !opts.All {
		return nil, fmt.Errorf("specify a suite name or --all")
	}
	if opts.All {
		suites, err := ParseAllSuites(r.SuitesDir)
		if err != nil {
			return nil, err
		}
		if len(suites) == 0 {
			return nil, fmt.Errorf("no suites found in %s", r.SuitesDir)
		}
		if HasRequires(suites) {
			return ValidateDependencyGraph(suites)
		}
		return suites, nil
	}

	var suites []*Suite
	for _, name := range opts.Suites {
		path, err := ResolveSuitePath(r.SuitesDir, name)
		if err != nil {
			return nil, err
		}
		s, err := ParseSuite(path)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// Run executes one or all suites and returns results. Suites with
// `requires` are skipped if a required suite in the same run did not pass.
func (r *Runner) Run(ctx context.Context, opts RunOptions) ([]*SuiteResult, error) {
	suites, err := r.LoadSuites(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	return r.RunSuites(ctx, suites), nil
}

// RunSuites runs already-parsed suites in order.
func (r *Runner) RunSuites(ctx context.Context, suites []*Suite) []*SuiteResult {
	r.progress(func(p ProgressReporter) { p.RunStart(suites) })
	start := time.Now()

	selected := make(map[string]bool, len(suites))
	for _, s := range suites {
		selected[s.Name] = true
	}
	status := make(map[string]Status)
	var results []*SuiteResult

	for i, s := range suites {
		if ctx.Err() != nil {
			break
		}
		if reason := checkRequires(s, status, selected); reason != "" {
			result := &SuiteResult{
				Name:       s.Name,
				Resource:   s.Resource,
				Status:     StatusSkipped,
				SkipReason: reason,
			}
			results = append(results, result)
			status[s.Name] = StatusSkipped
			r.progress(func(p ProgressReporter) { p.SuiteEnd(result, i, len(suites)) })
			continue
		}

		r.progress(func(p ProgressReporter) { p.SuiteStart(s, i, len(suites)) })
		result := r.RunSuite(ctx, s)
		results = append(results, result)
		status[s.Name] = result.Status
		r.progress(func(p ProgressReporter) { p.SuiteEnd(result, i, len(suites)) })
	}

	r.progress(func(p ProgressReporter) { p.RunEnd(results, time.Since(start)) })
	return results
}

// RunSuite runs every case of s. A failed case never stops the suite.
func (r *Runner) RunSuite(ctx context.Context, s *Suite) *SuiteResult {
	if r.caps == nil {
		r.caps = make(map[string]probe.CapabilityTable)
		r.accepted = make(map[string][]string)
	}
	result := &SuiteResult{Name: s.Name, Resource: s.Resource}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	snap, err := r.Facts.Load(ctx)
	if err != nil {
		result.Status = StatusError
		result.SetupError = &InfraError{Op: "facts", Suite: s.Name, Err: err}
		return result
	}
	if reason := s.app.skipReason(snap.Platform, snap.OS, snap.SystemImage, snap.Version); reason != "" {
		result.Status = StatusSkipped
		result.SkipReason = reason
		util.WithField("suite", s.Name).Infof("Skipping suite: %s", reason)
		return result
	}

	flags, err := r.runProbes(ctx, s)
	if err != nil {
		result.Status = StatusError
		result.SetupError = &InfraError{Op: "probe", Suite: s.Name, Err: err}
		return result
	}
	env := filter.Env{Facts: snap, Flags: flags}

	total := s.RunCount()
	for i := range s.Cases {
		c := &s.Cases[i]
		for j, ensure := range c.Ensure {
			if ctx.Err() != nil {
				result.Status = computeOverallStatus(result.Cases)
				result.SetupError = &InfraError{Op: "run", Suite: s.Name, Err: ctx.Err()}
				return result
			}
			r.progress(func(p ProgressReporter) { p.CaseStart(s.Name, c, ensure) })
			cr := r.runCase(ctx, s, c, ensure, j == 0, env)
			result.Cases = append(result.Cases, cr)
			idx := len(result.Cases) - 1
			r.progress(func(p ProgressReporter) { p.CaseEnd(s.Name, &result.Cases[idx], idx, total) })
		}
	}

	result.Status = computeOverallStatus(result.Cases)
	return result
}

// caseRun is the working state of one case in one ensure state. The suite's
// case table is never modified.
type caseRun struct {
	suite  *Suite
	c      *TestCase
	ensure manifest.Ensure
	first  bool // first ensure state of the case
	env    filter.Env
	log    *logrus.Entry

	title  string
	doc    string
	query  string
	expect match.Expectations
	result *CaseResult
}

func (r *Runner) runCase(ctx context.Context, s *Suite, c *TestCase, ensure manifest.Ensure, first bool, env filter.Env) CaseResult {
	cr := CaseResult{
		Suite:       s.Name,
		ID:          c.ID,
		Description: c.Description,
		Ensure:      ensure,
		Toggled:     len(c.Ensure) > 1,
	}
	run := &caseRun{
		suite:  s,
		c:      c,
		ensure: ensure,
		first:  first,
		env:    env,
		log:    util.WithCase(s.Name, cr.Name()),
		result: &cr,
	}
	start := time.Now()
	cr.Outcome = r.execute(ctx, run)
	cr.Duration = time.Since(start)

	switch cr.Outcome.Status {
	case StatusPassed:
		run.log.Infof("PASS (%s)", cr.Duration.Round(time.Millisecond))
	case StatusSkipped:
		run.log.Infof("SKIP at %s: %s", cr.Outcome.Stage, cr.Outcome.Reason)
	default:
		run.log.Errorf("%s at %s: %s", cr.Outcome.Status, cr.Outcome.Stage, cr.Outcome.Reason)
	}
	return cr
}

// execute walks the stages. Each stage returns an error; the first one ends
// the run with the outcome it classifies to.
func (r *Runner) execute(ctx context.Context, run *caseRun) Outcome {
	stages := []struct {
		stage Stage
		fn    func(context.Context, *caseRun) error
		skip  bool
	}{
		{StageBuild, r.build, false},
		{StageApply, r.apply, false},
		{StageVerify, r.verify, run.c.Negative()},
		{StageIdempotence, r.idempotence, run.c.Negative() || run.c.SkipIdempotence},
	}
	for _, st := range stages {
		if st.skip {
			continue
		}
		util.WithStage(run.suite.Name, run.result.Name(), string(st.stage)).Debug("enter")
		if err := st.fn(ctx, run); err != nil {
			return outcomeFor(st.stage, err)
		}
	}
	return Pass()
}

// build checks applicability, resolves the title, fills capability-driven
// properties, filters, and renders the manifest and query command.
func (r *Runner) build(ctx context.Context, run *caseRun) error {
	s, c := run.suite, run.c
	snap := run.env.Facts

	if reason := c.app.skipReason(snap.Platform, snap.OS, snap.SystemImage, snap.Version); reason != "" {
		return util.NewSkipError("%s", reason)
	}
	if c.VDC == "default" {
		ok, err := r.Facts.DefaultVDC(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return util.NewSkipError("requires the default vdc, target runs in %s", r.Facts.Snapshot().VDC)
		}
	}

	title, err := r.resolveTitle(ctx, c.Title)
	if err != nil {
		return err
	}
	run.title = title
	run.result.Title = title

	hooks := s.hooks()
	unsupported := filter.Unsupported(run.env, c.ID, hooks)

	props := c.Props.Clone()
	picked := manifest.Properties{}
	if run.ensure == manifest.Present {
		for _, cp := range c.Capabilities {
			value, err := r.capabilityValue(ctx, run, cp)
			if err != nil {
				return err
			}
			props.Set(cp.Prop, value)
			picked.Set(cp.Prop, value)
		}
	}

	filtered := filter.Without(props, unsupported)
	if run.ensure == manifest.Present && len(props) > 0 && len(filtered) == 0 {
		return util.NewSkipError("no supported properties on %s", snap.Platform)
	}
	if c.TitleParams != nil {
		filtered = c.TitleParams.Merge(filtered)
	}

	if run.ensure == manifest.Absent {
		run.expect = match.MustPatterns(match.PropertyPattern("ensure", string(manifest.Absent)))
	} else {
		expected := filtered
		if c.Resource != nil {
			expected = filter.Without(c.TitleParams.Merge(c.Resource).Merge(picked), unsupported)
		}
		if err := checkExpectations(expected, filtered); err != nil {
			return err
		}
		run.expect = match.FromProperties(expected)
		if run.expect.Len() == 0 && s.IsEnsurable() {
			run.expect = match.MustPatterns(match.PropertyPattern("ensure", string(manifest.Present)))
		}
	}

	run.doc, run.query = manifest.Render(manifest.Resource{
		Type:   s.Resource,
		Title:  title,
		Ensure: run.ensure,
		Props:  filtered,
	}, manifest.Options{
		Dependency: hooks.DependencyManifest(run.env, c.ID),
		Query: func(resourceType, title string) string {
			return r.Target.ResourceCommand(resourceType, title)
		},
		NoEnsure: !s.IsEnsurable(),
	})
	run.result.Manifest = run.doc
	run.log.Debugf("manifest:\n%s", run.doc)
	return nil
}

// checkExpectations enforces that every expected property was also sent in
// the manifest, other than ensure and ignore-value checks.
func checkExpectations(expected, sent manifest.Properties) error {
	var missing []string
	for _, prop := range expected {
		if prop.Name == "ensure" || prop.Value == manifest.IgnoreValue {
			continue
		}
		if !sent.Has(prop.Name) {
			missing = append(missing, string(prop.Name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: expected properties not in manifest properties: %s",
			util.ErrInvalidCase, strings.Join(missing, ", "))
	}
	return nil
}

// apply runs cleanup and CLI setup, submits the manifest and checks the exit
// code. Negative cases must also match stderr_pattern. Preclean runs only
// ahead of the first ensure state; later states act on what it left.
func (r *Runner) apply(ctx context.Context, run *caseRun) error {
	c := run.c
	if c.Preclean != "" && run.first {
		start := time.Now()
		err := r.Target.AbsentCleanup(ctx, c.Preclean)
		r.record(run, audit.OpPreclean, start, func(e *audit.Event) {
			e.WithCommands([]string{c.Preclean}).WithOutcome(0, err)
		})
		if err != nil {
			return fmt.Errorf("preclean %s: %w", c.Preclean, err)
		}
	}
	if cmds := run.suite.hooks().TestHarnessDependencies(run.env, c.ID); len(cmds) > 0 {
		start := time.Now()
		res, err := r.Target.Config(ctx, cmds)
		r.record(run, audit.OpSetup, start, func(e *audit.Event) {
			e.WithCommands(cmds).WithOutcome(resultCode(res), err)
		})
		if err != nil {
			return fmt.Errorf("harness setup: %w", err)
		}
		if res.ExitCode != 0 || strings.Contains(res.Output, probe.ErrorMarker) {
			run.log.Warnf("harness setup reported: %s", strings.TrimSpace(res.Output))
		}
	}

	res, err := r.applyDoc(ctx, run, audit.OpApply)
	if err != nil {
		return err
	}
	run.result.ExitCode = res.ExitCode
	run.result.Output = res.Output
	run.log.Debugf("apply exit code %d", res.ExitCode)

	if !containsInt(c.Code, res.ExitCode) {
		return &util.ApplyError{Code: res.ExitCode, Accepted: c.Code, Output: res.Output}
	}
	if c.stderr != nil {
		if !c.stderr.MatchString(res.Output) {
			return &util.MatchError{Pattern: c.stderr.String(), Output: res.Output}
		}
		return nil
	}
	if !c.expectsErrorCode() && strings.Contains(res.Output, probe.ErrorMarker) {
		return &util.TransportError{
			Op:   "apply",
			Host: r.Target.Name(),
			Err:  fmt.Errorf("unexpected error in output: %s", errorLine(res.Output)),
		}
	}
	return nil
}

// verify queries the resource and matches the expectations, then the
// optional show command.
func (r *Runner) verify(ctx context.Context, run *caseRun) error {
	out, err := r.Target.Exec(ctx, run.query)
	if err != nil {
		return err
	}
	run.result.Output = out
	if err := match.VerifyWithLogger(run.log, out, run.expect, false); err != nil {
		return err
	}

	c := run.c
	if c.ShowCmd == "" || len(c.ShowPattern) == 0 {
		return nil
	}
	shown, err := r.Target.Show(ctx, c.ShowCmd)
	if err != nil {
		return err
	}
	run.result.Output = shown
	ex, err := match.Patterns(c.ShowPattern...)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidCase, err)
	}
	// In the absent state the configuration lines must be gone.
	return match.VerifyWithLogger(run.log, shown, ex, run.ensure == manifest.Absent)
}

// idempotence re-applies the same manifest; anything but "no change" fails.
func (r *Runner) idempotence(ctx context.Context, run *caseRun) error {
	res, err := r.applyDoc(ctx, run, audit.OpReapply)
	if err != nil {
		return err
	}
	run.result.Output = res.Output
	if res.ExitCode != CodeNoChange {
		return &util.IdempotenceError{Code: res.ExitCode, Output: res.Output}
	}
	return nil
}

// applyDoc submits the case manifest and records it.
func (r *Runner) applyDoc(ctx context.Context, run *caseRun, op audit.Operation) (*transport.Result, error) {
	start := time.Now()
	res, err := r.Target.Apply(ctx, run.doc)
	r.record(run, op, start, func(e *audit.Event) {
		e.WithManifest(run.doc).WithOutcome(resultCode(res), err)
	})
	return res, err
}

// record logs one change to the audit log. A logging failure is a warning,
// never a case failure.
func (r *Runner) record(run *caseRun, op audit.Operation, start time.Time, fill func(*audit.Event)) {
	if r.Audit == nil {
		return
	}
	e := audit.NewEvent(r.User, r.Target.Name(), op).
		WithCase(run.suite.Name, run.result.Name(), string(run.ensure)).
		WithDuration(time.Since(start))
	fill(e)
	if err := r.Audit.Log(e); err != nil {
		run.log.Warnf("audit log: %v", err)
	}
}

func resultCode(res *transport.Result) int {
	if res == nil {
		return 0
	}
	return res.ExitCode
}

// resolveTitle substitutes the test interface for {{interface}}.
func (r *Runner) resolveTitle(ctx context.Context, title string) (string, error) {
	if !strings.Contains(title, InterfaceToken) {
		return title, nil
	}
	iface, err := r.testInterface(ctx)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(title, InterfaceToken, iface), nil
}

// testInterface returns the interface cached in the facts context, the
// pinned one, or the first usable one on the device.
func (r *Runner) testInterface(ctx context.Context) (string, error) {
	if iface := r.Facts.Interface(); iface != "" {
		return iface, nil
	}
	iface := r.Interface
	if iface == "" {
		out, err := r.Target.Show(ctx, "show interface brief")
		if err != nil {
			return "", fmt.Errorf("finding interface: %w", err)
		}
		if iface, err = probe.FindInterface(out); err != nil {
			return "", err
		}
	}
	r.Facts.SetInterface(iface)
	util.WithTarget(r.Target.Name()).Infof("Using interface %s", iface)
	return iface, nil
}

// capabilities reads the capability table of iface once per run.
func (r *Runner) capabilities(ctx context.Context, iface string) (probe.CapabilityTable, error) {
	if t, ok := r.caps[iface]; ok {
		return t, nil
	}
	out, err := r.Target.Show(ctx, "show interface "+iface+" capabilities")
	if err != nil {
		return nil, fmt.Errorf("interface capabilities: %w", err)
	}
	t := probe.ParseCapabilities(out)
	r.caps[iface] = t
	return t, nil
}

// capabilityValue probes which candidates the live resource accepts and
// picks one. Accepted trials stay configured, so an interface is returned to
// its defaults before the case applies.
func (r *Runner) capabilityValue(ctx context.Context, run *caseRun, cp CapabilityProp) (string, error) {
	extra := append(append([]string(nil), cp.Values...), cp.Extra...)
	var candidates []string
	if cp.Capability != "" {
		table, err := r.capabilities(ctx, run.title)
		if err != nil {
			return "", err
		}
		candidates = table.Candidates(cp.Capability, extra...)
	} else {
		candidates = probe.CapabilityTable{}.Candidates("", extra...)
	}
	if len(candidates) == 0 {
		return "", util.NewSkipError("no %s candidates for %s", cp.Prop, run.title)
	}

	key := run.suite.Resource + "/" + run.title + "/" + string(cp.Prop) + "=" + strings.Join(candidates, ",")
	accepted, ok := r.accepted[key]
	if !ok {
		base := r.Target.ResourceCommand(run.suite.Resource, run.title, string(cp.Prop)+"=")
		var err error
		if accepted, err = probe.Probe(ctx, r.Target, base, candidates); err != nil {
			return "", err
		}
		r.accepted[key] = accepted
		run.log.Debugf("%s accepts %s: %v", run.title, cp.Prop, accepted)
		if len(accepted) > 0 && probe.IsInterface(run.title) {
			if err := r.restoreInterface(ctx, run); err != nil {
				return "", err
			}
		}
	}
	if len(accepted) == 0 {
		return "", util.NewSkipError("%s accepts no %s value from %v", run.title, cp.Prop, candidates)
	}

	switch cp.Pick {
	case "", "last":
		choices := nonDefault(accepted)
		return choices[len(choices)-1], nil
	case "first":
		return nonDefault(accepted)[0], nil
	}
	for _, v := range accepted {
		if v == cp.Pick {
			return v, nil
		}
	}
	return "", util.NewSkipError("%s does not accept %s %s", run.title, cp.Prop, cp.Pick)
}

// restoreInterface returns the case's interface to its default
// configuration.
func (r *Runner) restoreInterface(ctx context.Context, run *caseRun) error {
	cmds := []string{"default interface " + run.title}
	start := time.Now()
	res, err := r.Target.Config(ctx, cmds)
	r.record(run, audit.OpRestore, start, func(e *audit.Event) {
		e.WithCommands(cmds).WithOutcome(resultCode(res), err)
	})
	if err != nil {
		return fmt.Errorf("restoring %s: %w", run.title, err)
	}
	if res.ExitCode != 0 || strings.Contains(res.Output, probe.ErrorMarker) {
		run.log.Warnf("restoring %s reported: %s", run.title, strings.TrimSpace(res.Output))
	}
	return nil
}

// nonDefault drops "auto" from accepted unless it is the only value.
func nonDefault(accepted []string) []string {
	var out []string
	for _, v := range accepted {
		if v != "auto" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return accepted
	}
	return out
}

// runProbes evaluates the suite's resource probes into harness flags.
func (r *Runner) runProbes(ctx context.Context, s *Suite) (map[string]bool, error) {
	flags := make(map[string]bool, len(s.Probes))
	for i := range s.Probes {
		p := &s.Probes[i]
		var hit bool
		var err error
		if p.Resource != "" {
			hit, err = probe.ResourceProbe(ctx, r.Target, r.Target.ResourceCommand(p.Resource, ""), p.re)
		} else {
			hit, err = probe.ResourceProbe(ctx, showExec{r.Target}, p.Show, p.re)
		}
		if err != nil {
			return nil, err
		}
		flags[p.Name] = hit
	}
	return flags, nil
}

// showExec adapts device show commands to probe.Executor.
type showExec struct{ t Target }

func (e showExec) Exec(ctx context.Context, cmd string) (string, error) {
	return e.t.Show(ctx, cmd)
}

// progress calls fn with the ProgressReporter if one is set.
func (r *Runner) progress(fn func(ProgressReporter)) {
	if r.Progress != nil {
		fn(r.Progress)
	}
}

// computeOverallStatus computes a suite's status from its case runs. Skips
// never escalate: a suite with passes and skips passes.
func computeOverallStatus(cases []CaseResult) Status {
	hasError, passed := false, false
	for _, c := range cases {
		switch c.Outcome.Status {
		case StatusFailed:
			return StatusFailed
		case StatusError:
			hasError = true
		case StatusPassed:
			passed = true
		}
	}
	switch {
	case hasError:
		return StatusError
	case passed:
		return StatusPassed
	case len(cases) > 0:
		return StatusSkipped
	}
	return StatusPassed
}

// checkRequires returns a skip reason if any required suite in this run did
// not pass, or "". Requirements outside the run are not enforced.
func checkRequires(s *Suite, status map[string]Status, selected map[string]bool) string {
	for _, req := range s.Requires {
		if !selected[req] {
			continue
		}
		st, ok := status[req]
		if !ok {
			return fmt.Sprintf("requires '%s' which has not run yet", req)
		}
		if st != StatusPassed {
			return fmt.Sprintf("requires '%s' which %s", req, statusVerb(st))
		}
	}
	return ""
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// errorLine returns the first output line carrying the error marker.
func errorLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, probe.ErrorMarker) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
