// Package harness runs suites of provider acceptance cases against a target.
// It parses YAML suite files, renders a manifest per case, applies it, checks
// the exit code, verifies the resource state, and re-applies to confirm the
// provider is idempotent.
package harness

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newtron-network/provtest/pkg/filter"
	"github.com/newtron-network/provtest/pkg/manifest"
)

// InterfaceToken in a case title is replaced by a live ethernet interface.
const InterfaceToken = "{{interface}}"

// Exit codes of "puppet agent -t" / "puppet device" with detailed exit codes.
const (
	CodeNoChange = 0
	CodeFailed   = 1
	CodeChanged  = 2
	CodeFailures = 4
	CodeMixed    = 6
)

// DefaultCodes is the accepted exit-code set when a case declares none.
var DefaultCodes = []int{CodeChanged}

// Suite is a parsed suite file: one resource type and its cases.
type Suite struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Resource    string   `yaml:"resource"`
	Requires    []string `yaml:"requires,omitempty"`

	// Ensurable is false for types without an ensure property.
	Ensurable *bool `yaml:"ensurable,omitempty"`

	Platform        string `yaml:"platform,omitempty"`
	PlatformExclude string `yaml:"platform_exclude,omitempty"`
	OS              string `yaml:"os,omitempty"`

	// Preclean removes every instance of this type before each case.
	Preclean string `yaml:"preclean,omitempty"`

	// Probes are run once per suite; their results feed harness rules as
	// flags.
	Probes []Probe `yaml:"probes,omitempty"`

	Harness filter.RuleHarness `yaml:"harness,omitempty"`

	Cases []TestCase `yaml:"cases"`

	// Hooks overrides Harness when set. Suites built in Go use it to supply
	// their own hook implementation.
	Hooks filter.Harness `yaml:"-"`

	path string
	app  applicability
}

// IsEnsurable reports whether rendered manifests carry an ensure line.
func (s *Suite) IsEnsurable() bool {
	return s.Ensurable == nil || *s.Ensurable
}

// Path returns the file the suite was parsed from, if any.
func (s *Suite) Path() string { return s.path }

// hooks returns the harness the suite's cases are filtered through.
func (s *Suite) hooks() filter.Harness {
	if s.Hooks != nil {
		return s.Hooks
	}
	return &s.Harness
}

// RunCount is the number of case runs, counting each ensure toggle.
func (s *Suite) RunCount() int {
	n := 0
	for i := range s.Cases {
		n += len(s.Cases[i].Ensure)
	}
	return n
}

// Probe is a suite-level resource probe: run a command and record whether
// its output matches Pattern.
type Probe struct {
	Name string `yaml:"name"`
	// Resource lists every instance of a Puppet type.
	Resource string `yaml:"resource,omitempty"`
	// Show runs a device show command.
	Show    string `yaml:"show,omitempty"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// TestCase is one case of a suite.
type TestCase struct {
	ID          string `yaml:"id"`
	Description string `yaml:"desc,omitempty"`
	Title       string `yaml:"title"`

	// TitleParams are namevar properties the title alone does not carry.
	TitleParams manifest.Properties `yaml:"title_params,omitempty"`

	Props manifest.Properties `yaml:"props,omitempty"`

	// Resource holds the expected observed values; Props when unset.
	Resource manifest.Properties `yaml:"resource,omitempty"`

	Ensure EnsureList `yaml:"ensure,omitempty"`
	Code   []int      `yaml:"code,omitempty"`

	SkipIdempotence bool `yaml:"skip_idempotence,omitempty"`

	Platform        string `yaml:"platform,omitempty"`
	PlatformExclude string `yaml:"platform_exclude,omitempty"`
	OS              string `yaml:"os,omitempty"`
	Image           string `yaml:"image,omitempty"`
	// VDC is "default" when the case only runs in the default VDC.
	VDC string `yaml:"vdc,omitempty"`

	Capabilities []CapabilityProp `yaml:"capabilities,omitempty"`

	ShowCmd     string   `yaml:"show_cmd,omitempty"`
	ShowPattern []string `yaml:"show_pattern,omitempty"`

	// StderrPattern makes the case negative: the apply must fail with output
	// matching it.
	StderrPattern string `yaml:"stderr_pattern,omitempty"`

	Preclean string `yaml:"preclean,omitempty"`

	app    applicability
	stderr *regexp.Regexp
}

// Negative reports whether the case expects the apply to fail.
func (c *TestCase) Negative() bool {
	if c.StderrPattern != "" {
		return true
	}
	for _, code := range c.Code {
		if !isErrorCode(code) {
			return false
		}
	}
	return len(c.Code) > 0
}

// expectsErrorCode reports whether any accepted code is an error variant.
func (c *TestCase) expectsErrorCode() bool {
	for _, code := range c.Code {
		if isErrorCode(code) {
			return true
		}
	}
	return false
}

func isErrorCode(code int) bool {
	return code == CodeFailed || code == CodeFailures || code == CodeMixed
}

// CapabilityProp fills a property from what the live interface accepts.
//
//	capabilities:
//	  - prop: speed
//	    capability: Speed
//	    extra: [auto]
//	    pick: auto
type CapabilityProp struct {
	Prop manifest.Name `yaml:"prop"`
	// Capability names the "show interface X capabilities" entry holding
	// the candidates. Empty means only Values/Extra are tried.
	Capability string   `yaml:"capability,omitempty"`
	Values     []string `yaml:"values,omitempty"`
	Extra      []string `yaml:"extra,omitempty"`
	// Pick selects among the accepted values: "last" (default), "first", or
	// a literal value that must have been accepted.
	Pick string `yaml:"pick,omitempty"`
}

// EnsureList is one ensure state or a list of states run in order.
//
//	ensure: absent
//	ensure: [present, absent]
type EnsureList []manifest.Ensure

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EnsureList) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*e = EnsureList{manifest.Ensure(s)}
		return nil
	}
	var list []manifest.Ensure
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("ensure: expected a state or a list of states: %w", err)
	}
	*e = list
	return nil
}

// applicability is the compiled platform/OS/image filter shared by suites and
// cases.
type applicability struct {
	platform, platformExclude, os, image *regexp.Regexp
}

func compileApplicability(platform, exclude, os, image string) (applicability, error) {
	var a applicability
	var err error
	compile := func(field, expr string) *regexp.Regexp {
		if expr == "" || err != nil {
			return nil
		}
		re, cerr := regexp.Compile(expr)
		if cerr != nil {
			err = fmt.Errorf("%s %q: %w", field, expr, cerr)
		}
		return re
	}
	a.platform = compile("platform", platform)
	a.platformExclude = compile("platform_exclude", exclude)
	a.os = compile("os", os)
	a.image = compile("image", image)
	return a, err
}

// skipReason returns why the target does not qualify, or "".
func (a applicability) skipReason(platform, osName, image, version string) string {
	switch {
	case a.platform != nil && !a.platform.MatchString(platform):
		return fmt.Sprintf("platform %s does not match /%s/", platform, a.platform)
	case a.platformExclude != nil && a.platformExclude.MatchString(platform):
		return fmt.Sprintf("platform %s is excluded by /%s/", platform, a.platformExclude)
	case a.os != nil && !a.os.MatchString(osName):
		return fmt.Sprintf("os %s does not match /%s/", osName, a.os)
	case a.image != nil && !a.image.MatchString(image) && !a.image.MatchString(version):
		return fmt.Sprintf("image %s does not match /%s/", strings.TrimSpace(image+" "+version), a.image)
	}
	return ""
}
