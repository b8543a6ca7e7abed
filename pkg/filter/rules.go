package filter

import (
	"fmt"
	"regexp"

	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/util"
)

// Rule is one declarative applicability rule. Every condition that is set
// must hold for the rule to fire; an empty condition always holds.
type Rule struct {
	Platform        string          `yaml:"platform,omitempty"`
	PlatformExclude string          `yaml:"platform_exclude,omitempty"`
	OS              string          `yaml:"os,omitempty"`
	Image           string          `yaml:"image,omitempty"`
	Flag            string          `yaml:"flag,omitempty"`
	Cases           []string        `yaml:"cases,omitempty"`
	Props           []manifest.Name `yaml:"props"`

	// MinVersion makes the rule a version gate: Props need at least this
	// firmware version.
	MinVersion string `yaml:"min_version,omitempty"`

	platform, platformExclude, os, image *regexp.Regexp
}

func (r *Rule) compile() error {
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
	r.platform = compile("platform", r.Platform)
	r.platformExclude = compile("platform_exclude", r.PlatformExclude)
	r.os = compile("os", r.OS)
	r.image = compile("image", r.Image)
	return err
}

// Matches reports whether the rule applies to env and case id.
func (r *Rule) Matches(env Env, id string) bool {
	if r.platform != nil && !r.platform.MatchString(env.Facts.Platform) {
		return false
	}
	if r.platformExclude != nil && r.platformExclude.MatchString(env.Facts.Platform) {
		return false
	}
	if r.os != nil && !r.os.MatchString(env.Facts.OS) {
		return false
	}
	if r.image != nil && !r.image.MatchString(env.Facts.SystemImage) && !r.image.MatchString(env.Facts.Version) {
		return false
	}
	if r.Flag != "" && !env.Flag(r.Flag) {
		return false
	}
	if len(r.Cases) > 0 && !containsString(r.Cases, id) {
		return false
	}
	return true
}

// RuleHarness is a Harness driven by suite-file rules.
//
//	harness:
//	  unsupported:
//	    - platform: n7k
//	      props: [mapped_vni]
//	    - platform_exclude: n7k
//	      props: [fabric_control]
//	  version_gates:
//	    - platform: n9k
//	      min_version: 7.0.3.I5.1
//	      props: [match_ospf_area]
//	  dependency: |
//	    cisco_vrf { 'blue': ensure => present }
//	  setup:
//	    - feature hsrp
type RuleHarness struct {
	UnsupportedRules []Rule              `yaml:"unsupported,omitempty"`
	VersionGates     []Rule              `yaml:"version_gates,omitempty"`
	Dependency       string              `yaml:"dependency,omitempty"`
	CaseDependency   map[string]string   `yaml:"case_dependency,omitempty"`
	Setup            []string            `yaml:"setup,omitempty"`
	CaseSetup        map[string][]string `yaml:"case_setup,omitempty"`
}

// Compile validates and compiles every rule. It must be called once after
// decoding.
func (h *RuleHarness) Compile() error {
	vb := &util.ValidationBuilder{}
	for i := range h.UnsupportedRules {
		r := &h.UnsupportedRules[i]
		if err := r.compile(); err != nil {
			vb.AddErrorf("unsupported[%d]: %v", i, err)
		}
		vb.Add(len(r.Props) > 0, fmt.Sprintf("unsupported[%d]: props is required", i))
		vb.Add(r.MinVersion == "", fmt.Sprintf("unsupported[%d]: min_version belongs in version_gates", i))
	}
	for i := range h.VersionGates {
		r := &h.VersionGates[i]
		if err := r.compile(); err != nil {
			vb.AddErrorf("version_gates[%d]: %v", i, err)
		}
		vb.Add(len(r.Props) > 0, fmt.Sprintf("version_gates[%d]: props is required", i))
		if r.MinVersion == "" {
			vb.AddErrorf("version_gates[%d]: min_version is required", i)
		} else if _, err := ParseVersion(r.MinVersion); err != nil {
			vb.AddErrorf("version_gates[%d]: %v", i, err)
		}
	}
	return vb.Build()
}

// UnsupportedProperties returns the props of every matching rule.
func (h *RuleHarness) UnsupportedProperties(env Env, id string) []manifest.Name {
	var out []manifest.Name
	for i := range h.UnsupportedRules {
		if h.UnsupportedRules[i].Matches(env, id) {
			out = append(out, h.UnsupportedRules[i].Props...)
		}
	}
	if len(out) > 0 {
		util.WithField("case", id).Debugf("unprops: %v", out)
	}
	return out
}

// VersionUnsupportedProperties returns prop to minimum version for every
// matching gate. A later gate for the same prop wins.
func (h *RuleHarness) VersionUnsupportedProperties(env Env, id string) map[manifest.Name]string {
	out := make(map[manifest.Name]string)
	for i := range h.VersionGates {
		g := &h.VersionGates[i]
		if !g.Matches(env, id) {
			continue
		}
		for _, p := range g.Props {
			out[p] = g.MinVersion
		}
	}
	return out
}

// DependencyManifest returns the case-specific dependency, or the suite
// default.
func (h *RuleHarness) DependencyManifest(_ Env, id string) string {
	if dep, ok := h.CaseDependency[id]; ok {
		return dep
	}
	return h.Dependency
}

// TestHarnessDependencies returns the case-specific setup, or the suite
// default.
func (h *RuleHarness) TestHarnessDependencies(_ Env, id string) []string {
	if cmds, ok := h.CaseSetup[id]; ok {
		return cmds
	}
	return h.Setup
}

var (
	_ Harness      = (*RuleHarness)(nil)
	_ VersionGater = (*RuleHarness)(nil)
)

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
