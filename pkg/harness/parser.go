package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/util"
)

// ParseSuite reads a YAML suite file and returns a validated Suite.
func ParseSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}
	s, err := ParseSuiteData(data)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// ParseSuiteData parses and validates suite YAML.
func ParseSuiteData(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := s.Compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseAllSuites reads all .yaml files in dir and returns parsed suites.
func ParseAllSuites(dir string) ([]*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading suites dir %s: %w", dir, err)
	}

	var suites []*Suite
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		s, err := ParseSuite(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

func applyDefaults(s *Suite) {
	if s.Name == "" {
		s.Name = s.Resource
	}
	for i := range s.Cases {
		c := &s.Cases[i]
		if len(c.Ensure) == 0 {
			c.Ensure = EnsureList{manifest.Present}
		}
		if len(c.Code) == 0 {
			c.Code = append([]int(nil), DefaultCodes...)
		}
		if c.Preclean == "" {
			c.Preclean = s.Preclean
		}
	}
}

// Compile fills defaults, validates the suite and compiles its regular
// expressions. Suites built in Go must call it before running.
func (s *Suite) Compile() error {
	applyDefaults(s)
	vb := &util.ValidationBuilder{}
	vb.Add(s.Resource != "", "resource is required")
	vb.Add(len(s.Cases) > 0, "at least one case is required")

	var err error
	if s.app, err = compileApplicability(s.Platform, s.PlatformExclude, s.OS, ""); err != nil {
		vb.AddErrorf("%v", err)
	}
	if s.Hooks == nil {
		if err := s.Harness.Compile(); err != nil {
			vb.AddErrorf("harness: %v", err)
		}
	}

	for i := range s.Probes {
		p := &s.Probes[i]
		prefix := fmt.Sprintf("probes[%d] (%s)", i, p.Name)
		vb.Add(p.Name != "", prefix+": name is required")
		vb.Add((p.Resource == "") != (p.Show == ""), prefix+": exactly one of resource or show is required")
		if p.re, err = regexp.Compile(p.Pattern); err != nil || p.Pattern == "" {
			vb.AddErrorf("%s: pattern %q is not a valid expression", prefix, p.Pattern)
		}
	}

	ids := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		prefix := fmt.Sprintf("case %d (%s)", i, c.ID)
		vb.Add(c.ID != "", prefix+": id is required")
		if ids[c.ID] {
			vb.AddErrorf("%s: duplicate id", prefix)
		}
		ids[c.ID] = true
		vb.Add(c.Title != "", prefix+": title is required")

		for _, e := range c.Ensure {
			if e != manifest.Present && e != manifest.Absent {
				vb.AddErrorf("%s: ensure %q (present or absent)", prefix, e)
			}
			if e == manifest.Absent && !s.IsEnsurable() {
				vb.AddErrorf("%s: ensure absent on a non-ensurable type", prefix)
			}
		}
		for _, code := range c.Code {
			if code != CodeNoChange && code != CodeChanged && !isErrorCode(code) {
				vb.AddErrorf("%s: exit code %d (0, 1, 2, 4 or 6)", prefix, code)
			}
		}

		if c.app, err = compileApplicability(c.Platform, c.PlatformExclude, c.OS, c.Image); err != nil {
			vb.AddErrorf("%s: %v", prefix, err)
		}
		vb.Add(c.VDC == "" || c.VDC == "default", prefix+": vdc must be \"default\" when set")

		if c.StderrPattern != "" {
			if c.stderr, err = regexp.Compile(c.StderrPattern); err != nil {
				vb.AddErrorf("%s: stderr_pattern: %v", prefix, err)
			}
			vb.Add(c.expectsErrorCode(), prefix+": stderr_pattern requires an error exit code (1, 4 or 6)")
		}
		vb.Add(len(c.ShowPattern) == 0 || c.ShowCmd != "", prefix+": show_pattern requires show_cmd")
		for _, expr := range c.ShowPattern {
			if _, err := regexp.Compile(expr); err != nil {
				vb.AddErrorf("%s: show_pattern %q: %v", prefix, expr, err)
			}
		}

		for j, cp := range c.Capabilities {
			vb.Add(cp.Prop != "", fmt.Sprintf("%s: capabilities[%d]: prop is required", prefix, j))
			vb.Add(cp.Capability != "" || len(cp.Values)+len(cp.Extra) > 0,
				fmt.Sprintf("%s: capabilities[%d]: capability or values is required", prefix, j))
		}
	}
	return vb.Build()
}

// ValidateDependencyGraph checks that all Requires references exist and there
// are no cycles. On success it returns suites in dependency order.
func ValidateDependencyGraph(suites []*Suite) ([]*Suite, error) {
	names := make(map[string]bool, len(suites))
	for _, s := range suites {
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate suite name: %s", s.Name)
		}
		names[s.Name] = true
	}

	for _, s := range suites {
		for _, req := range s.Requires {
			if !names[req] {
				return nil, fmt.Errorf("suite %s requires unknown suite %q", s.Name, req)
			}
			if req == s.Name {
				return nil, fmt.Errorf("suite %s requires itself", s.Name)
			}
		}
	}

	return topologicalSort(suites)
}

// topologicalSort returns suites in dependency order using Kahn's algorithm.
func topologicalSort(suites []*Suite) ([]*Suite, error) {
	byName := make(map[string]*Suite, len(suites))
	inDegree := make(map[string]int, len(suites))
	dependents := make(map[string][]string)

	for _, s := range suites {
		byName[s.Name] = s
		inDegree[s.Name] = len(s.Requires)
		for _, req := range s.Requires {
			dependents[req] = append(dependents[req], s.Name)
		}
	}

	var queue []string
	for _, s := range suites {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	var sorted []*Suite
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byName[name])

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(suites) {
		var inCycle []string
		for _, s := range suites {
			if inDegree[s.Name] > 0 {
				inCycle = append(inCycle, s.Name)
			}
		}
		return nil, fmt.Errorf("dependency cycle involving: %s", strings.Join(inCycle, ", "))
	}

	return sorted, nil
}

// HasRequires returns true if any suite declares dependencies.
func HasRequires(suites []*Suite) bool {
	for _, s := range suites {
		if len(s.Requires) > 0 {
			return true
		}
	}
	return false
}

// ResolveSuitePath resolves a suite name to a YAML file path.
// Tries in order:
//  1. Exact match: <dir>/<name>.yaml
//  2. Numbered prefix: <dir>/*-<name>.yaml
//  3. Scan files for matching name: field
func ResolveSuitePath(dir, name string) (string, error) {
	exact := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*-"+name+".yaml"))
	if len(matches) == 1 {
		return matches[0], nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("suite %q not found: %w", name, err)
	}
	var found string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		s, err := ParseSuite(path)
		if err != nil {
			continue
		}
		if s.Name == name {
			if found != "" {
				return "", fmt.Errorf("ambiguous suite name %q: found in %s and %s", name, filepath.Base(found), e.Name())
			}
			found = path
		}
	}
	if found != "" {
		return found, nil
	}

	return "", fmt.Errorf("suite %q not found in %s", name, dir)
}
