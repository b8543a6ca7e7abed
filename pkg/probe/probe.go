// Package probe discovers what a live target accepts: usable interfaces,
// hardware capabilities, and which candidate property values apply cleanly.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/newtron-network/provtest/pkg/util"
)

// ErrorMarker is the substring that marks a rejected command in output.
const ErrorMarker = "Error:"

// Executor runs a command on the automation host and returns its output.
// A rejected command is output, not an error; errors are transport failures.
type Executor interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// Probe tries each candidate by running baseCmd with the candidate appended
// and keeps, in order, every value whose output has no ErrorMarker.
// A failed trial is expected to leave the target unchanged. An accepted
// trial stays configured: after Probe returns the target holds the last
// accepted value, and callers that go on to apply must restore it first.
func Probe(ctx context.Context, exec Executor, baseCmd string, candidates []string) ([]string, error) {
	var accepted []string
	for _, value := range candidates {
		out, err := exec.Exec(ctx, baseCmd+value)
		if err != nil {
			return accepted, fmt.Errorf("probe %s%s: %w", baseCmd, value, err)
		}
		if strings.Contains(out, ErrorMarker) {
			util.Logger.Debugf("probe %s%s :: rejected", baseCmd, value)
			continue
		}
		util.Logger.Debugf("probe %s%s :: accepted", baseCmd, value)
		accepted = append(accepted, value)
	}
	return accepted, nil
}

// ResourceProbe runs cmd and reports whether the output matches pattern,
// typically an "unsupported" or "Invalid command" message.
func ResourceProbe(ctx context.Context, exec Executor, cmd string, pattern *regexp.Regexp) (bool, error) {
	out, err := exec.Exec(ctx, cmd)
	if err != nil {
		return false, fmt.Errorf("resource probe %q: %w", cmd, err)
	}
	hit := pattern.MatchString(out)
	util.Logger.Debugf("resource probe %q pattern %s :: %v", cmd, pattern, hit)
	return hit, nil
}

// CapabilityTable maps a capability name (Speed, Duplex, MTU) to its
// candidate values in reported order.
type CapabilityTable map[string][]string

var capLine = regexp.MustCompile(`^\s*([A-Za-z][^:]*?)\s*:\s*(.*?)\s*$`)

// ParseCapabilities parses "show interface X capabilities" output, or the
// cisco_interface_capabilities resource, into a table. List values are
// split on commas.
func ParseCapabilities(output string) CapabilityTable {
	caps := make(CapabilityTable)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "=>") {
			line = resourceLine(line)
		}
		m := capLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, val := m[1], m[2]
		if val == "" {
			continue
		}
		caps[key] = util.SplitCommaSeparated(val)
	}
	return caps
}

// resourceLine turns "  Speed => '100,1000'," into "Speed: 100,1000".
func resourceLine(line string) string {
	k, v, _ := strings.Cut(line, "=>")
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ",")
	v = strings.Trim(v, `'"`)
	return strings.TrimSpace(k) + ": " + v
}

// Get returns the values of a capability, matched case-insensitively.
func (t CapabilityTable) Get(name string) []string {
	if v, ok := t[name]; ok {
		return v
	}
	for k, v := range t {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Candidates returns the values of name followed by extra, without
// duplicates.
func (t CapabilityTable) Candidates(name string, extra ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range append(append([]string(nil), t.Get(name)...), extra...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var briefEth = regexp.MustCompile(`(?i)^(eth(?:ernet)?)(\d+/\d+(?:/\d+)?)\s+(.*)$`)

// FindInterface returns the first ethernet interface in "show interface
// brief" output that is not a port-channel member, as "ethernetX/Y".
func FindInterface(output string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		m := briefEth.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		fields := strings.Fields(m[3])
		if len(fields) > 0 {
			if pc := fields[len(fields)-1]; pc != "--" && isPortChannel(pc) {
				continue
			}
		}
		return "ethernet" + m[2], nil
	}
	return "", util.NewSkipError("no usable ethernet interface found")
}

var interfaceName = regexp.MustCompile(`(?i)^(eth(ernet)?|port-channel|po|loopback|lo|vlan|mgmt)\d+(/\d+)*(\.\d+)?$`)

// IsInterface reports whether name is an NX-OS interface name.
func IsInterface(name string) bool {
	return interfaceName.MatchString(strings.TrimSpace(name))
}

func isPortChannel(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
