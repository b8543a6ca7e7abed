package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/provtest/internal/testutil"
	"github.com/newtron-network/provtest/pkg/audit"
	"github.com/newtron-network/provtest/pkg/facts"
	"github.com/newtron-network/provtest/pkg/transport"
)

// props is the state of one resource instance.
type props map[string]string

func (p props) clone() props {
	out := make(props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// device is a Target that keeps resource state, so an apply reports a
// change (exit 2) only when it makes one and 0 otherwise.
type device struct {
	resources map[string]props // keyed by resourceKey
	defaults  map[string]props
	reject    map[string]bool   // "prop=value" assignments the provider refuses
	shows     map[string]string // show command substring -> output

	cleaned []string
	configs [][]string
}

func newDevice() *device {
	return &device{
		resources: make(map[string]props),
		defaults:  make(map[string]props),
		reject:    make(map[string]bool),
		shows:     make(map[string]string),
	}
}

func resourceKey(resourceType, title string) string {
	return fmt.Sprintf("%s '%s'", resourceType, title)
}

// seed creates an instance; "default interface" returns it to this state.
func (d *device) seed(resourceType, title string, p props) {
	key := resourceKey(resourceType, title)
	d.resources[key] = p.clone()
	d.defaults[key] = p.clone()
}

func (d *device) Name() string { return "device" }

var (
	docResource = regexp.MustCompile(`^\s+(\w+) \{ '([^']*)':$`)
	docProperty = regexp.MustCompile(`^\s+(\w+) => (.*),$`)
)

func (d *device) Apply(_ context.Context, doc string) (*transport.Result, error) {
	changed := false
	var key string
	var want props
	flush := func() {
		if key != "" && d.converge(key, want) {
			changed = true
		}
	}
	for _, line := range strings.Split(doc, "\n") {
		if m := docResource.FindStringSubmatch(line); m != nil {
			flush()
			key, want = resourceKey(m[1], m[2]), props{}
			continue
		}
		if m := docProperty.FindStringSubmatch(line); m != nil && key != "" {
			want[m[1]] = strings.Trim(m[2], "'")
		}
	}
	flush()
	if changed {
		return &transport.Result{ExitCode: 2}, nil
	}
	return &transport.Result{}, nil
}

func (d *device) converge(key string, want props) bool {
	cur, ok := d.resources[key]
	if want["ensure"] == "absent" {
		delete(d.resources, key)
		return ok
	}
	changed := !ok
	if !ok {
		cur = props{}
		d.resources[key] = cur
	}
	for k, v := range want {
		if k != "ensure" && cur[k] != v {
			cur[k] = v
			changed = true
		}
	}
	return changed
}

func (d *device) ResourceCommand(resourceType, title string, assigns ...string) string {
	cmd := "puppet resource " + resourceType
	if title != "" {
		cmd += " '" + title + "'"
	}
	for _, a := range assigns {
		cmd += " " + a
	}
	return cmd
}

func (d *device) Exec(_ context.Context, cmd string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(cmd, "puppet resource "))
	if len(fields) < 2 {
		return "", nil
	}
	key := resourceKey(fields[0], strings.Trim(fields[1], "'"))
	for _, assign := range fields[2:] {
		if d.reject[assign] {
			return "Error: /" + key + ": could not set " + assign + "\n", nil
		}
		name, value, _ := strings.Cut(assign, "=")
		d.converge(key, props{name: value})
	}
	return d.render(key), nil
}

func (d *device) render(key string) string {
	p, ok := d.resources[key]
	if !ok {
		return strings.Replace(key, " ", " { ", 1) + ":\n  ensure => 'absent',\n}\n"
	}
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(strings.Replace(key, " ", " { ", 1) + ":\n  ensure => 'present',\n")
	for _, k := range names {
		fmt.Fprintf(&b, "  %s => '%s',\n", k, p[k])
	}
	b.WriteString("}\n")
	return b.String()
}

func (d *device) Show(_ context.Context, cli string) (string, error) {
	for substr, out := range d.shows {
		if strings.Contains(cli, substr) {
			return out, nil
		}
	}
	return "", nil
}

func (d *device) Config(_ context.Context, cmds []string) (*transport.Result, error) {
	d.configs = append(d.configs, cmds)
	for _, cmd := range cmds {
		if iface, ok := strings.CutPrefix(cmd, "default interface "); ok {
			key := resourceKey("network_interface", iface)
			d.resources[key] = d.defaults[key].clone()
		}
	}
	return &transport.Result{}, nil
}

func (d *device) AbsentCleanup(_ context.Context, resourceType string) error {
	d.cleaned = append(d.cleaned, resourceType)
	for key := range d.resources {
		if strings.HasPrefix(key, resourceType+" '") {
			delete(d.resources, key)
		}
	}
	return nil
}

func runOnDevice(t *testing.T, d *device, src string) *SuiteResult {
	t.Helper()
	return NewRunner("", d, facts.Static(n9k)).RunSuite(testutil.Context(t), mustSuite(t, src))
}

func TestRunSuite_PrecleanRunsOnceForToggledCase(t *testing.T) {
	d := newDevice()
	d.seed("cisco_vrf", "red", props{"description": "left over"})

	r := runOnDevice(t, d, `
resource: cisco_vrf
preclean: cisco_vrf
cases:
  - id: default_properties
    title: blue
    ensure: [present, absent]
    props:
      description: test
`)
	if len(r.Cases) != 2 {
		t.Fatalf("got %d case runs, want 2 (setup error %v)", len(r.Cases), r.SetupError)
	}
	for _, c := range r.Cases {
		if c.Outcome.Status != StatusPassed {
			t.Errorf("%s: %s at %s: %s", c.Name(), c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
		}
	}
	if diff := cmp.Diff([]string{"cisco_vrf"}, d.cleaned); diff != "" {
		t.Errorf("cleanups (-want +got):\n%s", diff)
	}
	if len(d.resources) != 0 {
		t.Errorf("resources left on device: %v", d.resources)
	}
}

func TestRunSuite_PrecleanRunsForEachCase(t *testing.T) {
	d := newDevice()
	r := runOnDevice(t, d, `
resource: cisco_vrf
preclean: cisco_vrf
cases:
  - id: first
    title: blue
    props:
      description: one
  - id: second
    title: green
    props:
      description: two
`)
	for _, c := range r.Cases {
		if c.Outcome.Status != StatusPassed {
			t.Errorf("%s: %s at %s: %s", c.Name(), c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
		}
	}
	if diff := cmp.Diff([]string{"cisco_vrf", "cisco_vrf"}, d.cleaned); diff != "" {
		t.Errorf("cleanups (-want +got):\n%s", diff)
	}
	if _, ok := d.resources[resourceKey("cisco_vrf", "blue")]; ok {
		t.Error("second case preclean left the first case's vrf")
	}
}

func TestRunSuite_CapabilityTrialsAreRestored(t *testing.T) {
	d := newDevice()
	d.seed("network_interface", "ethernet1/3", props{"speed": "auto"})
	d.reject["speed=10"] = true
	d.shows["brief"] = interfaceBrief
	d.shows["capabilities"] = "Ethernet1/3\n  Model:                 N9K-C9396PX\n  Speed:                 10,100,1000\n"

	log := &audit.MemoryLogger{}
	runner := NewRunner("", d, facts.Static(n9k))
	runner.Audit = log
	r := runner.RunSuite(testutil.Context(t), mustSuite(t, `
resource: network_interface
cases:
  - id: speed
    title: '{{interface}}'
    capabilities:
      - prop: speed
        capability: Speed
`))
	c := onlyCase(t, r)
	if c.Outcome.Status != StatusPassed {
		t.Fatalf("outcome = %s at %s: %s, want PASS", c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
	}
	if !strings.Contains(c.Manifest, "speed => '1000',") {
		t.Errorf("manifest:\n%s", c.Manifest)
	}
	if diff := cmp.Diff([][]string{{"default interface ethernet1/3"}}, d.configs); diff != "" {
		t.Errorf("device config (-want +got):\n%s", diff)
	}
	if got := d.resources[resourceKey("network_interface", "ethernet1/3")]["speed"]; got != "1000" {
		t.Errorf("speed on device = %q, want 1000", got)
	}

	events, _ := log.Query(audit.Filter{Operation: audit.OpRestore})
	if len(events) != 1 || events[0].Commands[0] != "default interface ethernet1/3" {
		t.Errorf("restore events = %+v", events)
	}
}

func TestRunSuite_CapabilityPickSkipsAuto(t *testing.T) {
	tests := []struct {
		pick string
		want string
	}{
		{"", "100"},
		{"first", "100"},
		{"auto", "auto"},
	}
	for _, tt := range tests {
		t.Run("pick="+tt.pick, func(t *testing.T) {
			d := newDevice()
			d.seed("network_interface", "ethernet1/3", props{"speed": "1000"})

			c := onlyCase(t, runOnDevice(t, d, `
resource: network_interface
cases:
  - id: speed
    title: ethernet1/3
    capabilities:
      - prop: speed
        values: ['100', auto]
        pick: '`+tt.pick+`'
`))
			if c.Outcome.Status != StatusPassed {
				t.Fatalf("outcome = %s at %s: %s, want PASS", c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
			}
			if !strings.Contains(c.Manifest, "speed => '"+tt.want+"',") {
				t.Errorf("manifest:\n%s", c.Manifest)
			}
		})
	}
}

func TestRunSuite_NoRestoreForNonInterfaceTitle(t *testing.T) {
	d := newDevice()
	d.seed("cisco_vlan", "128", props{"state": "active"})

	c := onlyCase(t, runOnDevice(t, d, `
resource: cisco_vlan
cases:
  - id: state
    title: '128'
    capabilities:
      - prop: state
        values: [suspend, active]
        pick: first
`))
	if c.Outcome.Status != StatusPassed {
		t.Fatalf("outcome = %s at %s: %s, want PASS", c.Outcome.Status, c.Outcome.Stage, c.Outcome.Reason)
	}
	if len(d.configs) != 0 {
		t.Errorf("device config = %v, want none", d.configs)
	}
}
