package probe

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/provtest/pkg/util"
)

// fakeExec answers by exact command; unknown commands return empty output.
type fakeExec struct {
	out   map[string]string
	fail  map[string]error
	calls []string
}

func (f *fakeExec) Exec(_ context.Context, cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	if err := f.fail[cmd]; err != nil {
		return "", err
	}
	return f.out[cmd], nil
}

func TestProbe_KeepsAcceptedInOrder(t *testing.T) {
	base := "puppet resource network_interface 'ethernet1/4' speed="
	exec := &fakeExec{out: map[string]string{
		base + "10":   "Error: Speed 10 is not supported on this interface",
		base + "100":  "Error: /Network_interface[ethernet1/4]/speed: change failed",
		base + "1000": "network_interface { 'ethernet1/4':\n  speed => '1000',\n}",
	}}

	got, err := Probe(context.Background(), exec, base, util.SplitCommaSeparated("10,100,1000"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1000"}, got)
	assert.Len(t, exec.calls, 3)
}

func TestProbe_AllRejected(t *testing.T) {
	exec := &fakeExec{out: map[string]string{"x=a": "Error: no", "x=b": "Error: no"}}
	got, err := Probe(context.Background(), exec, "x=", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProbe_TransportErrorStops(t *testing.T) {
	exec := &fakeExec{fail: map[string]error{"x=b": util.ErrNotConnected}}
	got, err := Probe(context.Background(), exec, "x=", []string{"a", "b", "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrNotConnected))
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, []string{"x=a", "x=b"}, exec.calls)
}

func TestResourceProbe(t *testing.T) {
	exec := &fakeExec{out: map[string]string{
		"puppet resource cisco_vxlan_vtep": "Error: Could not run: Feature nv overlay is not supported on this platform",
	}}
	unsupported := regexp.MustCompile(`(?i)not supported`)

	hit, err := ResourceProbe(context.Background(), exec, "puppet resource cisco_vxlan_vtep", unsupported)
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = ResourceProbe(context.Background(), exec, "puppet resource cisco_vlan", unsupported)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestParseCapabilities_CLI(t *testing.T) {
	out := `Ethernet1/4
  Model:                 N9K-C9372PX
  Type (SFP capable):    10Gbase-SR
  Speed:                 100,1000,10000,auto
  Duplex:                full
  Trunk encap. type:     802.1Q
  Channel:               yes
  Broadcast suppression: percentage(0-100)
  MTU:
`
	caps := ParseCapabilities(out)
	assert.Equal(t, []string{"100", "1000", "10000", "auto"}, caps.Get("Speed"))
	assert.Equal(t, []string{"full"}, caps.Get("duplex"))
	assert.Equal(t, []string{"802.1Q"}, caps.Get("Trunk encap. type"))
	assert.Nil(t, caps.Get("MTU"), "empty values are dropped")
	assert.Nil(t, caps.Get("Rate mode"))
}

func TestParseCapabilities_Resource(t *testing.T) {
	out := `cisco_interface_capabilities { 'ethernet1/4':
  Speed  => '100,1000,10000',
  Duplex => 'half,full,auto',
}`
	caps := ParseCapabilities(out)
	assert.Equal(t, []string{"100", "1000", "10000"}, caps.Get("speed"))
	assert.Equal(t, []string{"half", "full", "auto"}, caps.Get("Duplex"))
}

func TestCandidates(t *testing.T) {
	caps := CapabilityTable{"Speed": {"100", "1000", "auto"}, "Duplex": {"full"}}
	assert.Equal(t, []string{"100", "1000", "auto"}, caps.Candidates("Speed", "auto"))
	assert.Equal(t, []string{"full", "auto"}, caps.Candidates("duplex", "auto"))
	assert.Equal(t, []string{"1600"}, caps.Candidates("MTU", "1600"))
	assert.Empty(t, caps.Candidates("MTU"))
}

func TestFindInterface(t *testing.T) {
	brief := strings.Join([]string{
		"--------------------------------------------------------------------------------",
		"Ethernet      VLAN    Type Mode   Status  Reason                   Speed     Port",
		"Interface                                                                    Ch #",
		"--------------------------------------------------------------------------------",
		"Eth1/1        1       eth  trunk  up      none                       10G(D) 10",
		"Eth1/2        1       eth  trunk  up      none                       10G(D) 10",
		"Eth1/3        1       eth  access down    SFP not inserted           10G(D) --",
		"Eth1/4        1       eth  access down    SFP not inserted           10G(D) --",
		"",
		"mgmt0  --           up     10.1.1.1                              1000     1500",
	}, "\n")

	got, err := FindInterface(brief)
	require.NoError(t, err)
	assert.Equal(t, "ethernet1/3", got)
}

func TestFindInterface_Breakout(t *testing.T) {
	got, err := FindInterface("Eth1/49/1      1       eth  access down    Link not connected       auto(D) --\n")
	require.NoError(t, err)
	assert.Equal(t, "ethernet1/49/1", got)
}

func TestFindInterface_NoneUsable(t *testing.T) {
	_, err := FindInterface("Eth1/1  1  eth  trunk  up  none  10G(D) 10\nmgmt0 -- up 10.1.1.1 1000 1500\n")
	require.Error(t, err)
	var skip *util.SkipError
	assert.True(t, errors.As(err, &skip))
}

func TestIsInterface(t *testing.T) {
	for _, name := range []string{"ethernet1/3", "Ethernet1/49/1", "eth1/1", "port-channel10", "loopback0", "vlan100", "mgmt0", "ethernet1/1.20"} {
		assert.True(t, IsInterface(name), name)
	}
	for _, name := range []string{"", "128", "blue", "ethernet", "interface ethernet1/1"} {
		assert.False(t, IsInterface(name), name)
	}
}
