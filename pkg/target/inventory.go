package target

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/transport"
	"github.com/newtron-network/provtest/pkg/util"
)

// Mode selects how manifests reach the device.
type Mode string

const (
	// ModeAgent runs "puppet agent -t" on the device against a master.
	ModeAgent Mode = "agent"
	// ModeAgentless runs "puppet device" on a proxy host.
	ModeAgentless Mode = "agentless"
)

// Host is an SSH endpoint.
type Host struct {
	Address  string        `yaml:"address"`
	Port     int           `yaml:"port,omitempty"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

func (h *Host) sshConfig() transport.SSHConfig {
	return transport.SSHConfig{
		Host:     h.Address,
		Port:     h.Port,
		User:     h.User,
		Password: h.Password,
		Timeout:  h.Timeout,
	}
}

// NXAPI is the device's HTTP CLI endpoint.
type NXAPI struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Device identifies the switch under test.
type Device struct {
	// Name is the device certname, used as "puppet device --target".
	Name string `yaml:"name"`
	// SSH reaches the device CLI directly; optional.
	SSH *Host `yaml:"ssh,omitempty"`
	// NXAPI reaches the device CLI over HTTP; optional, preferred over SSH.
	NXAPI *NXAPI `yaml:"nxapi,omitempty"`
}

// Inventory describes one test bed.
type Inventory struct {
	Mode Mode `yaml:"mode"`

	// Agent is the device itself in agent mode, or the proxy host running
	// "puppet device" in agentless mode.
	Agent *Host `yaml:"agent"`
	// Master holds the site manifest in agent mode.
	Master *Host `yaml:"master,omitempty"`

	Device Device `yaml:"device"`

	// VRF is the agent's management namespace ("sudo ip netns exec <vrf>").
	VRF string `yaml:"vrf,omitempty"`

	PuppetBin    string `yaml:"puppet_bin,omitempty"`
	ManifestPath string `yaml:"manifest_path,omitempty"`

	// Interface pins the interface used for {{interface}} titles.
	Interface string `yaml:"interface,omitempty"`
}

// LoadInventory reads and validates an inventory file. ${VAR} references
// are expanded from the environment, so passwords need not live in the file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory parses inventory YAML.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	inv.applyDefaults()
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (inv *Inventory) applyDefaults() {
	if inv.Mode == "" {
		inv.Mode = ModeAgent
	}
	if inv.PuppetBin == "" {
		inv.PuppetBin = manifest.DefaultPuppetBin
	}
}

// Validate checks that the inventory is usable for its mode.
func (inv *Inventory) Validate() error {
	vb := &util.ValidationBuilder{}
	switch inv.Mode {
	case ModeAgent:
		vb.Add(inv.Master != nil && inv.Master.Address != "", "agent mode requires master.address")
	case ModeAgentless:
		vb.Add(inv.Device.Name != "", "agentless mode requires device.name")
	default:
		vb.AddErrorf("unknown mode %q (agent or agentless)", inv.Mode)
	}
	vb.Add(inv.Agent != nil && inv.Agent.Address != "", "agent.address is required")
	hosts := []struct {
		role string
		host *Host
	}{
		{"agent", inv.Agent},
		{"master", inv.Master},
		{"device.ssh", inv.Device.SSH},
	}
	for _, h := range hosts {
		if h.host != nil && h.host.Address != "" && h.host.User == "" {
			vb.AddErrorf("%s.user is required", h.role)
		}
	}
	if n := inv.Device.NXAPI; n != nil {
		vb.Add(n.URL != "", "device.nxapi.url is required")
	}
	return vb.Build()
}

// Name is a display name for the target.
func (inv *Inventory) Name() string {
	if inv.Device.Name != "" {
		return inv.Device.Name
	}
	if inv.Agent != nil {
		return inv.Agent.Address
	}
	return ""
}
