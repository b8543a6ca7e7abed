// Package target wraps a test bed (automation host, optional master, and
// the device) behind one API for applying manifests, querying resources,
// and issuing raw device CLI.
package target

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/newtron-network/provtest/pkg/transport"
	"github.com/newtron-network/provtest/pkg/util"
)

// VshBin is the device's privileged CLI shell.
const VshBin = "/isan/bin/vsh"

// Target is a connected test bed.
type Target struct {
	inv *Inventory

	agent  transport.Transport
	master transport.Transport

	// cli carries raw device CLI when the device is reachable directly.
	cli   transport.Transport
	nxapi *transport.NXAPI

	applier applier
}

// Options supplies pre-built transports, mainly for tests.
type Options struct {
	Agent  transport.Transport
	Master transport.Transport
	CLI    transport.Transport
	NXAPI  *transport.NXAPI
}

// New builds a Target from an inventory and already-connected transports.
func New(inv *Inventory, opts Options) *Target {
	t := &Target{
		inv:    inv,
		agent:  opts.Agent,
		master: opts.Master,
		cli:    opts.CLI,
		nxapi:  opts.NXAPI,
	}
	if inv.Mode == ModeAgentless {
		t.applier = &agentlessApplier{t: t}
	} else {
		t.applier = &agentApplier{t: t}
	}
	return t
}

// PasswordFunc supplies a password when the inventory has none.
type PasswordFunc func(user, host string) (string, error)

// Connect dials every transport the inventory names. Missing passwords are
// requested from prompt once per user@host; prompt may be nil.
func Connect(ctx context.Context, inv *Inventory, prompt PasswordFunc) (*Target, error) {
	asked := make(map[string]string)
	dial := func(h *Host) (transport.Transport, error) {
		cfg := h.sshConfig()
		if cfg.Password == "" && prompt != nil {
			key := cfg.User + "@" + cfg.Host
			pw, ok := asked[key]
			if !ok {
				var err error
				if pw, err = prompt(cfg.User, cfg.Host); err != nil {
					return nil, err
				}
				asked[key] = pw
			}
			cfg.Password = pw
		}
		return transport.DialSSH(ctx, cfg)
	}

	var opts Options
	var opened transport.Group
	fail := func(err error) (*Target, error) {
		if cerr := opened.Close(); cerr != nil {
			util.Warnf("closing after failed connect: %v", cerr)
		}
		return nil, err
	}

	agent, err := dial(inv.Agent)
	if err != nil {
		return fail(err)
	}
	opts.Agent = agent
	opened = append(opened, agent)

	if inv.Mode == ModeAgent {
		if inv.Master.Address == inv.Agent.Address && inv.Master.User == inv.Agent.User {
			opts.Master = agent
		} else {
			master, err := dial(inv.Master)
			if err != nil {
				return fail(err)
			}
			opts.Master = master
			opened = append(opened, master)
		}
	}

	if n := inv.Device.NXAPI; n != nil {
		opts.NXAPI = transport.NewNXAPI(transport.NXAPIConfig{
			URL:      n.URL,
			User:     n.User,
			Password: n.Password,
			Insecure: n.Insecure,
		})
	} else if inv.Device.SSH != nil {
		cli, err := dial(inv.Device.SSH)
		if err != nil {
			return fail(err)
		}
		opts.CLI = cli
	}

	util.WithTarget(inv.Name()).Infof("Connected (%s mode)", inv.Mode)
	return New(inv, opts), nil
}

// Name is the target's display name.
func (t *Target) Name() string { return t.inv.Name() }

// Mode returns the connection mode.
func (t *Target) Mode() Mode { return t.inv.Mode }

// Inventory returns the inventory the target was built from.
func (t *Target) Inventory() *Inventory { return t.inv }

// PuppetBin is the Puppet binary on the automation host.
func (t *Target) PuppetBin() string { return t.inv.PuppetBin }

// Close closes every transport, aggregating errors.
func (t *Target) Close() error {
	g := transport.Group{t.agent, t.master, t.cli}
	if t.nxapi != nil {
		g = append(g, t.nxapi)
	}
	return g.Close()
}

// Run executes cmd as-is on the automation host.
func (t *Target) Run(ctx context.Context, cmd string) (*transport.Result, error) {
	if t.agent == nil {
		return nil, util.ErrNotConnected
	}
	return t.agent.Run(ctx, cmd, nil)
}

// Exec runs cmd on the automation host and returns its output.
func (t *Target) Exec(ctx context.Context, cmd string) (string, error) {
	res, err := t.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Apply submits a manifest document and returns the agent's result.
func (t *Target) Apply(ctx context.Context, doc string) (*transport.Result, error) {
	if t.agent == nil {
		return nil, util.ErrNotConnected
	}
	return t.applier.apply(ctx, doc)
}

// ResourceCommand returns the introspection command for a resource, wrapped
// for the connection mode. An empty title lists every instance; assigns
// ("name=value") turn it into a one-shot change.
func (t *Target) ResourceCommand(resourceType, title string, assigns ...string) string {
	return t.applier.resourceCmd(resourceType, title, assigns)
}

// Resource prints the current state of one resource.
func (t *Target) Resource(ctx context.Context, resourceType, title string) (string, error) {
	return t.Exec(ctx, t.ResourceCommand(resourceType, title))
}

// FactsJSON returns the facts document. Log lines around the JSON body are
// dropped.
func (t *Target) FactsJSON(ctx context.Context) (string, error) {
	res, err := t.Run(ctx, t.applier.factsCmd())
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &util.TransportError{Op: "exec", Host: t.Name(), Err: fmt.Errorf("facts exit %d: %s", res.ExitCode, res.Output)}
	}
	out := res.Output
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("facts output has no JSON document")
	}
	return out[start : end+1], nil
}

// VshCommand wraps device CLI for the privileged shell.
func VshCommand(cli string) string {
	return VshBin + " -c " + util.SingleQuote(cli)
}

// Show runs a device show command.
func (t *Target) Show(ctx context.Context, cli string) (string, error) {
	res, err := t.deviceCLI(ctx, cli, false)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Config applies raw configuration commands to the device.
func (t *Target) Config(ctx context.Context, cmds []string) (*transport.Result, error) {
	if len(cmds) == 0 {
		return &transport.Result{}, nil
	}
	return t.deviceCLI(ctx, util.JoinCLI(cmds...), true)
}

func (t *Target) deviceCLI(ctx context.Context, cli string, conf bool) (*transport.Result, error) {
	switch {
	case t.nxapi != nil:
		if conf {
			return t.nxapi.Config(ctx, util.SplitCLI(cli))
		}
		return t.nxapi.Show(ctx, cli)
	case t.cli != nil:
		if conf {
			cli = "conf t ; " + cli
		}
		return t.cli.Run(ctx, cli, nil)
	case t.inv.Mode == ModeAgent && t.agent != nil:
		if conf {
			cli = "conf t ; " + cli
		}
		return t.agent.Run(ctx, VshCommand(cli), nil)
	}
	return nil, fmt.Errorf("no device CLI path: configure device.nxapi or device.ssh for %s mode", t.inv.Mode)
}

var titleLine = regexp.MustCompile(`(?m)^\s*[a-z_]+\s*\{\s*'([^']+)'\s*:`)

// Titles lists every instance title of a resource type.
func (t *Target) Titles(ctx context.Context, resourceType string) ([]string, error) {
	out, err := t.Exec(ctx, t.ResourceCommand(resourceType, ""))
	if err != nil {
		return nil, err
	}
	var titles []string
	for _, m := range titleLine.FindAllStringSubmatch(out, -1) {
		titles = append(titles, m[1])
	}
	return titles, nil
}

// AbsentCleanup removes every instance of resourceType. Instances the
// device refuses to remove are logged and left.
func (t *Target) AbsentCleanup(ctx context.Context, resourceType string) error {
	titles, err := t.Titles(ctx, resourceType)
	if err != nil {
		return err
	}
	log := util.WithTarget(t.Name())
	for _, title := range titles {
		out, err := t.Exec(ctx, t.ResourceCommand(resourceType, title, "ensure=absent"))
		if err != nil {
			return err
		}
		if strings.Contains(out, "Error:") {
			log.Debugf("cleanup %s '%s' refused: %s", resourceType, title, strings.TrimSpace(out))
			continue
		}
		log.Debugf("cleanup %s '%s'", resourceType, title)
	}
	return nil
}
