package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/provtest/pkg/transport"
	"github.com/newtron-network/provtest/pkg/util"
)

// applier hides the difference between agent and agentless topologies.
type applier interface {
	apply(ctx context.Context, doc string) (*transport.Result, error)
	resourceCmd(resourceType, title string, assigns []string) string
	factsCmd() string
}

// agentApplier writes the document to the master's site manifest and runs
// the agent on the device inside its VRF namespace.
type agentApplier struct {
	t *Target

	manifestPath string
}

func (a *agentApplier) wrap(cmd string) string {
	if a.t.inv.VRF == "" {
		return cmd
	}
	return "sudo ip netns exec " + a.t.inv.VRF + " " + cmd
}

// sitePath resolves the well-known manifest path once per run.
func (a *agentApplier) sitePath(ctx context.Context) (string, error) {
	if a.manifestPath != "" {
		return a.manifestPath, nil
	}
	if p := a.t.inv.ManifestPath; p != "" {
		a.manifestPath = p
		return p, nil
	}
	res, err := a.t.master.Run(ctx, a.t.inv.PuppetBin+" config print manifest", nil)
	if err != nil {
		return "", fmt.Errorf("resolving manifest path: %w", err)
	}
	dir := strings.TrimSpace(res.Output)
	if res.ExitCode != 0 || dir == "" {
		return "", &util.TransportError{Op: "apply", Host: a.t.inv.Master.Address, Err: fmt.Errorf("puppet config print manifest exit %d: %s", res.ExitCode, dir)}
	}
	a.manifestPath = dir + "/site.pp"
	util.WithTarget(a.t.Name()).Debugf("site manifest is %s", a.manifestPath)
	return a.manifestPath, nil
}

func (a *agentApplier) apply(ctx context.Context, doc string) (*transport.Result, error) {
	path, err := a.sitePath(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.t.master.Run(ctx, "cat > "+util.ShellQuote(path), strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, &util.TransportError{Op: "apply", Host: a.t.inv.Master.Address, Err: fmt.Errorf("writing %s: exit %d: %s", path, res.ExitCode, res.Output)}
	}
	return a.t.agent.Run(ctx, a.wrap(a.t.inv.PuppetBin+" agent -t"), nil)
}

func (a *agentApplier) resourceCmd(resourceType, title string, assigns []string) string {
	return a.wrap(resourceCommand(a.t.inv.PuppetBin+" resource", resourceType, title, assigns))
}

func (a *agentApplier) factsCmd() string {
	return a.wrap(a.t.inv.PuppetBin + " facts --render-as json")
}

// agentlessApplier stages the document in a temp file on the proxy host
// and applies it with "puppet device".
type agentlessApplier struct {
	t *Target
}

func (a *agentlessApplier) device() string {
	return a.t.inv.PuppetBin + " device --target " + util.SingleQuote(a.t.inv.Device.Name)
}

func (a *agentlessApplier) apply(ctx context.Context, doc string) (res *transport.Result, err error) {
	mk, err := a.t.agent.Run(ctx, "mktemp /tmp/provtest-XXXXXX.pp", nil)
	if err != nil {
		return nil, fmt.Errorf("creating temp manifest: %w", err)
	}
	tmp := strings.TrimSpace(mk.Output)
	if mk.ExitCode != 0 || tmp == "" {
		return nil, &util.TransportError{Op: "apply", Host: a.t.inv.Agent.Address, Err: fmt.Errorf("mktemp exit %d: %s", mk.ExitCode, mk.Output)}
	}
	// The temp file goes on every exit path, including cancellation.
	defer func() {
		rm, rmErr := a.t.agent.Run(context.WithoutCancel(ctx), "rm -f "+util.ShellQuote(tmp), nil)
		if rmErr == nil && rm.ExitCode != 0 {
			rmErr = fmt.Errorf("exit %d: %s", rm.ExitCode, rm.Output)
		}
		if rmErr != nil {
			util.WithTarget(a.t.Name()).Warnf("removing %s: %v", tmp, rmErr)
			if err == nil {
				err = fmt.Errorf("removing temp manifest: %w", rmErr)
			}
		}
	}()

	wr, err := a.t.agent.Run(ctx, "cat > "+util.ShellQuote(tmp), strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("writing temp manifest: %w", err)
	}
	if wr.ExitCode != 0 {
		return nil, &util.TransportError{Op: "apply", Host: a.t.inv.Agent.Address, Err: fmt.Errorf("writing %s: exit %d", tmp, wr.ExitCode)}
	}
	return a.t.agent.Run(ctx, a.device()+" --apply "+util.ShellQuote(tmp), nil)
}

func (a *agentlessApplier) resourceCmd(resourceType, title string, assigns []string) string {
	return resourceCommand(a.device()+" --resource", resourceType, title, assigns)
}

func (a *agentlessApplier) factsCmd() string {
	return a.device() + " --facts"
}

func resourceCommand(prefix, resourceType, title string, assigns []string) string {
	parts := []string{prefix, resourceType}
	if title != "" {
		parts = append(parts, util.SingleQuote(title))
	}
	parts = append(parts, assigns...)
	return strings.Join(parts, " ")
}
