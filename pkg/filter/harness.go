// Package filter decides which properties of a test case apply to the
// current target, through pluggable harness hooks.
package filter

import (
	"github.com/newtron-network/provtest/pkg/facts"
	"github.com/newtron-network/provtest/pkg/manifest"
)

// Env is the target context a hook decides on.
type Env struct {
	Facts facts.Snapshot

	// Flags holds suite resource-probe results, such as
	// "vn_segment_unsupported", keyed by probe name.
	Flags map[string]bool
}

// Flag reports whether the named resource probe came back positive.
func (e Env) Flag(name string) bool {
	return e.Flags[name]
}

// Harness is the per-suite hook set. Implementations are composed into a
// suite; BaseHarness supplies no-op defaults.
type Harness interface {
	// UnsupportedProperties returns properties the target cannot manage for
	// case id.
	UnsupportedProperties(env Env, id string) []manifest.Name

	// DependencyManifest returns prerequisite manifest text placed ahead of
	// the resource under test, or "".
	DependencyManifest(env Env, id string) string

	// TestHarnessDependencies returns raw device CLI commands that must be
	// applied before case id, or nil.
	TestHarnessDependencies(env Env, id string) []string
}

// VersionGater is an optional Harness extension mapping properties to the
// minimum firmware version that supports them.
type VersionGater interface {
	VersionUnsupportedProperties(env Env, id string) map[manifest.Name]string
}

// BaseHarness implements Harness with no unsupported properties, no
// dependency manifest and no CLI setup.
type BaseHarness struct{}

func (BaseHarness) UnsupportedProperties(Env, string) []manifest.Name { return nil }

func (BaseHarness) DependencyManifest(Env, string) string { return "" }

func (BaseHarness) TestHarnessDependencies(Env, string) []string { return nil }

var _ Harness = BaseHarness{}
