package filter

import (
	"sort"

	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/util"
)

// Unsupported returns the names to strip for case id: the harness's
// unsupported list plus, when h is a VersionGater, every property whose
// minimum version is newer than the target firmware.
func Unsupported(env Env, id string, h Harness) []manifest.Name {
	if h == nil {
		return nil
	}
	var out []manifest.Name
	seen := make(map[manifest.Name]bool)
	add := func(n manifest.Name) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range h.UnsupportedProperties(env, id) {
		add(n)
	}

	gater, ok := h.(VersionGater)
	if !ok {
		return out
	}
	gates := gater.VersionUnsupportedProperties(env, id)
	if len(gates) == 0 {
		return out
	}
	version := env.Facts.Version
	if version == "" {
		util.Logger.Debugf("case %s: target version unknown, version gates not applied", id)
		return out
	}
	// Walk gates in a stable order so the log and result are deterministic.
	for _, name := range sortedNames(gates) {
		older, err := Older(version, gates[name])
		if err != nil {
			util.Warnf("case %s: version gate for %s: %v", id, name, err)
			continue
		}
		if older {
			util.Logger.Debugf("case %s: %s requires %s, target runs %s", id, name, gates[name], version)
			add(name)
		}
	}
	return out
}

// Supported returns a copy of props without the properties the target does
// not support. A nil props yields nil; filtering everything away yields an
// empty, non-nil set, which callers treat as "nothing to test".
func Supported(env Env, id string, props manifest.Properties, h Harness) manifest.Properties {
	if props == nil {
		return nil
	}
	return Without(props, Unsupported(env, id, h))
}

// Without returns a copy of props minus names. Nil stays nil.
func Without(props manifest.Properties, names []manifest.Name) manifest.Properties {
	if props == nil {
		return nil
	}
	out := props.Clone()
	for _, n := range names {
		out.Delete(n)
	}
	return out
}

func sortedNames(m map[manifest.Name]string) []manifest.Name {
	names := make([]manifest.Name, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
