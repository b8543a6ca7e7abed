package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/provtest/pkg/util"
)

// Ensure is the desired resource state.
type Ensure string

const (
	Present Ensure = "present"
	Absent  Ensure = "absent"
)

// DefaultPuppetBin is the agent-side Puppet binary.
const DefaultPuppetBin = "/opt/puppetlabs/bin/puppet"

// Resource identifies one resource instance to render.
type Resource struct {
	Type   string
	Title  string
	Ensure Ensure
	Props  Properties
}

// Options controls rendering of the document and the query command.
type Options struct {
	// Node is the node scope name; "default" when empty.
	Node string

	// Dependency is extra manifest text placed inside the node block ahead of
	// the resource (prerequisite resources).
	Dependency string

	// Query builds the introspection command for the resource. When nil,
	// QueryCommand with DefaultPuppetBin is used.
	Query func(resourceType, title string) string

	// NoEnsure omits the ensure line, for types that are not ensurable.
	NoEnsure bool
}

// Render returns the manifest document for r and the command that prints r's
// current state. Identical inputs always yield identical output.
func Render(r Resource, opts Options) (document, query string) {
	node := opts.Node
	if node == "" {
		node = "default"
	}
	ensure := r.Ensure
	if ensure == "" {
		ensure = Present
	}

	var b strings.Builder
	fmt.Fprintf(&b, "node %s {\n", quote(node))
	if dep := strings.TrimSpace(opts.Dependency); dep != "" {
		for _, line := range strings.Split(dep, "\n") {
			fmt.Fprintf(&b, "  %s\n", strings.TrimRight(line, " \t"))
		}
	}
	fmt.Fprintf(&b, "  %s { %s:\n", r.Type, quote(r.Title))
	if !opts.NoEnsure {
		fmt.Fprintf(&b, "    ensure => %s,\n", ensure)
	}
	if ensure != Absent {
		for _, prop := range r.Props {
			if prop.Value == nil || prop.Name == "ensure" {
				continue
			}
			fmt.Fprintf(&b, "    %s => %s,\n", prop.Name, FormatValue(prop.Value))
		}
	}
	b.WriteString("  }\n}\n")

	if opts.Query != nil {
		query = opts.Query(r.Type, r.Title)
	} else {
		query = QueryCommand(DefaultPuppetBin, r.Type, r.Title)
	}
	return b.String(), query
}

// QueryCommand returns "<bin> resource <type> '<title>'".
func QueryCommand(puppetBin, resourceType, title string) string {
	return fmt.Sprintf("%s resource %s %s", puppetBin, resourceType, util.SingleQuote(title))
}

// FormatValue renders v in manifest (write) syntax: strings are quoted,
// numbers and booleans are verbatim, lists become Puppet arrays.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		items := make([]string, len(val))
		for i, s := range val {
			items[i] = quote(s)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = FormatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = quote(k) + " => " + FormatValue(val[k])
		}
		return "{" + strings.Join(items, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}

// quote single-quotes s for manifest syntax.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
