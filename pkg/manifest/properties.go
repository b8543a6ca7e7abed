// Package manifest renders Puppet manifests for a single resource under test
// and holds the ordered property model shared by the rest of provtest.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Name is the canonical key type for resource properties. Suites, harness
// hooks and expectations all use it, so a property is never keyed two ways.
type Name string

// IgnoreValue is the sentinel expectation meaning "the property must be
// present, any value".
const IgnoreValue = "ignore_value"

// Property is one name/value pair. A nil Value means "not set" and is never
// rendered; an empty string or empty list is an explicit value.
type Property struct {
	Name  Name
	Value any
}

// Properties is an ordered property list. Order is the authoring order from
// the suite file, which makes rendering byte-deterministic.
//
// A nil Properties means "no properties given"; an empty non-nil Properties
// means "everything was filtered away".
type Properties []Property

// Get returns the value for name and whether it is present.
func (p Properties) Get(name Name) (any, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is present.
func (p Properties) Has(name Name) bool {
	_, ok := p.Get(name)
	return ok
}

// Set replaces the value of name in place, or appends it.
func (p *Properties) Set(name Name, value any) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Property{Name: name, Value: value})
}

// Delete removes name if present and reports whether it was.
func (p *Properties) Delete(name Name) bool {
	for i := range *p {
		if (*p)[i].Name == name {
			*p = append((*p)[:i], (*p)[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the property names in order.
func (p Properties) Names() []Name {
	names := make([]Name, len(p))
	for i, prop := range p {
		names[i] = prop.Name
	}
	return names
}

// Clone returns a copy that can be modified without touching p. List values
// are copied one level deep. Clone of nil is nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for i, prop := range p {
		out[i] = Property{Name: prop.Name, Value: cloneValue(prop.Value)}
	}
	return out
}

// Merge returns a clone of p with every property of other set on top.
func (p Properties) Merge(other Properties) Properties {
	out := p.Clone()
	if out == nil {
		out = Properties{}
	}
	for _, prop := range other {
		out.Set(prop.Name, cloneValue(prop.Value))
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// UnmarshalYAML implements yaml.Unmarshaler. It decodes a mapping node while
// keeping the key order; "~" or null values decode to a nil Value.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	props := make(Properties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var value any
		if err := val.Decode(&value); err != nil {
			return fmt.Errorf("line %d: property %s: %w", val.Line, key.Value, err)
		}
		props.Set(Name(key.Value), value)
	}
	*p = props
	return nil
}
