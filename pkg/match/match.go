// Package match verifies captured command output against expected property
// values or raw regular expressions.
package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/util"
)

// Expectations is either a list of patterns or an ordered property set.
// Build one with Patterns or FromProperties.
type Expectations struct {
	patterns []*regexp.Regexp
}

// Patterns compiles raw regular expressions in order.
func Patterns(exprs ...string) (Expectations, error) {
	var ex Expectations
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return Expectations{}, fmt.Errorf("compile pattern %q: %w", e, err)
		}
		ex.patterns = append(ex.patterns, re)
	}
	return ex, nil
}

// MustPatterns is Patterns that panics on a bad expression. Test helper.
func MustPatterns(exprs ...string) Expectations {
	ex, err := Patterns(exprs...)
	if err != nil {
		panic(err)
	}
	return ex
}

// FromProperties converts expected property values to patterns of the form
// name\s+=>\s+'?value'?. Nil-valued properties are not expected.
func FromProperties(props manifest.Properties) Expectations {
	var ex Expectations
	for _, prop := range props {
		if prop.Value == nil {
			continue
		}
		ex.patterns = append(ex.patterns, regexp.MustCompile(PropertyPattern(prop.Name, prop.Value)))
	}
	return ex
}

// Len returns the number of patterns.
func (e Expectations) Len() int { return len(e.patterns) }

// Strings returns the pattern sources in order.
func (e Expectations) Strings() []string {
	out := make([]string, len(e.patterns))
	for i, re := range e.patterns {
		out[i] = re.String()
	}
	return out
}

// PropertyPattern returns the read-syntax pattern for name => value as printed
// by the resource introspection command.
func PropertyPattern(name manifest.Name, value any) string {
	key := regexp.QuoteMeta(string(name))
	if s, ok := value.(string); ok {
		switch s {
		case manifest.IgnoreValue:
			return key + `\s+=>`
		case "":
			return key + `\s+=>\s+['"]{2}`
		}
	}
	return key + `\s+=>\s+'?` + valuePattern(value) + `'?`
}

// valuePattern renders value in read syntax. Lists print as ['a', 'b'] and
// hashes as {'k' => 'v'}; both may wrap across lines, so brackets and
// separators tolerate whitespace.
func valuePattern(value any) string {
	switch v := value.(type) {
	case []any, []string:
		return listPattern(v)
	case map[string]any:
		return hashPattern(v)
	case string:
		return regexp.QuoteMeta(v)
	default:
		return regexp.QuoteMeta(fmt.Sprint(v))
	}
}

// itemPattern matches one list element or hash value.
func itemPattern(item any) string {
	switch v := item.(type) {
	case []any, []string:
		return listPattern(v)
	case map[string]any:
		return hashPattern(v)
	case string:
		return quoted(v)
	default:
		return `'?` + regexp.QuoteMeta(fmt.Sprint(v)) + `'?`
	}
}

func listPattern(value any) string {
	var items []string
	switch v := value.(type) {
	case []string:
		for _, s := range v {
			items = append(items, quoted(s))
		}
	case []any:
		for _, item := range v {
			items = append(items, itemPattern(item))
		}
	}
	if len(items) == 0 {
		return `\[\s*\]`
	}
	return `\[\s*` + strings.Join(items, `\s*,\s*`) + `\s*\]`
}

// hashPattern matches entries in sorted key order, the order the manifest
// renderer writes them in.
func hashPattern(value map[string]any) string {
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = `['"]?` + regexp.QuoteMeta(k) + `['"]?\s*=>\s*` + itemPattern(value[k])
	}
	if len(items) == 0 {
		return `\{\s*\}`
	}
	return `\{\s*` + strings.Join(items, `\s*,\s*`) + `\s*,?\s*\}`
}

// quoted matches s inside either quote style; renderers differ.
func quoted(s string) string {
	return `['"]` + regexp.QuoteMeta(s) + `['"]`
}

var escapedQuotes = strings.NewReplacer(`\'`, `'`, `\"`, `'`)

// Scrub normalizes renderer-version differences: escaped quotes become plain
// single quotes.
func Scrub(output string) string {
	return escapedQuotes.Replace(output)
}

// Verify tests each pattern against output. With expectAbsent false every
// pattern must match; with expectAbsent true none may. The first violation is
// returned as a *util.MatchError.
func Verify(output string, expectations Expectations, expectAbsent bool) error {
	return VerifyWithLogger(util.Logger.WithField("check", "match"), output, expectations, expectAbsent)
}

// VerifyWithLogger is Verify logging through log.
func VerifyWithLogger(log logrus.FieldLogger, output string, expectations Expectations, expectAbsent bool) error {
	output = Scrub(output)
	for _, re := range expectations.patterns {
		found := re.MatchString(output)
		if found != expectAbsent {
			log.Debugf("Match %s :: PASS", re)
			continue
		}
		log.Debugf("Match %s :: FAIL", re)
		return &util.MatchError{Pattern: re.String(), Absent: expectAbsent, Output: output}
	}
	return nil
}
