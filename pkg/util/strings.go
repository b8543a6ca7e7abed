package util

import "strings"

// SplitCommaSeparated splits a comma-separated string and trims whitespace from each element.
// Empty input returns nil.
func SplitCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// ShellQuote quotes a path for safe use in remote shell commands.
// Paths starting with ~/ preserve tilde expansion while quoting the rest.
// Other paths are fully single-quoted.
func ShellQuote(path string) string {
	if strings.HasPrefix(path, "~/") {
		return "~/" + SingleQuote(path[2:])
	}
	return SingleQuote(path)
}

// SingleQuote wraps a string in single quotes, escaping any embedded single quotes.
func SingleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// JoinCLI joins device CLI commands into one " ; " separated command line,
// dropping empty entries.
func JoinCLI(cmds ...string) string {
	var parts []string
	for _, c := range cmds {
		c = strings.TrimSpace(c)
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ; ")
}

// SplitCLI splits a " ; " separated command line back into commands.
func SplitCLI(line string) []string {
	var out []string
	for _, c := range strings.Split(line, ";") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
