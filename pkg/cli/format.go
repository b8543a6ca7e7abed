// Package cli provides shared formatting helpers for the provtest CLI.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + reset
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("\033[31m", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("\033[2m", s) }

// Result colors a result word: PASS and ok green, SKIP yellow, FAIL, ERROR
// and failed red. Other words are returned unchanged.
func Result(word string) string {
	switch strings.ToUpper(word) {
	case "PASS", "OK":
		return Green(word)
	case "SKIP":
		return Yellow(word)
	case "FAIL", "FAILED", "ERROR":
		return Red(word)
	}
	return word
}

// DotPad pads name with dots to the given visible width. ANSI codes in name
// take no width.
//
//	DotPad("cisco_vlan", 20) == "cisco_vlan ........."
func DotPad(name string, width int) string {
	n := visualLen(name)
	if width <= 0 || n >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-n-1)
}
