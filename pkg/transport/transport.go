// Package transport runs commands against the automation host or the
// device itself. Every implementation reports a non-zero exit code as a
// Result, never as an error; errors mean the command could not be run.
package transport

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Result is the outcome of one command.
type Result struct {
	Output   string
	ExitCode int
}

// Transport executes commands on one host.
type Transport interface {
	// Run executes cmd. stdin may be nil.
	Run(ctx context.Context, cmd string, stdin io.Reader) (*Result, error)
	Close() error
}

// Group closes several transports together.
type Group []Transport

// Close closes every member and returns all close errors aggregated.
// A nil member is skipped; a transport shared by two roles is closed once.
func (g Group) Close() error {
	var result *multierror.Error
	seen := make(map[Transport]bool)
	for _, t := range g {
		if t == nil || seen[t] {
			continue
		}
		seen[t] = true
		if err := t.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
