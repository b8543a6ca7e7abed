// Package testutil provides test helpers: a scripted in-memory transport
// and paths into the example suites.
package testutil

import (
	"context"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/provtest/pkg/transport"
)

// Call records one command seen by a FakeTransport.
type Call struct {
	Cmd   string
	Stdin string
}

type rule struct {
	substr  string
	results []Reply
	next    int
}

// Reply is one scripted response.
type Reply struct {
	Output   string
	ExitCode int
	Err      error
}

// FakeTransport answers commands from a script. A command is matched by
// the first rule whose substring it contains; each rule replays its replies
// in order and then repeats the last one. Unmatched commands succeed with
// empty output.
type FakeTransport struct {
	mu     sync.Mutex
	rules  []*rule
	calls  []Call
	Closed bool
}

// NewFake returns an empty FakeTransport.
func NewFake() *FakeTransport {
	return &FakeTransport{}
}

// On adds a rule for commands containing substr.
func (f *FakeTransport) On(substr string, replies ...Reply) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(replies) == 0 {
		replies = []Reply{{}}
	}
	f.rules = append(f.rules, &rule{substr: substr, results: replies})
	return f
}

// Run implements transport.Transport.
func (f *FakeTransport) Run(_ context.Context, cmd string, stdin io.Reader) (*transport.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var in string
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		in = string(b)
	}
	f.calls = append(f.calls, Call{Cmd: cmd, Stdin: in})

	for _, r := range f.rules {
		if !strings.Contains(cmd, r.substr) {
			continue
		}
		reply := r.results[r.next]
		if r.next < len(r.results)-1 {
			r.next++
		}
		if reply.Err != nil {
			return nil, reply.Err
		}
		return &transport.Result{Output: reply.Output, ExitCode: reply.ExitCode}, nil
	}
	return &transport.Result{}, nil
}

// Close implements transport.Transport.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Calls returns every command seen so far.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the command strings seen so far.
func (f *FakeTransport) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Cmd
	}
	return out
}

// CallsMatching returns the calls whose command contains substr.
func (f *FakeTransport) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.Cmd, substr) {
			out = append(out, c)
		}
	}
	return out
}

var _ transport.Transport = (*FakeTransport)(nil)

// ProjectRoot returns the absolute path to the project root.
func ProjectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	dir := filepath.Dir(thisFile)
	return filepath.Join(dir, "..", "..")
}

// SuitesPath returns the path to the bundled example suites.
func SuitesPath() string {
	return filepath.Join(ProjectRoot(), "suites")
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
