package execx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner is a CommandRunner for tests. Results are keyed by the command
// name plus arguments joined with spaces; a key of just the command name acts
// as a catch-all for that tool.
type FakeRunner struct {
	mu       sync.Mutex
	Results  map[string]FakeResult
	Missing  map[string]bool // tools LookPath should report as absent
	Commands []string        // every invocation, in order

	// OnRun, when set, observes every invocation before the canned result is
	// returned. Tests use it to mimic tool side effects such as writing
	// certificate files.
	OnRun func(name string, args []string)
}

// FakeResult is a canned command outcome
type FakeResult struct {
	Output string
	Err    error
}

// NewFakeRunner creates an empty FakeRunner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Results: make(map[string]FakeResult),
		Missing: make(map[string]bool),
	}
}

// Run implements CommandRunner
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.Join(append([]string{name}, args...), " ")
	f.Commands = append(f.Commands, key)

	if f.OnRun != nil {
		f.OnRun(name, args)
	}

	if res, ok := f.Results[key]; ok {
		return res.Output, res.Err
	}
	if res, ok := f.Results[name]; ok {
		return res.Output, res.Err
	}
	return "", fmt.Errorf("no fake result for %q", key)
}

// LookPath implements CommandRunner
func (f *FakeRunner) LookPath(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Missing[name]
}

// CallCount returns how many invocations started with the given tool name
func (f *FakeRunner) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Commands {
		if c == name || strings.HasPrefix(c, name+" ") {
			n++
		}
	}
	return n
}
