package execx

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_CapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}

	out, err := NewRunner().Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestExecRunner_AttachesStderrOnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}

	_, err := NewRunner().Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh failed")
	assert.Contains(t, err.Error(), "broken")
}

func TestExecRunner_HonorsTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}

	r := &ExecRunner{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecRunner_TimeoutSurvivesPipeHoldingChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}

	// The grandchild inherits stdout and outlives the killed shell; Wait must
	// not block until its pipe closes.
	r := &ExecRunner{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), "sh", "-c", "sleep 5 & wait")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecRunner_LookPath(t *testing.T) {
	r := NewRunner()
	assert.True(t, r.LookPath("sh"))
	assert.False(t, r.LookPath("definitely-not-a-real-tool-43a1"))
}

func TestFakeRunner_PrefersExactKeyOverCatchAll(t *testing.T) {
	f := NewFakeRunner()
	f.Results["docker ps"] = FakeResult{Output: "exact"}
	f.Results["docker"] = FakeResult{Output: "catch-all"}

	out, err := f.Run(context.Background(), "docker", "ps")
	require.NoError(t, err)
	assert.Equal(t, "exact", out)

	out, err = f.Run(context.Background(), "docker", "inspect", "x")
	require.NoError(t, err)
	assert.Equal(t, "catch-all", out)

	_, err = f.Run(context.Background(), "podman", "ps")
	require.Error(t, err)
}

func TestFakeRunner_MissingToolsFailLookPath(t *testing.T) {
	f := NewFakeRunner()
	f.Missing["mkcert"] = true

	assert.False(t, f.LookPath("mkcert"))
	assert.True(t, f.LookPath("openssl"))
}
