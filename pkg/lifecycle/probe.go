// Package lifecycle derives the sandbox's coarse lifecycle phase from the
// persisted identity and the liveness of dependent processes.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voiplab/sipbox/pkg/execx"
	"github.com/voiplab/sipbox/pkg/resilience"
)

// Probe lists the project's currently running dependent processes. It is a
// cheap existence check against the external process manager, not a health
// query; sipbox does not supervise processes.
type Probe interface {
	RunningServices(ctx context.Context) ([]string, error)
}

// DockerProbe lists running containers labeled with the project name
type DockerProbe struct {
	runner  execx.CommandRunner
	project string
}

// NewDockerProbe creates a probe for the given compose project
func NewDockerProbe(runner execx.CommandRunner, project string) *DockerProbe {
	return &DockerProbe{runner: runner, project: project}
}

// RunningServices implements Probe. The docker CLI occasionally loses a race
// with its own daemon socket right after boot, so the listing is retried
// briefly before giving up.
func (p *DockerProbe) RunningServices(ctx context.Context) ([]string, error) {
	var output string

	err := resilience.Retry(ctx, func() error {
		var runErr error
		output, runErr = p.runner.Run(ctx, "docker", "ps",
			"--filter", "label=com.docker.compose.project="+p.project,
			"--filter", "status=running",
			"--format", "{{.Names}}",
		)
		return runErr
	}, resilience.WithMaxRetries(2), resilience.WithInitialDelay(200*time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("failed to list running containers: %w", err)
	}

	var services []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			services = append(services, line)
		}
	}
	return services, nil
}
