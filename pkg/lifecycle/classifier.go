package lifecycle

import (
	"context"

	"github.com/voiplab/sipbox/pkg/config"
)

// Phase is the derived lifecycle state. It is computed on every query, never
// stored.
type Phase string

const (
	// Uninitialized: no persisted identity exists. There is nothing to
	// drift from, so reconciliation is meaningless in this phase.
	Uninitialized Phase = "uninitialized"
	// Stopped: an identity exists but no dependent process is alive
	Stopped Phase = "stopped"
	// Running: an identity exists and at least one dependent process is
	// observably alive. Destructive regeneration needs explicit
	// confirmation in this phase.
	Running Phase = "running"
)

// Classifier derives the lifecycle phase
type Classifier struct {
	store *config.Store
	probe Probe
}

// NewClassifier creates a classifier over the identity store and a liveness
// probe
func NewClassifier(store *config.Store, probe Probe) *Classifier {
	return &Classifier{store: store, probe: probe}
}

// Classify returns the current phase. A failing probe is treated as "nothing
// alive": the probe consults an external manager that may itself be down,
// which tells us nothing about the persisted identity.
func (c *Classifier) Classify(ctx context.Context) Phase {
	if !c.store.Exists() {
		return Uninitialized
	}

	services, err := c.probe.RunningServices(ctx)
	if err != nil || len(services) == 0 {
		return Stopped
	}
	return Running
}
