package drift

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voiplab/sipbox/pkg/resilience"
)

// Watcher invokes the reconciler periodically. The core itself has no
// scheduler; this is the external-caller loop, kept in-process for the
// `reconcile --watch` command.
type Watcher struct {
	reconciler *Reconciler
	verbose    bool

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher around a reconciler. It arms the certificate
// manager's circuit breaker so a persistently failing trust tool stops being
// re-invoked (and re-prompting) on every tick.
func NewWatcher(reconciler *Reconciler, verbose bool) *Watcher {
	reconciler.certs.Breaker = resilience.NewServiceBreaker("mkcert",
		resilience.WithOnStateChange(func(name, from, to string) {
			if verbose {
				fmt.Printf("  ⚠ %s breaker %s → %s\n", name, from, to)
			}
		}),
	)

	return &Watcher{
		reconciler: reconciler,
		verbose:    verbose,
		stopCh:     make(chan struct{}),
	}
}

// Start runs reconciliation on the given interval until the context is
// cancelled or Stop is called. onResult is invoked after every successful
// cycle; cycle errors are reported and the loop continues.
func (w *Watcher) Start(ctx context.Context, interval time.Duration, onResult func(*Result)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if w.verbose {
		fmt.Printf("→ Watching for drift (interval: %s)\n", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial check before the first tick.
	w.runCycle(ctx, onResult)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.runCycle(ctx, onResult)
		}
	}
}

// Stop stops the watch loop
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopCh)
	}
}

func (w *Watcher) runCycle(ctx context.Context, onResult func(*Result)) {
	res, err := w.reconciler.ReconcileOnce(ctx)
	if err != nil {
		if w.verbose {
			fmt.Printf("  ⚠ Reconcile cycle failed: %v\n", err)
		}
		return
	}
	if onResult != nil {
		onResult(res)
	}
}
