// Package drift detects when the host's network identity has moved out from
// under the persisted configuration and reconciles every derived artifact
// when it has.
package drift

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/voiplab/sipbox/pkg/address"
	"github.com/voiplab/sipbox/pkg/cert"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/telemetry"
	"github.com/voiplab/sipbox/pkg/zone"
)

// Status is the reconciliation state machine position
type Status string

const (
	// StatusUnchanged: the detected primary matches the persisted one;
	// nothing was touched.
	StatusUnchanged Status = "unchanged"
	// StatusDrifted: a mismatch was observed. Intermediate; a result
	// carries it only when reconciliation failed partway.
	StatusDrifted Status = "drifted"
	// StatusReconciled: artifacts were regenerated against the new
	// identity.
	StatusReconciled Status = "reconciled"
)

// ErrNotInitialized is returned when reconciliation is invoked before any
// identity was provisioned. There is nothing to drift from.
var ErrNotInitialized = errors.New("no persisted identity; run init first")

// AddressDetector discovers the host's primary address. Satisfied by
// address.Detector.
type AddressDetector interface {
	DetectPrimary(ctx context.Context) netip.Addr
	DetectPrimaryFresh(ctx context.Context) netip.Addr
}

// Result describes one reconciliation cycle
type Result struct {
	Status    Status
	Previous  netip.Addr // invalid on first provision
	Current   netip.Addr
	Set       address.Set
	Trust     cert.TrustClass
	Restarts  []string // services that must restart to observe new artifacts
	Warnings  []string
	CheckedAt time.Time
	Duration  time.Duration
}

// DriftDetected reports whether this cycle observed an identity change
func (r *Result) DriftDetected() bool {
	return r.Status != StatusUnchanged
}

// Reconciler compares persisted identity against freshly detected values and
// regenerates all derived artifacts on mismatch. It has no scheduler of its
// own and never reconciles on reads: every cycle is an explicit invocation,
// and callers must serialize them.
type Reconciler struct {
	cfg      *config.Config
	store    *config.Store
	detector AddressDetector
	zones    *zone.Generator
	certs    *cert.Manager
	verbose  bool
}

// NewReconciler creates a reconciler
func NewReconciler(cfg *config.Config, store *config.Store, detector AddressDetector, zones *zone.Generator, certs *cert.Manager, verbose bool) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		store:    store,
		detector: detector,
		zones:    zones,
		certs:    certs,
		verbose:  verbose,
	}
}

// ReconcileOnce runs one cycle: detect fresh, compare, and regenerate on
// drift. Safe to invoke repeatedly; a second drift mid-cycle is simply
// observed by the next invocation.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.TraceReconcile(ctx, r.cfg.Project)
	defer span.End()

	start := time.Now()
	res := &Result{CheckedAt: start}

	if !r.store.Exists() {
		return nil, ErrNotInitialized
	}

	values, err := r.store.Load()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	persisted, perr := netip.ParseAddr(values[config.KeyHostIP])
	if perr == nil {
		res.Previous = persisted
	}

	res.Current = r.detector.DetectPrimaryFresh(ctx)
	telemetry.SetAttribute(ctx, "reconcile.current", res.Current.String())

	if perr == nil && persisted == res.Current {
		res.Status = StatusUnchanged
		res.Duration = time.Since(start)
		if r.verbose {
			fmt.Printf("  Identity unchanged (%s)\n", res.Current)
		}
		return res, nil
	}

	res.Status = StatusDrifted
	if r.verbose {
		if perr == nil {
			fmt.Printf("  ⚠ Drift detected: %s → %s\n", persisted, res.Current)
		} else {
			fmt.Printf("  ⚠ Persisted identity unreadable, regenerating\n")
		}
	}

	if err := r.apply(ctx, res); err != nil {
		telemetry.RecordError(ctx, err)
		res.Duration = time.Since(start)
		return res, err
	}

	res.Status = StatusReconciled
	res.Duration = time.Since(start)
	return res, nil
}

// Provision derives and persists a complete identity from scratch. With
// reuse set, a previously persisted primary address is kept when present;
// otherwise detection runs fresh.
func (r *Reconciler) Provision(ctx context.Context, reuse bool) (*Result, error) {
	ctx, span := telemetry.TraceReconcile(ctx, r.cfg.Project)
	defer span.End()

	start := time.Now()
	res := &Result{CheckedAt: start, Status: StatusDrifted}

	if reuse {
		res.Current = r.detector.DetectPrimary(ctx)
	} else {
		res.Current = r.detector.DetectPrimaryFresh(ctx)
	}

	if err := r.apply(ctx, res); err != nil {
		telemetry.RecordError(ctx, err)
		return res, err
	}

	res.Status = StatusReconciled
	res.Duration = time.Since(start)
	return res, nil
}

// apply regenerates every artifact derived from res.Current: secondary
// addresses, certificate bundle, zone document, and the identity store. The
// store is written last so any earlier failure leaves the previous identity
// intact as the last known good.
func (r *Reconciler) apply(ctx context.Context, res *Result) error {
	_, span := telemetry.TracePhase(ctx, "allocate")
	roles := make([]address.Role, len(r.cfg.Roles))
	for i, role := range r.cfg.Roles {
		roles[i] = address.Role{Name: role.Name, Offset: role.Offset}
	}
	secondaries, err := address.AllocateSecondaries(res.Current, roles)
	span.End()
	if err != nil {
		return fmt.Errorf("address allocation failed: %w", err)
	}
	res.Set = address.Set{Primary: res.Current, Secondary: secondaries}

	certCtx, span := telemetry.TracePhase(ctx, "cert")
	bundle, err := r.certs.Ensure(certCtx, res.Set)
	span.End()
	if err != nil {
		return fmt.Errorf("certificate lifecycle failed: %w", err)
	}
	res.Trust = bundle.Trust
	res.Warnings = append(res.Warnings, bundle.Warnings...)

	_, span = telemetry.TracePhase(ctx, "zone")
	document, err := r.zones.Render(res.Set)
	if err == nil {
		err = r.zones.Write(document)
	}
	span.End()
	if err != nil {
		return fmt.Errorf("zone generation failed: %w", err)
	}

	_, span = telemetry.TracePhase(ctx, "persist")
	err = r.store.Save(r.identityValues(res.Set, bundle))
	span.End()
	if err != nil {
		return err
	}

	artifacts := []string{"zone"}
	if bundle.Rotated {
		artifacts = append(artifacts, "cert")
	}
	res.Restarts = r.cfg.RestartTargets(artifacts...)

	return nil
}

// identityValues builds the full overwrite of the identity store
func (r *Reconciler) identityValues(set address.Set, bundle *cert.Bundle) map[string]string {
	values := map[string]string{
		config.KeyHostIP:     set.Primary.String(),
		config.KeyBaseDomain: r.cfg.BaseDomain,
	}
	for role, addr := range set.Secondary {
		values[config.RoleKey(role)] = addr.String()
	}
	for k, v := range bundle.EnvValues() {
		values[k] = v
	}
	return values
}
