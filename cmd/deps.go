package cmd

import (
	"github.com/voiplab/sipbox/pkg/address"
	"github.com/voiplab/sipbox/pkg/cert"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/drift"
	"github.com/voiplab/sipbox/pkg/execx"
	"github.com/voiplab/sipbox/pkg/lifecycle"
	"github.com/voiplab/sipbox/pkg/zone"
)

// engine bundles the wired-up core for command handlers
type engine struct {
	cfg        *config.Config
	store      *config.Store
	reconciler *drift.Reconciler
	classifier *lifecycle.Classifier
	certs      *cert.Manager
	zones      *zone.Generator
}

// buildEngine wires the core against the loaded project configuration
func buildEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	runner := execx.NewRunner()
	store := config.NewStore(cfg.Paths.EnvFile)
	detector := address.NewDetector(store, runner)
	zones := zone.NewGenerator(cfg, verbose)
	certs := cert.NewManager(cfg, runner, verbose)
	probe := lifecycle.NewDockerProbe(runner, cfg.Project)

	return &engine{
		cfg:        cfg,
		store:      store,
		reconciler: drift.NewReconciler(cfg, store, detector, zones, certs, verbose),
		classifier: lifecycle.NewClassifier(store, probe),
		certs:      certs,
		zones:      zones,
	}, nil
}
