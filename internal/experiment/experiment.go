package experiment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/forcing"
	"github.com/san-kum/lastsim/internal/infiltration"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/sim"
)

type Config struct {
	Model       *config.Config
	ProfilePath string
	PrecipPath  string
	Metrics     []string
	LogEvery    int
}

// Experiment wires a model configuration and its forcing files into
// runnable simulations.
type Experiment struct {
	cfg       Config
	registry  *Registry
	log       logrus.FieldLogger
	profile   *forcing.Profile
	precip    *forcing.Series
	simulator *sim.Simulation
}

func New(cfg Config, log logrus.FieldLogger) *Experiment {
	if cfg.Model == nil {
		cfg.Model = config.DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		log:      log,
	}
}

// Load reads the profile and precipitation files, if any.
func (e *Experiment) Load() error {
	if e.cfg.ProfilePath != "" {
		p, err := forcing.LoadProfile(e.cfg.ProfilePath)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		e.profile = p
	}
	if e.cfg.PrecipPath != "" {
		s, err := forcing.LoadPrecipitation(e.cfg.PrecipPath)
		if err != nil {
			return fmt.Errorf("loading precipitation: %w", err)
		}
		e.precip = s
	}
	return nil
}

// Build creates an independent simulation for seed with infiltration,
// progress logging and the configured metrics attached.
func (e *Experiment) Build(seed int64) (*sim.Simulation, error) {
	mc := e.cfg.Model.Clone()
	mc.Run.Seed = seed

	st, err := model.New(mc, e.profile, e.precip, model.NewRand(seed))
	if err != nil {
		return nil, err
	}

	log := e.log.WithField("seed", seed)
	s := sim.New(st,
		sim.WithLogger(log),
		sim.WithSnapshotEvery(mc.Run.SnapshotEvery),
	)

	s.AddPreMain(infiltration.NewHook())
	if e.cfg.LogEvery > 0 {
		s.AddPostMain(sim.LogProgress(log, e.cfg.LogEvery))
	}
	s.AddOutput(sim.LogSummary(log))

	names := e.cfg.Metrics
	if len(names) == 0 {
		names = e.registry.DefaultMetrics()
	}
	for _, name := range names {
		m, err := e.registry.GetMetric(name)
		if err != nil {
			return nil, err
		}
		s.AddMetric(m)
	}
	return s, nil
}

func (e *Experiment) Setup() error {
	s, err := e.Build(e.cfg.Model.Run.Seed)
	if err != nil {
		return err
	}
	e.simulator = s
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx)
}

// Ensemble runs n seeds starting from the configured one.
func (e *Experiment) Ensemble(ctx context.Context, n int) ([]*sim.Result, error) {
	return sim.NewEnsemble(e.Build, n, e.cfg.Model.Run.Seed).Run(ctx)
}

// GetSimulator returns the underlying simulation for adding observers
func (e *Experiment) GetSimulator() *sim.Simulation {
	return e.simulator
}

func (e *Experiment) Config() *config.Config {
	return e.cfg.Model
}
