package automation

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/experiment"
	"github.com/san-kum/lastsim/internal/sim"
	"github.com/san-kum/lastsim/internal/storage"
)

// Scenario defines a scripted batch of simulations
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single run in a scenario. The base configuration is
// the file in Config, else the named Preset, else the defaults; Overrides
// are dotted config keys applied on top.
type ScenarioStep struct {
	Preset    string         `yaml:"preset"`
	Config    string         `yaml:"config"`
	Precip    string         `yaml:"precip"`
	Profile   string         `yaml:"profile"`
	Overrides map[string]any `yaml:"overrides"`
	Seed      int64          `yaml:"seed"`
	SaveAs    string         `yaml:"save_as"`
}

type StepResult struct {
	Name   string
	RunID  string
	Config *config.Config
	Result *sim.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}

	return &scenario, nil
}

// Resolve builds the configuration of the step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if err := cfg.FromMap(s.Overrides); err != nil {
		return nil, err
	}
	if s.Seed != 0 {
		cfg.Run.Seed = s.Seed
	}
	if s.SaveAs != "" {
		cfg.Name = s.SaveAs
	}
	return cfg, cfg.Validate()
}

// RunScenario executes all steps in a scenario. Steps with save_as are
// written to store when it is not nil.
func RunScenario(ctx context.Context, scenario *Scenario, store *storage.Store, log logrus.FieldLogger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		log.WithFields(logrus.Fields{
			"step": i + 1,
			"of":   len(scenario.Steps),
			"name": cfg.Name,
		}).Info("running scenario step")

		exp := experiment.New(experiment.Config{
			Model:       cfg,
			ProfilePath: step.Profile,
			PrecipPath:  step.Precip,
		}, log)
		if err := exp.Load(); err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{Name: cfg.Name, Config: cfg, Result: result}
		if store != nil && step.SaveAs != "" {
			sr.RunID, err = store.Save(cfg, exp.GetSimulator().State().Grid.Z, result)
			if err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, sr)
	}

	return results, nil
}

// ParameterSweep runs the base configuration across a range of values of
// one dotted config key.
type ParameterSweep struct {
	Base     *config.Config
	Key      string
	Min      float64
	Max      float64
	NumSteps int
}

// SweepResult holds the outcome of one sweep value
type SweepResult struct {
	ParamValue    float64
	FinalTheta    []float64
	MassDrift     float64
	EventFraction float64
	PFDInput      float64
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, log logrus.FieldLogger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step")
	}
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.Min + float64(i)*paramStep

		cfg := sweep.Base.Clone()
		if err := cfg.Set(sweep.Key, paramVal); err != nil {
			return nil, err
		}

		exp := experiment.New(experiment.Config{
			Model:   cfg,
			Metrics: []string{"mass_drift", "event_fraction"},
		}, log)
		if err := exp.Setup(); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Key, paramVal, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return nil, err
		}

		results = append(results, SweepResult{
			ParamValue:    paramVal,
			FinalTheta:    result.Final().Theta,
			MassDrift:     result.Metrics["mass_drift"],
			EventFraction: result.Metrics["event_fraction"],
			PFDInput:      result.Diagnostics.PFDInput,
		})

		log.WithFields(logrus.Fields{
			"i":   i + 1,
			"of":  sweep.NumSteps,
			"key": sweep.Key,
			"val": paramVal,
		}).Info("sweep step done")
	}

	return results, nil
}

// MonteCarloConfig repeats one configuration over consecutive seeds
type MonteCarloConfig struct {
	Base      *config.Config
	NumTrials int
	Seed      int64
}

// MonteCarloResult holds the outcome of one trial
type MonteCarloResult struct {
	TrialID    int
	Seed       int64
	FinalTheta []float64
	MassError  float64
}

// RunMonteCarlo runs the trials concurrently, one seed each.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, log logrus.FieldLogger) ([]MonteCarloResult, error) {
	base := cfg.Base.Clone()
	base.Run.Seed = cfg.Seed

	exp := experiment.New(experiment.Config{Model: base, Metrics: []string{"mass_drift"}}, log)
	runs, err := exp.Ensemble(ctx, cfg.NumTrials)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(runs))
	for i, r := range runs {
		d := r.Diagnostics
		final := r.Mass[len(r.Mass)-1]
		results[i] = MonteCarloResult{
			TrialID:    i,
			Seed:       cfg.Seed + int64(i),
			FinalTheta: r.Final().Theta,
			MassError:  math.Abs(final.Total - d.InitialMass - d.PrecipMass),
		}
	}
	return results, nil
}

// MonteCarloStats returns the mean and standard deviation of the final
// moisture of every cell across trials.
func MonteCarloStats(results []MonteCarloResult) (mean, std []float64) {
	if len(results) == 0 {
		return nil, nil
	}
	n := len(results[0].FinalTheta)
	mean = make([]float64, n)
	std = make([]float64, n)

	col := make([]float64, len(results))
	for i := 0; i < n; i++ {
		for j, r := range results {
			col[j] = r.FinalTheta[i]
		}
		if len(col) == 1 {
			mean[i] = col[0]
			continue
		}
		mean[i], std[i] = stat.MeanStdDev(col, nil)
	}
	return mean, std
}
