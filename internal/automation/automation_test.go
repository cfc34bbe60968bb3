package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/storage"
)

const scenarioYAML = `name: small
description: two short runs
steps:
  - preset: pulse
    seed: 3
    overrides:
      run.t_end: 300
      particles.count: 2000
    save_as: pulse_small
  - overrides:
      grid.dim: 5
      grid.dz: 0.1
      particles.count: 1000
      run.t_end: "120"
`

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{Dim: 5, Dz: 0.1}
	cfg.Particles.Count = 1000
	cfg.Run.TEnd = 300
	return cfg
}

func TestRunScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "small", sc.Name)
	require.Len(t, sc.Steps, 2)

	store := storage.New(filepath.Join(dir, "runs"))
	require.NoError(t, store.Init())

	log, _ := test.NewNullLogger()
	results, err := RunScenario(context.Background(), sc, store, log)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "pulse_small", results[0].Name)
	assert.Equal(t, int64(3), results[0].Config.Run.Seed)
	assert.Equal(t, 5, results[0].Result.StepsTaken)
	assert.NotEmpty(t, results[0].RunID)
	assert.Empty(t, results[1].RunID)
	assert.Equal(t, 2, results[1].Result.StepsTaken)

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "pulse_small", runs[0].Name)
}

func TestScenarioErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: nothing\n"), 0644))

	_, err := LoadScenario(empty)
	assert.Error(t, err)

	_, err = ScenarioStep{Preset: "clay"}.Resolve()
	assert.Error(t, err)

	_, err = ScenarioStep{Overrides: map[string]any{"soil.colour": 1}}.Resolve()
	assert.Error(t, err)

	_, err = ScenarioStep{Overrides: map[string]any{"run.dtc": -1}}.Resolve()
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	log, _ := test.NewNullLogger()
	sweep := &ParameterSweep{
		Base:     smallConfig(),
		Key:      "run.precip_rate",
		Min:      0,
		Max:      20,
		NumSteps: 3,
	}

	results, err := RunSweep(context.Background(), sweep, log)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 10.0, results[1].ParamValue)
	assert.Equal(t, 0.0, results[0].EventFraction)
	assert.Positive(t, results[2].EventFraction)
	for _, r := range results {
		assert.Less(t, r.MassDrift, 1e-9)
		assert.Len(t, r.FinalTheta, 4)
	}

	// the base config is left untouched
	assert.Equal(t, config.DefaultConfig().Run.PrecipRate, sweep.Base.Run.PrecipRate)
}

func TestRunMonteCarlo(t *testing.T) {
	log, _ := test.NewNullLogger()
	results, err := RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Base:      smallConfig(),
		NumTrials: 4,
		Seed:      100,
	}, log)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(103), results[3].Seed)

	for _, r := range results {
		assert.Less(t, r.MassError, 1e-9)
	}

	mean, std := MonteCarloStats(results)
	require.Len(t, mean, 4)
	require.Len(t, std, 4)
	for i := range mean {
		assert.Greater(t, mean[i], 0.05)
		assert.GreaterOrEqual(t, std[i], 0.0)
	}
}
