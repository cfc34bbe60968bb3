package optim

import (
	"context"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/sim"
)

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{Dim: 5, Dz: 0.1}
	cfg.Particles.Count = 1000
	cfg.Run.TEnd = 120
	cfg.Run.PrecipRate = 0
	return cfg
}

func TestProfileRMSE(t *testing.T) {
	r := &sim.Result{Snapshots: []sim.Snapshot{{Theta: []float64{0.2, 0.3}}}}

	assert.InDelta(t, 0.0, ProfileRMSE([]float64{0.2, 0.3})(r), 1e-12)
	assert.InDelta(t, 0.1, ProfileRMSE([]float64{0.1, 0.4})(r), 1e-12)
	assert.True(t, math.IsInf(ProfileRMSE([]float64{0.2})(r), 1))
}

func TestMetricObjective(t *testing.T) {
	r := &sim.Result{Metrics: map[string]float64{"mass_drift": 0.5}}
	assert.Equal(t, 0.5, MetricObjective("mass_drift")(r))
	assert.True(t, math.IsInf(MetricObjective("other")(r), 1))
}

func TestGridSearchRecoversMoisture(t *testing.T) {
	log, _ := test.NewNullLogger()
	observed := []float64{0.25, 0.25, 0.25, 0.25}

	g := NewGridSearch([]string{"run.initial_theta"}, [][]float64{{0.15, 0.25, 0.35}})
	best, score, trials, err := g.Search(context.Background(), ConfigBuilder(baseConfig(), log), ProfileRMSE(observed))
	require.NoError(t, err)

	assert.Len(t, trials, 3)
	assert.Equal(t, 0.25, best["run.initial_theta"])
	assert.Less(t, score, 0.01)
}

func TestGridSearchSkipsInvalid(t *testing.T) {
	log, _ := test.NewNullLogger()

	g := NewGridSearch(
		[]string{"run.initial_theta", "particles.mob_fak"},
		[][]float64{{0.2}, {-1, 0.1}},
	)
	best, _, trials, err := g.Search(context.Background(), ConfigBuilder(baseConfig(), log), MetricObjective("mass_drift"))
	require.NoError(t, err)

	require.Len(t, trials, 2)
	assert.Error(t, trials[0].Err)
	assert.True(t, math.IsInf(trials[0].Score, 1))
	assert.Equal(t, 0.1, best["particles.mob_fak"])
}

func TestGridSearchCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGridSearch([]string{"soil.ks"}, [][]float64{{1e-6, 1e-5}})
	_, _, trials, err := g.Search(ctx, ConfigBuilder(baseConfig(), log), MetricObjective("mass_drift"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, trials, 1)
}

func TestGridSearchMismatch(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1}})
	_, _, _, err := g.Search(context.Background(), nil, nil)
	assert.Error(t, err)
}
