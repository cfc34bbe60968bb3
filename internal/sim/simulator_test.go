package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/forcing"
	"github.com/san-kum/lastsim/internal/infiltration"
	"github.com/san-kum/lastsim/internal/model"
)

func columnConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Grid = config.GridConfig{Dim: 10, Dz: 0.1}
	cfg.Soil.Thr = 0.05
	cfg.Soil.Ths = 0.45
	cfg.Particles.Count = 9000
	cfg.Run.InitialTheta = 0.2
	cfg.Run.PrecipRate = 0
	cfg.Run.Dtc = 60
	cfg.Run.TEnd = 6000
	return cfg
}

func newState(t *testing.T, cfg *config.Config) *model.State {
	t.Helper()
	st, err := model.New(cfg, nil, nil, model.NewRand(cfg.Run.Seed))
	if err != nil {
		t.Fatalf("state init failed: %v", err)
	}
	return st
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestSimulationDryColumn(t *testing.T) {
	st := newState(t, columnConfig())
	initial := st.TotalMass()

	sim := New(st, WithLogger(quietLogger()), WithSnapshotEvery(10))
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.StepsTaken != 100 {
		t.Errorf("expected 100 steps, got %d", result.StepsTaken)
	}
	if len(result.Mass) != 101 {
		t.Errorf("expected 101 mass records, got %d", len(result.Mass))
	}
	if len(result.Snapshots) != 11 {
		t.Errorf("expected 11 snapshots, got %d", len(result.Snapshots))
	}
	if sim.Phase() != Finished {
		t.Errorf("expected finished, got %s", sim.Phase())
	}

	if math.Abs(st.TotalMass()-initial) > 1e-9 {
		t.Errorf("mass changed: %f -> %f", initial, st.TotalMass())
	}

	column := 0.0
	for i := 0; i < st.Grid.NumCells(); i++ {
		column += st.Profile.Theta[i] * st.Grid.Dz[i] * 1000
		if st.Profile.Theta[i] > st.Soil.Ths+1e-9 {
			t.Errorf("cell %d above saturation: %f", i, st.Profile.Theta[i])
		}
	}
	if math.Abs(column-initial) > 1e-6 {
		t.Errorf("column storage %f differs from initial %f", column, initial)
	}

	if !st.Stores.PreEvent.IsSorted() {
		t.Error("pre-event store not sorted")
	}
	if math.Abs(st.Clock.Time-6000) > 1e-9 {
		t.Errorf("expected t=6000, got %f", st.Clock.Time)
	}
}

func TestSimulationPulse(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 120
	st := newState(t, cfg)

	m := st.Params.M
	rate := 10 * m / (st.Clock.Dtc * 1000)
	st.Boundary.Series = &forcing.Series{
		Time: []float64{0, st.Clock.Dtc},
		Rate: []float64{rate, 0},
		Conc: []float64{1, 0},
	}
	st.AdvanceBoundary()

	checked := false
	check := HookFunc(func(s *model.State) error {
		if s.Clock.Step != 0 {
			return nil
		}
		checked = true
		if len(s.Stores.Event) != 10 {
			t.Errorf("expected 10 event particles, got %d", len(s.Stores.Event))
		}
		for _, p := range s.Stores.Event {
			if p.Position != s.Grid.Z[0] || p.Age != 0 {
				t.Errorf("unexpected new particle %+v", p)
			}
		}
		if math.Abs(s.Boundary.MInput) > 1e-12 {
			t.Errorf("expected no carry, got %g", s.Boundary.MInput)
		}
		return nil
	})

	sim := New(st, WithLogger(quietLogger()), WithHooks(Hooks{
		PreMain: []Hook{infiltration.NewHook(), check},
	}))
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !checked {
		t.Fatal("check hook never ran")
	}

	want := st.Diag.InitialMass + 10*m
	if math.Abs(st.TotalMass()-want) > 1e-9 {
		t.Errorf("expected mass %f, got %f", want, st.TotalMass())
	}
}

func TestSimulationRainWithMacropores(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 3600
	cfg.Run.PrecipRate = 60
	cfg.Run.PrecipDuration = 1800
	cfg.PFD.Enabled = true
	cfg.PFD.Depth = 0.6
	cfg.PFD.Dz = 0.1
	cfg.PFD.NMak = 10
	cfg.PFD.Mass = 1e-4
	st := newState(t, cfg)

	sim := New(st, WithLogger(quietLogger()))
	sim.AddPreMain(infiltration.NewHook())

	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	d := result.Diagnostics
	if d.PFDInput <= 0 {
		t.Error("expected macropore input")
	}
	if d.MatrixInput <= 0 {
		t.Error("expected matrix input")
	}

	want := d.InitialMass + d.PrecipMass
	if math.Abs(st.TotalMass()-want) > 1e-6 {
		t.Errorf("mass balance off: want %f, got %f", want, st.TotalMass())
	}

	last := result.Mass[len(result.Mass)-1]
	if math.Abs(last.Total-st.TotalMass()) > 1e-9 {
		t.Errorf("last record %f does not match state %f", last.Total, st.TotalMass())
	}

	for i := 0; i < st.Grid.NumCells(); i++ {
		if st.Profile.Theta[i] > st.Soil.Ths+1e-9 {
			t.Errorf("cell %d above saturation: %f", i, st.Profile.Theta[i])
		}
	}
	for i := 0; i < st.PFD.NumLayers(); i++ {
		if n := len(st.LayerParticles(i)); n > st.PFD.Cap(i) {
			t.Errorf("layer %d over capacity: %d > %d", i, n, st.PFD.Cap(i))
		}
	}
}

func TestSimulationSoluteBalance(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 3600
	cfg.Run.InitialConc = 0.1
	cfg.Run.PrecipRate = 60
	cfg.Run.PrecipConc = 1
	cfg.Run.PrecipDuration = 1800
	cfg.PFD.Enabled = true
	cfg.PFD.Depth = 0.6
	cfg.PFD.Dz = 0.1
	cfg.PFD.NMak = 10
	cfg.PFD.Mass = 1e-4
	st := newState(t, cfg)
	initial := st.SoluteMass()

	ledger := func(s *model.State) float64 {
		return s.SoluteMass() + s.CarrySolute() - s.Diag.MatrixSolute - s.Diag.PFDSolute
	}

	sim := New(st, WithLogger(quietLogger()))
	sim.AddPreMain(infiltration.NewHook())
	sim.AddPostMain(HookFunc(func(s *model.State) error {
		if d := ledger(s) - initial; math.Abs(d) > 1e-8 {
			t.Errorf("step %d: solute ledger drifted by %g", s.Clock.Step, d)
		}
		return nil
	}))

	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Diagnostics.PFDSolute <= 0 {
		t.Error("expected solute input to the macropores")
	}
}

func TestSimulationPhases(t *testing.T) {
	if _, err := New(nil).Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	cfg := columnConfig()
	cfg.Run.TEnd = 60
	sim := New(newState(t, cfg), WithLogger(quietLogger()))
	if sim.Phase() != Ready {
		t.Errorf("expected ready, got %s", sim.Phase())
	}
	if err := sim.Step(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}

	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := sim.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady on second run, got %v", err)
	}
}

func TestSimulationHookOrder(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 120
	st := newState(t, cfg)

	var calls []string
	rec := func(name string) Hook {
		return HookFunc(func(*model.State) error {
			calls = append(calls, name)
			return nil
		})
	}

	sim := New(st, WithLogger(quietLogger()), WithHooks(Hooks{
		Setup:    []Hook{rec("setup")},
		PreMain:  []Hook{rec("pre1"), rec("pre2")},
		PostMain: []Hook{rec("post")},
		Output:   []Hook{rec("output")},
	}))
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{"setup", "pre1", "pre2", "post", "pre1", "pre2", "post", "output"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

type initCounter struct {
	NopHook
	inits int
}

func (c *initCounter) Init(*model.State) error {
	c.inits++
	return nil
}

func TestSimulationHookInit(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 60
	h := &initCounter{}

	sim := New(newState(t, cfg), WithLogger(quietLogger()))
	sim.AddPostMain(h)
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if h.inits != 1 {
		t.Errorf("expected one init, got %d", h.inits)
	}
}

func TestSimulationHookError(t *testing.T) {
	cfg := columnConfig()
	st := newState(t, cfg)
	boom := errors.New("boom")

	sim := New(st, WithLogger(quietLogger()))
	sim.AddPreMain(HookFunc(func(s *model.State) error {
		if s.Clock.Step == 2 {
			return boom
		}
		return nil
	}))

	result, err := sim.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var simErr *SimError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected SimError, got %T", err)
	}
	if simErr.Step != 2 {
		t.Errorf("expected step 2, got %d", simErr.Step)
	}
	if result.StepsTaken != 2 {
		t.Errorf("expected 2 steps, got %d", result.StepsTaken)
	}
}

func TestSimulationCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := New(newState(t, columnConfig()), WithLogger(quietLogger()))
	result, err := sim.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.StepsTaken != 0 {
		t.Errorf("expected no steps, got %d", result.StepsTaken)
	}
}

type testMetric struct {
	count int
}

func (m *testMetric) Name() string         { return "test" }
func (m *testMetric) Observe(*model.State) { m.count++ }
func (m *testMetric) Value() float64       { return float64(m.count) }
func (m *testMetric) Reset()               { m.count = 0 }

func TestSimulationMetrics(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 600
	sim := New(newState(t, cfg), WithLogger(quietLogger()))

	metric := &testMetric{count: 99}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Metrics["test"] != 10 {
		t.Errorf("expected 10 observations, got %f", result.Metrics["test"])
	}
}

func TestLogProgress(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := columnConfig()
	cfg.Run.TEnd = 600

	sim := New(newState(t, cfg), WithLogger(quietLogger()))
	sim.AddPostMain(LogProgress(logger, 5))
	sim.AddOutput(LogSummary(logger))
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(hook.AllEntries()) != 3 {
		t.Errorf("expected 3 log entries, got %d", len(hook.AllEntries()))
	}
	if hook.LastEntry().Message != "water balance" {
		t.Errorf("unexpected last entry %q", hook.LastEntry().Message)
	}
}

func TestEnsemble(t *testing.T) {
	cfg := columnConfig()
	cfg.Run.TEnd = 300

	build := func(seed int64) (*Simulation, error) {
		c := cfg.Clone()
		c.Run.Seed = seed
		st, err := model.New(c, nil, nil, model.NewRand(seed))
		if err != nil {
			return nil, err
		}
		return New(st, WithLogger(quietLogger())), nil
	}

	results, err := NewEnsemble(build, 3, 10).Run(context.Background())
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.StepsTaken != 5 {
			t.Errorf("run %d: expected 5 steps, got %d", i, r.StepsTaken)
		}
	}
}

func TestEnsembleBuildError(t *testing.T) {
	build := func(int64) (*Simulation, error) { return nil, errors.New("nope") }
	if _, err := NewEnsemble(build, 2, 0).Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}
