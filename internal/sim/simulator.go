package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/lastsim/internal/mixing"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/transport"
)

type Simulation struct {
	state     *model.State
	hooks     Hooks
	metrics   []Metric
	observers []Observer
	log       logrus.FieldLogger

	phase         Phase
	snapshotEvery int
	result        *Result
}

type Option func(*Simulation)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Simulation) { s.log = l }
}

// WithSnapshotEvery records profiles every n steps. The initial and the
// final state are always recorded.
func WithSnapshotEvery(n int) Option {
	return func(s *Simulation) { s.snapshotEvery = n }
}

func WithHooks(h Hooks) Option {
	return func(s *Simulation) { s.hooks = h }
}

func New(state *model.State, opts ...Option) *Simulation {
	s := &Simulation{
		state:     state,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if state != nil {
		s.phase = Ready
	}
	return s
}

func (s *Simulation) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulation) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulation) AddSetup(h Hook)    { s.hooks.Setup = append(s.hooks.Setup, h) }
func (s *Simulation) AddPreMain(h Hook)  { s.hooks.PreMain = append(s.hooks.PreMain, h) }
func (s *Simulation) AddPostMain(h Hook) { s.hooks.PostMain = append(s.hooks.PostMain, h) }
func (s *Simulation) AddOutput(h Hook)   { s.hooks.Output = append(s.hooks.Output, h) }

func (s *Simulation) State() *model.State { return s.state }
func (s *Simulation) Phase() Phase        { return s.phase }
func (s *Simulation) Result() *Result     { return s.result }

// Run performs Setup, steps until the end time and runs the output hooks.
// Cancellation is checked once per full step.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if err := s.Setup(); err != nil {
		return nil, err
	}

	for !s.state.Done() {
		select {
		case <-ctx.Done():
			s.phase = Finished
			return s.result, ctx.Err()
		default:
		}

		if err := s.Step(); err != nil {
			s.phase = Finished
			return s.result, err
		}
	}

	if err := s.Finish(); err != nil {
		return s.result, err
	}
	return s.result, nil
}

// Setup initialises hooks and metrics and runs the setup hooks.
func (s *Simulation) Setup() error {
	if s.phase != Ready {
		return fmt.Errorf("%w: phase is %s", ErrNotReady, s.phase)
	}

	st := s.state
	for _, h := range s.hooks.all() {
		if err := h.Init(st); err != nil {
			return s.wrap(err)
		}
	}
	if err := s.runHooks(s.hooks.Setup); err != nil {
		return err
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	s.result = &Result{
		Snapshots: make([]Snapshot, 0),
		Mass:      make([]MassRecord, 0, int(st.Clock.TEnd/st.Clock.Dtc)+1),
		Metrics:   make(map[string]float64),
	}
	s.record(true)

	s.phase = Running
	s.log.WithFields(logrus.Fields{
		"cells":     st.Grid.NumCells(),
		"particles": len(st.Stores.PreEvent),
		"m":         st.Params.M,
		"pfd":       st.PFD != nil,
		"t_end":     st.Clock.TEnd,
	}).Debug("simulation ready")
	return nil
}

// Step runs the pre-main hooks, one Main step and the post-main hooks.
func (s *Simulation) Step() error {
	if s.phase != Running {
		return fmt.Errorf("%w: phase is %s", ErrNotRunning, s.phase)
	}

	if err := s.runHooks(s.hooks.PreMain); err != nil {
		return err
	}
	s.Main()
	if err := s.runHooks(s.hooks.PostMain); err != nil {
		return err
	}

	for _, m := range s.metrics {
		m.Observe(s.state)
	}
	for _, obs := range s.observers {
		obs.OnStep(s.state)
	}

	s.result.StepsTaken++
	s.record(s.snapshotEvery > 0 && s.state.Clock.Step%s.snapshotEvery == 0)
	return nil
}

// Finish runs the output hooks and collects metrics.
func (s *Simulation) Finish() error {
	if s.phase != Running {
		return fmt.Errorf("%w: phase is %s", ErrNotRunning, s.phase)
	}
	s.phase = Finished

	if s.result.Final().Time != s.state.Clock.Time {
		s.result.Snapshots = append(s.result.Snapshots, s.snapshot())
	}

	if err := s.runHooks(s.hooks.Output); err != nil {
		return err
	}

	for _, m := range s.metrics {
		s.result.Metrics[m.Name()] = m.Value()
	}
	s.result.Diagnostics = s.state.Diag

	s.log.WithFields(logrus.Fields{
		"steps":  s.result.StepsTaken,
		"time":   s.state.Clock.Time,
		"merged": s.state.Diag.Merged,
	}).Debug("simulation finished")
	return nil
}

// Main advances the state by one full step of dtc: two predictor and
// corrector half-steps, then mixing and finalisation.
func (s *Simulation) Main() {
	st := s.state
	dt := 0.5 * st.Clock.Dtc

	for pc := 0; pc < 2; pc++ {
		st.RefreshPre()
		transport.DisplaceMatrix(st, dt)
		transport.DisplaceEvent(st, dt)
		st.Rebin()
		transport.DisplacePFD(st)
		st.RefreshPost()
	}

	mixing.MixMatrix(st)
	mixing.MixPFD(st, st.Clock.Dtc)

	s.finalize()
}

func (s *Simulation) finalize() {
	st := s.state
	st.AgeParticles(st.Clock.Dtc)
	st.Clock.Time += st.Clock.Dtc
	st.Clock.Step++
	st.AdvanceBoundary()
	st.RefreshPost()
}

func (s *Simulation) runHooks(hooks []Hook) error {
	for _, h := range hooks {
		if err := h.Run(s.state); err != nil {
			return s.wrap(err)
		}
	}
	return nil
}

func (s *Simulation) wrap(err error) error {
	return &SimError{Step: s.state.Clock.Step, Time: s.state.Clock.Time, Err: err}
}

func (s *Simulation) record(snapshot bool) {
	st := s.state
	matrix := float64(len(st.Stores.PreEvent)) * st.Params.M
	event := float64(len(st.Stores.Event)) * st.Params.M
	pfd := 0.0
	if st.PFD != nil {
		pfd = float64(len(st.Stores.PFD)) * st.PFD.M
	}
	carry := st.CarryMass()

	s.result.Mass = append(s.result.Mass, MassRecord{
		Time:   st.Clock.Time,
		Matrix: matrix,
		Event:  event,
		PFD:    pfd,
		Carry:  carry,
		Input:  st.Diag.PrecipMass,
		Total:  matrix + event + pfd + carry,
	})

	if snapshot {
		s.result.Snapshots = append(s.result.Snapshots, s.snapshot())
	}
}

func (s *Simulation) snapshot() Snapshot {
	st := s.state
	theta, cw, age := st.Snapshot()
	snap := Snapshot{Time: st.Clock.Time, Theta: theta, Cw: cw, Age: age}
	if st.PFD != nil {
		snap.PFD = append([]float64(nil), st.PFD.Theta...)
	}
	return snap
}
