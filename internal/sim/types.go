package sim

import (
	"errors"
	"fmt"

	"github.com/san-kum/lastsim/internal/model"
)

var (
	// ErrNotReady indicates Run or Setup was called outside the Ready phase.
	ErrNotReady = errors.New("sim: simulation not ready")

	// ErrNotRunning indicates Step was called before Setup or after Finish.
	ErrNotRunning = errors.New("sim: simulation not running")
)

type Phase int

const (
	Uninitialized Phase = iota
	Ready
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "uninitialized"
	}
}

// Hook is an extension invoked at a fixed point of the run. Init is
// called once for every registered hook before the setup hooks run.
type Hook interface {
	Init(s *model.State) error
	Run(s *model.State) error
}

// NopHook can be embedded to implement only the methods a hook needs.
type NopHook struct{}

func (NopHook) Init(*model.State) error { return nil }
func (NopHook) Run(*model.State) error  { return nil }

// HookFunc adapts a function to a Hook with a no-op Init.
type HookFunc func(s *model.State) error

func (f HookFunc) Init(*model.State) error  { return nil }
func (f HookFunc) Run(s *model.State) error { return f(s) }

// Hooks are the four ordered extension lists.
type Hooks struct {
	Setup    []Hook
	PreMain  []Hook
	PostMain []Hook
	Output   []Hook
}

func (h Hooks) all() []Hook {
	out := make([]Hook, 0, len(h.Setup)+len(h.PreMain)+len(h.PostMain)+len(h.Output))
	out = append(out, h.Setup...)
	out = append(out, h.PreMain...)
	out = append(out, h.PostMain...)
	return append(out, h.Output...)
}

type Metric interface {
	Name() string
	Observe(s *model.State)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s *model.State)
}

type Snapshot struct {
	Time  float64   `json:"time"`
	Theta []float64 `json:"theta"`
	Cw    []float64 `json:"cw"`
	Age   []float64 `json:"age"`
	PFD   []float64 `json:"pfd,omitempty"`
}

// MassRecord is the water budget after one full step [kg/m2].
type MassRecord struct {
	Time   float64 `csv:"time" json:"time"`
	Matrix float64 `csv:"matrix" json:"matrix"`
	Event  float64 `csv:"event" json:"event"`
	PFD    float64 `csv:"pfd" json:"pfd"`
	Carry  float64 `csv:"carry" json:"carry"`
	Input  float64 `csv:"input" json:"input"`
	Total  float64 `csv:"total" json:"total"`
}

type Result struct {
	Snapshots   []Snapshot
	Mass        []MassRecord
	Metrics     map[string]float64
	Diagnostics model.Diagnostics
	StepsTaken  int
}

// Final returns the last recorded snapshot.
func (r *Result) Final() Snapshot {
	if len(r.Snapshots) == 0 {
		return Snapshot{}
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

// SimError wraps a hook failure with the step it happened in.
type SimError struct {
	Step int
	Time float64
	Err  error
}

func (e *SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.1f): %v", e.Step, e.Time, e.Err)
}

func (e *SimError) Unwrap() error {
	return e.Err
}
