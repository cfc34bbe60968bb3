package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/experiment"
	"github.com/san-kum/lastsim/internal/sim"
)

// Objective scores a finished run; lower is better.
type Objective func(r *sim.Result) float64

// MetricObjective scores a run by one of its metrics.
func MetricObjective(name string) Objective {
	return func(r *sim.Result) float64 {
		v, ok := r.Metrics[name]
		if !ok {
			return math.Inf(1)
		}
		return v
	}
}

// ProfileRMSE scores a run by the root mean square difference between its
// final moisture profile and observed, one value per cell.
func ProfileRMSE(observed []float64) Objective {
	return func(r *sim.Result) float64 {
		final := r.Final().Theta
		if len(final) != len(observed) || len(final) == 0 {
			return math.Inf(1)
		}
		return floats.Distance(final, observed, 2) / math.Sqrt(float64(len(final)))
	}
}

type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// GridSearch tries every combination of values of a set of dotted config
// keys.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// ConfigBuilder returns a builder that applies the trial parameters to a
// copy of base.
func ConfigBuilder(base *config.Config, log logrus.FieldLogger) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for k, v := range params {
			if err := cfg.Set(k, v); err != nil {
				return nil, err
			}
		}
		exp := experiment.New(experiment.Config{Model: cfg}, log)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		return exp, nil
	}
}

// Search runs every combination and returns the best parameters, their
// score and all trials. Combinations that fail to build or run score +Inf;
// cancellation stops the search.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	trials := make([]Trial, 0)

	err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, objective, &trials)
	for _, t := range trials {
		if t.Score < best {
			best, bestParams = t.Score, t.Params
		}
	}
	return bestParams, best, trials, err
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	objective Objective,
	trials *[]Trial,
) error {
	if depth == len(g.paramNames) {
		trial := Trial{Params: current, Score: math.Inf(1)}
		defer func() { *trials = append(*trials, trial) }()

		exp, err := buildExperiment(current)
		if err != nil {
			trial.Err = err
			return nil
		}

		result, err := exp.Run(ctx)
		if err != nil {
			trial.Err = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		}
		trial.Score = objective(result)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, objective, trials); err != nil {
			return err
		}
	}
	return nil
}
