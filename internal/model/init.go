package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/forcing"
	"github.com/san-kum/lastsim/internal/particle"
	"github.com/san-kum/lastsim/internal/soil"
)

// NewRand returns the generator used by a run with the given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// New builds a ready-to-run state. A nil profile falls back to the
// uniform initial moisture of cfg; a nil series means no precipitation.
func New(cfg *config.Config, prof *forcing.Profile, precip *forcing.Series, rng *rand.Rand) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if rng == nil {
		rng = NewRand(cfg.Run.Seed)
	}
	if prof == nil {
		prof = forcing.Uniform(cfg.Run.InitialTheta, cfg.Run.InitialConc)
	}
	if precip == nil {
		precip = forcing.Pulse(cfg.Run.PrecipRate, cfg.Run.PrecipConc, cfg.Run.PrecipDuration)
	}
	if len(precip.Time) != len(precip.Rate) || len(precip.Time) != len(precip.Conc) {
		return nil, fmt.Errorf("%w: precipitation time=%d rate=%d conc=%d",
			ErrLengthMismatch, len(precip.Time), len(precip.Rate), len(precip.Conc))
	}

	grid, err := BuildGrid(cfg.Grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	vg := soil.VanGenuchten{
		Ks:    cfg.Soil.Ks,
		Ths:   cfg.Soil.Ths,
		Thr:   cfg.Soil.Thr,
		Alpha: cfg.Soil.Alpha,
		N:     cfg.Soil.N,
		Stor:  cfg.Soil.Stor,
		L:     cfg.Soil.L,
	}
	tables, err := soil.BuildTables(vg, cfg.Particles.NClass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	theta0, conc0, err := prof.OnGrid(grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLengthMismatch, err)
	}
	for i, th := range theta0 {
		if th < vg.Thr || th > vg.Ths {
			return nil, fmt.Errorf("%w: cell %d has theta=%f", ErrMoistureRange, i, th)
		}
	}

	s := &State{
		Grid:   grid,
		Soil:   vg,
		Tables: tables,
		Params: Params{
			MobFak: cfg.Particles.MobFak,
			Prob:   cfg.Particles.Prob,
			Mixing: cfg.Mixing,
		},
		Boundary: Boundary{
			Series:        precip,
			SurfaceSolute: cfg.Run.SurfaceSolute,
		},
		Clock: Clock{
			Dtc:  cfg.Run.Dtc,
			TEnd: cfg.Run.TEnd,
		},
		Rand: rng,
	}

	if err := s.initParticles(theta0, conc0, cfg.Particles.Count); err != nil {
		return nil, err
	}

	if cfg.PFD.Enabled {
		if s.PFD, err = newPFD(cfg.PFD, grid); err != nil {
			return nil, err
		}
	}

	s.Rebin()
	s.RebinPFD()
	s.RefreshPost()
	s.AdvanceBoundary()
	s.Diag.InitialMass = s.TotalMass()

	return s, nil
}

// BuildGrid returns the uniform grid of cfg, or the grid through the
// explicit node depths when they are given.
func BuildGrid(cfg config.GridConfig) (*soil.Grid, error) {
	if len(cfg.Depths) == 0 {
		return soil.UniformGrid(cfg.Dim, cfg.Dz)
	}
	z := make([]float64, len(cfg.Depths))
	for i, d := range cfg.Depths {
		z[i] = -d
	}
	return soil.NewGrid(z)
}

// initParticles derives the particle mass from the initial water storage
// and spreads each cell's particles evenly over the cell.
func (s *State) initParticles(theta, conc []float64, count int) error {
	g := s.Grid
	n := g.NumCells()

	storage := 0.0
	for i := 0; i < n; i++ {
		storage += theta[i] * g.Dz[i] * 1000
	}
	if storage <= 0 {
		return fmt.Errorf("%w: initial water storage is zero", ErrInvalidConfig)
	}
	s.Params.M = storage / float64(count)

	s.Profile = Profile{
		Theta:    make([]float64, g.Dim()),
		Psi:      make([]float64, g.Dim()),
		C:        make([]float64, g.Dim()),
		K:        make([]float64, g.Dim()),
		D:        make([]float64, g.Dim()),
		V:        make([]float64, g.Dim()),
		Cw:       make([]float64, g.Dim()),
		Age:      make([]float64, g.Dim()),
		MaxCount: make([]int, n),
	}

	pre := make(particle.Particles, 0, count)
	for i := 0; i < n; i++ {
		s.Profile.MaxCount[i] = int(math.Round(s.Soil.Ths * g.Dz[i] * 1000 / s.Params.M))

		np := int(math.Round(theta[i] * g.Dz[i] * 1000 / s.Params.M))
		for k := 0; k < np; k++ {
			pre = append(pre, particle.Particle{
				Position:      g.Z[i] - (float64(k)+0.5)*g.Dz[i]/float64(np),
				Concentration: conc[i],
			})
		}
	}
	s.Stores.PreEvent = pre
	return nil
}
