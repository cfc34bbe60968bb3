// Package infiltration turns precipitation at the top boundary into new
// matrix event particles and macropore particles.
package infiltration

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/particle"
)

// roundTol absorbs floating point error when input mass is an exact
// multiple of the particle mass. A count rounded up this way leaves a
// slightly negative carry, which the next input pays back.
const roundTol = 1e-9

// MixTimeSampler draws event particle mixing times from a two-component
// Gaussian mixture. Negative draws are clamped to zero.
type MixTimeSampler struct {
	frac float64
	fast distuv.Normal
	slow distuv.Normal
	rng  *rand.Rand
}

func NewMixTimeSampler(cfg config.MixingConfig, rng *rand.Rand) *MixTimeSampler {
	return &MixTimeSampler{
		frac: cfg.Frac,
		fast: distuv.Normal{Mu: cfg.FastMean, Sigma: cfg.FastSD, Src: rng},
		slow: distuv.Normal{Mu: cfg.SlowMean, Sigma: cfg.SlowSD, Src: rng},
		rng:  rng,
	}
}

func (m *MixTimeSampler) Sample() float64 {
	d := m.slow
	if m.rng.Float64() < m.frac {
		d = m.fast
	}
	return math.Max(0, d.Rand())
}

// InfiltrateMatrix adds rate*dt of precipitation plus the carried
// remainder to the matrix as event particles at the surface. The part
// smaller than one particle is carried to the next call.
func InfiltrateMatrix(s *model.State, rate, conc, dt float64, sampler *MixTimeSampler) int {
	m := s.Params.M
	total := rate*dt*1000 + s.Boundary.MInput

	n := int(math.Floor(total/m + roundTol))
	s.Boundary.MInput = total - float64(n)*m
	if n == 0 {
		return 0
	}

	ev := make(particle.Particles, 0, n+len(s.Stores.Event))
	for i := 0; i < n; i++ {
		ev = append(ev, particle.Particle{
			Position:      s.Grid.Top(),
			Concentration: conc,
			MixTime:       sampler.Sample(),
		})
	}
	s.Stores.Event = ev.Append(s.Stores.Event...)

	s.Diag.MatrixInput += float64(n) * m
	s.Diag.MatrixSolute += float64(n) * m * conc
	return n
}

// InfiltratePFD feeds the macropores through their top layer. Input that
// does not fit into the spare capacity of that layer is carried forward;
// solute leaving the surface is limited by the surface solute store.
func InfiltratePFD(s *model.State, rate, conc, dt float64) int {
	p := s.PFD
	if p == nil {
		return 0
	}

	input := rate * dt * 1000
	s.Boundary.SurfaceSolute += input * conc
	total := input + p.MInput

	spare := p.Cap(0) - len(s.LayerParticles(0))
	if spare <= 0 {
		p.MInput = total
		return 0
	}

	n := min(int(math.Floor(total/p.M+roundTol)), spare)
	p.MInput = total - float64(n)*p.M
	if n == 0 {
		return 0
	}

	mass := float64(n) * p.M
	solute := math.Min(mass*conc, s.Boundary.SurfaceSolute)
	s.Boundary.SurfaceSolute -= solute

	ps := make(particle.Particles, 0, n+len(s.Stores.PFD))
	for i := 0; i < n; i++ {
		ps = append(ps, particle.Particle{
			Position:      p.Grid.Top(),
			Concentration: solute / mass,
		})
	}
	s.Stores.PFD = ps.Append(s.Stores.PFD...)
	s.RebinPFD()

	s.Diag.PFDInput += mass
	s.Diag.PFDSolute += solute
	return n
}

// Hook drives infiltration before every main step. The matrix takes up to
// ks; with macropores enabled the excess goes to the PFD, otherwise the
// matrix takes everything.
type Hook struct {
	sampler *MixTimeSampler
}

func NewHook() *Hook { return &Hook{} }

func (h *Hook) Init(s *model.State) error {
	h.sampler = NewMixTimeSampler(s.Params.Mixing, s.Rand)
	return nil
}

func (h *Hook) Run(s *model.State) error {
	if h.sampler == nil {
		h.sampler = NewMixTimeSampler(s.Params.Mixing, s.Rand)
	}

	rate, conc := s.Boundary.Flux, s.Boundary.Conc
	dt := s.Clock.Dtc
	s.Diag.PrecipMass += rate * dt * 1000

	mtx, pfd := rate, 0.0
	if s.PFD != nil && rate > s.Soil.Ks {
		mtx, pfd = s.Soil.Ks, rate-s.Soil.Ks
	}

	if mtx > 0 || s.Boundary.MInput > 0 {
		InfiltrateMatrix(s, mtx, conc, dt, h.sampler)
	}
	if s.PFD != nil && (pfd > 0 || s.PFD.MInput > 0) {
		InfiltratePFD(s, pfd, conc, dt)
	}
	return nil
}
