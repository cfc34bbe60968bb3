package model

import (
	"math/rand/v2"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/forcing"
	"github.com/san-kum/lastsim/internal/particle"
	"github.com/san-kum/lastsim/internal/soil"
)

// State is the complete mutable state of one simulation. It is owned by a
// single orchestrator and handed to each engine by pointer.
type State struct {
	Grid     *soil.Grid
	Soil     soil.VanGenuchten
	Tables   *soil.Tables
	Params   Params
	Stores   Stores
	Profile  Profile
	PFD      *PFD // nil when the macropore domain is disabled
	Boundary Boundary
	Clock    Clock
	Diag     Diagnostics
	Rand     *rand.Rand
}

type Params struct {
	M      float64 // mass of one matrix particle [kg/m2]
	MobFak float64
	Prob   float64
	Mixing config.MixingConfig
}

// Stores are the three particle populations. They never share backing
// arrays.
type Stores struct {
	PreEvent particle.Particles
	Event    particle.Particles
	PFD      particle.Particles
}

// Profile holds per-node fields derived from the particle population.
// Vectors have one entry per grid node; the last entry mirrors the
// deepest cell.
type Profile struct {
	Theta []float64
	Psi   []float64
	C     []float64
	K     []float64
	D     []float64
	V     []float64
	Cw    []float64
	Age   []float64

	MaxCount []int // saturation ceiling per cell
}

type Boundary struct {
	Series *forcing.Series
	Index  int
	Flux   float64 // current precipitation rate [m/s]
	Conc   float64

	MInput        float64 // matrix mass carried to the next infiltration [kg/m2]
	SurfaceSolute float64
}

type Clock struct {
	Time float64
	Dtc  float64
	TEnd float64
	Step int
}

// Diagnostics are running totals kept for reporting only.
type Diagnostics struct {
	InitialMass   float64
	PrecipMass    float64
	MatrixInput   float64
	PFDInput      float64
	MatrixSolute  float64
	PFDSolute     float64
	ExchangedMass float64
	Merged        int
	Exchanged     int
}

func (s *State) Done() bool {
	return s.Clock.Time >= s.Clock.TEnd
}

// MatrixCount returns the number of matrix particles in cell i.
func (s *State) MatrixCount(i int) int {
	hi, lo := s.Grid.Z[i], s.Grid.Z[i+1]
	return s.Stores.PreEvent.CountBetween(hi, lo) + s.Stores.Event.CountBetween(hi, lo)
}

// ParticleMass is the water held in particles of all stores [kg/m2].
func (s *State) ParticleMass() float64 {
	mass := float64(len(s.Stores.PreEvent)+len(s.Stores.Event)) * s.Params.M
	if s.PFD != nil {
		mass += float64(len(s.Stores.PFD)) * s.PFD.M
	}
	return mass
}

// CarryMass is input and exchange mass not yet converted into particles.
func (s *State) CarryMass() float64 {
	mass := s.Boundary.MInput
	if s.PFD != nil {
		mass += s.PFD.MInput + s.PFD.ExchangeCarry
	}
	return mass
}

func (s *State) TotalMass() float64 {
	return s.ParticleMass() + s.CarryMass()
}

// SoluteMass is the solute carried by all particles.
func (s *State) SoluteMass() float64 {
	mass := s.Stores.PreEvent.SoluteMass(s.Params.M) + s.Stores.Event.SoluteMass(s.Params.M)
	if s.PFD != nil {
		mass += s.Stores.PFD.SoluteMass(s.PFD.M)
	}
	return mass
}

// CarrySolute is the solute in exchanged water not yet in the matrix.
func (s *State) CarrySolute() float64 {
	if s.PFD == nil {
		return 0
	}
	return s.PFD.ExchangeSolute
}

// AgeParticles advances the age of every particle by dt.
func (s *State) AgeParticles(dt float64) {
	s.Stores.PreEvent.AddAge(dt)
	s.Stores.Event.AddAge(dt)
	s.Stores.PFD.AddAge(dt)
}

// AdvanceBoundary moves the precipitation pointer to the current time.
func (s *State) AdvanceBoundary() {
	b := &s.Boundary
	b.Index = b.Series.Index(s.Clock.Time)
	b.Flux, b.Conc = b.Series.At(s.Clock.Time)
}

// Snapshot copies the cell profiles.
func (s *State) Snapshot() (theta, cw, age []float64) {
	n := s.Grid.NumCells()
	theta = append([]float64(nil), s.Profile.Theta[:n]...)
	cw = append([]float64(nil), s.Profile.Cw[:n]...)
	age = append([]float64(nil), s.Profile.Age[:n]...)
	return theta, cw, age
}
