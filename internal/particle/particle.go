package particle

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Particle is a discrete parcel of water carrying solute. MixTime is only
// meaningful for event particles.
type Particle struct {
	Position      float64
	Age           float64
	Concentration float64
	MixTime       float64
}

// Particles is kept sorted by descending position (shallowest first).
type Particles []Particle

func (ps Particles) Append(p ...Particle) Particles {
	return append(ps, p...)
}

// RemoveRange returns a new slice without elements [i, j).
func (ps Particles) RemoveRange(i, j int) Particles {
	out := make(Particles, 0, len(ps)-(j-i))
	out = append(out, ps[:i]...)
	return append(out, ps[j:]...)
}

func (ps Particles) Clone() Particles {
	out := make(Particles, len(ps))
	copy(out, ps)
	return out
}

func (ps Particles) SortByPositionDesc() {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Position > ps[j].Position
	})
}

func (ps Particles) IsSorted() bool {
	for i := 1; i < len(ps); i++ {
		if ps[i].Position > ps[i-1].Position {
			return false
		}
	}
	return true
}

// IndexRange returns the half-open index range of particles with position
// in (zLo, zHi]. The slice must be sorted.
func (ps Particles) IndexRange(zHi, zLo float64) (int, int) {
	i := sort.Search(len(ps), func(k int) bool { return ps[k].Position <= zHi })
	j := sort.Search(len(ps), func(k int) bool { return ps[k].Position <= zLo })
	if j < i {
		j = i
	}
	return i, j
}

func (ps Particles) CountBetween(zHi, zLo float64) int {
	i, j := ps.IndexRange(zHi, zLo)
	return j - i
}

// SplitTopK splits off the first k particles. Both halves are fresh slices.
func (ps Particles) SplitTopK(k int) (top, rest Particles) {
	if k > len(ps) {
		k = len(ps)
	}
	if k < 0 {
		k = 0
	}
	top = make(Particles, k)
	copy(top, ps[:k])
	rest = make(Particles, len(ps)-k)
	copy(rest, ps[k:])
	return top, rest
}

func (ps Particles) Ages() []float64 {
	out := make([]float64, len(ps))
	for i := range ps {
		out[i] = ps[i].Age
	}
	return out
}

func (ps Particles) Concentrations() []float64 {
	out := make([]float64, len(ps))
	for i := range ps {
		out[i] = ps[i].Concentration
	}
	return out
}

// MeanAge is zero for an empty slice.
func (ps Particles) MeanAge() float64 {
	if len(ps) == 0 {
		return 0
	}
	return floats.Sum(ps.Ages()) / float64(len(ps))
}

func (ps Particles) MeanConcentration() float64 {
	if len(ps) == 0 {
		return 0
	}
	return floats.Sum(ps.Concentrations()) / float64(len(ps))
}

// SoluteMass is the solute carried by the particles when each has mass m.
func (ps Particles) SoluteMass(m float64) float64 {
	return floats.Sum(ps.Concentrations()) * m
}

// AddAge ages every particle by dt.
func (ps Particles) AddAge(dt float64) {
	for i := range ps {
		ps[i].Age += dt
	}
}
