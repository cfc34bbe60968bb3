package transport

import (
	"github.com/san-kum/lastsim/internal/model"
)

// DisplacePFD lets every macropore particle fall to the bottom layer and
// then fills the layers from the bottom up to their capacity. Particles
// that do not fit anywhere are returned to the surface: their water to
// the PFD input carry and their solute to the surface store.
func DisplacePFD(s *model.State) {
	p := s.PFD
	if p == nil || len(s.Stores.PFD) == 0 {
		return
	}

	nl := p.NumLayers()
	counts := make([]int, nl)
	counts[nl-1] = len(s.Stores.PFD)
	for i := nl - 1; i > 0; i-- {
		if over := counts[i] - p.Cap(i); over > 0 {
			counts[i] -= over
			counts[i-1] += over
		}
	}

	out := s.Stores.PFD.Clone()
	out.SortByPositionDesc()

	if over := counts[0] - p.Cap(0); over > 0 {
		spill := out[:over]
		mass := float64(over) * p.M
		solute := spill.SoluteMass(p.M)

		p.MInput += mass
		s.Boundary.SurfaceSolute += solute
		s.Diag.PFDInput -= mass
		s.Diag.PFDSolute -= solute

		out = out.RemoveRange(0, over)
		counts[0] = p.Cap(0)
	}

	k := 0
	for i := 0; i < nl; i++ {
		top, bot := p.Grid.Z[i], p.Grid.Z[i+1]
		for c := 0; c < counts[i]; c++ {
			out[k].Position = bot + (top-bot)*(1-s.Rand.Float64())
			k++
		}
	}

	s.Stores.PFD = out
	s.RebinPFD()
}
