// Package transport moves particles through the soil matrix and the
// macropore domain.
package transport

import (
	"math"

	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/particle"
	"github.com/san-kum/lastsim/internal/soil"
)

// DisplaceMatrix advances the mobile fraction of pre-event particles by one
// advection plus random-walk step of length dt. The store is left unsorted
// until the caller rebins.
//
// Within cell j the particles are split evenly over the lookup classes
// 0..icl, where icl is the highest class diffusing slower than the cell.
// Only the deepest mob_fak share of a cell moves; those belong to the
// fastest classes.
func DisplaceMatrix(s *model.State, dt float64) {
	g := s.Grid
	p := &s.Profile
	tab := s.Tables
	rng := s.Rand

	pre := s.Stores.PreEvent
	out := pre.Clone()

	for j := 0; j < g.NumCells(); j++ {
		if p.D[j] <= 0 {
			continue
		}
		icl := tab.Class(p.D[j])
		if icl < 0 {
			continue
		}

		lo, hi := pre.IndexRange(g.Z[j], g.Z[j+1])
		count := hi - lo
		if count == 0 {
			continue
		}

		dPart := count / (icl + 1)
		mobile := int(math.Floor(s.Params.MobFak * float64(count)))

		for k := count - mobile; k < count; k++ {
			class := min(k, icl)
			if dPart > 0 {
				class = min(k/dPart, icl)
			}

			kScale := 0.0
			if p.V[j] > 0 {
				kScale = tab.K[class] / p.V[j]
			}
			dScale := tab.D[class] / p.D[j]

			pos := pre[lo+k].Position
			frac := (g.Z[j] - pos) / g.Dz[j]
			v := p.V[j] + frac*(p.V[j+1]-p.V[j])
			d := math.Max(0, p.D[j]+frac*(p.D[j+1]-p.D[j]))

			corr := 0.25 * (p.D[j] - p.D[j+1]) * dScale / g.Dz[0]
			walk := rng.NormFloat64() * dScale * math.Sqrt(2*d*dt)

			out[lo+k].Position = pos - ((v*kScale+corr)*dt + walk)
		}
	}

	bound(g, out)
	s.Stores.PreEvent = out
}

// DisplaceEvent moves every event particle with a single fast class: the
// prob-quantile of the diffusivity table and 2.5 times the largest
// tabulated conductivity.
func DisplaceEvent(s *model.State, dt float64) {
	if len(s.Stores.Event) == 0 {
		return
	}

	d := s.Tables.DQuantile(s.Params.Prob)
	k := 2.5 * s.Tables.KMax()
	step := math.Sqrt(2 * d * dt)

	out := s.Stores.Event.Clone()
	for i := range out {
		out[i].Position -= k*dt + s.Rand.NormFloat64()*step
	}

	bound(s.Grid, out)
	s.Stores.Event = out
}

// bound reflects particles that left through the surface and parks those
// that left through the bottom in the deepest cell.
func bound(g *soil.Grid, ps particle.Particles) {
	top := g.Top()
	bottom := g.Bottom()
	for i := range ps {
		if ps[i].Position > top {
			ps[i].Position = top - ps[i].Position
		}
		if ps[i].Position <= bottom {
			ps[i].Position = g.Z[g.Dim()-2]
		}
	}
}
