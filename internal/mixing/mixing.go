// Package mixing moves mass between particle populations: event water
// joining the resident matrix water, and macropore water seeping into the
// matrix.
package mixing

import (
	"math"

	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/particle"
)

// MixMatrix merges event particles whose age reached their mixing time
// into the pre-event store and returns how many merged.
func MixMatrix(s *model.State) int {
	ev := s.Stores.Event
	if len(ev) == 0 {
		return 0
	}

	keep := make(particle.Particles, 0, len(ev))
	merged := s.Stores.PreEvent.Clone()
	for _, p := range ev {
		if p.Age >= p.MixTime {
			merged = append(merged, p)
		} else {
			keep = append(keep, p)
		}
	}

	n := len(ev) - len(keep)
	if n == 0 {
		return 0
	}

	merged.SortByPositionDesc()
	s.Stores.PreEvent = merged
	s.Stores.Event = keep
	s.Diag.Merged += n
	s.Rebin()
	return n
}

// MixPFD exchanges water from saturated macropore layers into the
// surrounding matrix over a time dt and returns the number of matrix
// particles created. Layers are visited from the deepest upward. Water
// short of a whole matrix particle is carried to the next call together
// with its share of the solute.
func MixPFD(s *model.State, dt float64) int {
	p := s.PFD
	if p == nil || len(s.Stores.PFD) == 0 {
		return 0
	}

	prof := &s.Profile
	ks := s.Soil.Ks
	m := s.Params.M
	contact := 1 - math.Pow((p.R-p.ContactDist)/p.R, 2)

	pfd := s.Stores.PFD
	var added particle.Particles
	addedToCell := make(map[int]int)

	for i := p.NumLayers() - 1; i >= 0; i-- {
		lo, hi := pfd.IndexRange(p.Grid.Z[i], p.Grid.Z[i+1])
		count := hi - lo
		if p.Cap(i) == 0 || count < p.Cap(i) {
			continue
		}

		j := p.Cell[i]
		free := prof.MaxCount[j] - s.MatrixCount(j) - addedToCell[j]
		if free <= 0 {
			continue
		}

		k := prof.K[j]
		kh := 0.0
		if ks+k > 0 {
			kh = 2 * ks * k / (ks + k)
		}
		q := kh * (0 - prof.Psi[j]) / p.R
		mass := q * dt * 1000 * 2 * math.Pi * p.R * p.Grid.Dz[i] * float64(p.NMak)

		nExit := int(math.Floor(mass / p.M))
		nExit = min(nExit, int(math.Floor(float64(count)*contact)))
		nExit = min(nExit, int(math.Floor((float64(free)*m-p.ExchangeCarry)/p.M)))
		if nExit <= 0 {
			continue
		}

		leaving := pfd[hi-nExit : hi]
		age := leaving.MeanAge()

		exitMass := float64(nExit)*p.M + p.ExchangeCarry
		exitSolute := leaving.SoluteMass(p.M) + p.ExchangeSolute
		nMtx := int(math.Floor(exitMass / m))
		p.ExchangeCarry = exitMass - float64(nMtx)*m
		p.ExchangeSolute = exitSolute * p.ExchangeCarry / exitMass

		conc := 0.0
		if nMtx > 0 {
			conc = (exitSolute - p.ExchangeSolute) / (float64(nMtx) * m)
		}

		pfd = pfd.RemoveRange(hi-nExit, hi)
		added = append(added, place(s, i, nMtx, age, conc)...)
		addedToCell[j] += nMtx

		s.Diag.Exchanged += nMtx
		s.Diag.ExchangedMass += float64(nExit) * p.M
	}

	s.Stores.PFD = pfd
	s.RebinPFD()

	if len(added) > 0 {
		pre := s.Stores.PreEvent.Clone().Append(added...)
		pre.SortByPositionDesc()
		s.Stores.PreEvent = pre
		s.Rebin()
	}
	return len(added)
}

// place creates n matrix particles beside PFD layer i, shared over the
// macropore size classes that reach the layer in proportion to their
// rates.
func place(s *model.State, layer, n int, age, conc float64) particle.Particles {
	if n == 0 {
		return nil
	}

	p := s.PFD
	top, bot := p.Grid.Z[layer], p.Grid.Z[layer+1]

	var weights [model.NumClasses]float64
	sum := 0.0
	for c := 0; c < model.NumClasses; c++ {
		if p.ClassBottom[c] < top {
			weights[c] = p.Rates[c]
			sum += p.Rates[c]
		}
	}

	counts := [model.NumClasses]int{}
	lows := [model.NumClasses]float64{}
	if sum <= 0 {
		counts[model.ClassBig] = n
		lows[model.ClassBig] = bot
	} else {
		assigned := 0
		first := -1
		for c := 0; c < model.NumClasses; c++ {
			if weights[c] == 0 {
				continue
			}
			if first < 0 {
				first = c
			}
			counts[c] = int(math.Floor(float64(n) * weights[c] / sum))
			lows[c] = math.Max(bot, p.ClassBottom[c])
			assigned += counts[c]
		}
		counts[first] += n - assigned
	}

	out := make(particle.Particles, 0, n)
	for c := 0; c < model.NumClasses; c++ {
		for k := 0; k < counts[c]; k++ {
			out = append(out, particle.Particle{
				Position:      top - (top-lows[c])*s.Rand.Float64(),
				Age:           age,
				Concentration: conc,
			})
		}
	}
	return out
}
