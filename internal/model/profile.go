package model

import (
	"github.com/san-kum/lastsim/internal/particle"
)

// RefreshPre suppresses transport in near-dry cells.
func (s *State) RefreshPre() {
	limit := 1.1 * s.Soil.Thr
	p := &s.Profile
	for j, th := range p.Theta {
		if th < limit {
			p.V[j] = 0
			p.D[j] = 0
		}
	}
}

// RefreshPost recomputes potential, capacity, conductivity, diffusivity
// and the gravity-driven velocity from the current moisture.
func (s *State) RefreshPost() {
	p := &s.Profile
	p.Psi, p.C = s.Soil.PsiTheta(p.Theta)
	p.K = s.Soil.KPsi(p.Psi)
	for j := range p.Theta {
		p.V[j] = p.K[j]
		p.D[j] = 0
		if p.C[j] > 0 {
			p.D[j] = p.K[j] / p.C[j]
		}
	}
}

// Rebin bins matrix particles into cells, enforces the saturation ceiling
// and recomputes moisture, age and concentration. Overflow moves one cell
// deeper, event particles first; overflow of the deepest cell moves up.
// Both matrix stores are replaced by sorted copies.
func (s *State) Rebin() {
	g := s.Grid
	n := g.NumCells()
	pre := s.Stores.PreEvent.Clone()
	ev := s.Stores.Event.Clone()

	preIdx := make([][]int, n)
	evIdx := make([][]int, n)
	for i := range pre {
		c := g.Cell(pre[i].Position)
		preIdx[c] = append(preIdx[c], i)
	}
	for i := range ev {
		c := g.Cell(ev[i].Position)
		evIdx[c] = append(evIdx[c], i)
	}

	count := func(j int) int { return len(preIdx[j]) + len(evIdx[j]) }
	move := func(from, to int) {
		shift := g.Mid(to) - g.Mid(from)
		if k := len(evIdx[from]); k > 0 {
			idx := evIdx[from][k-1]
			evIdx[from] = evIdx[from][:k-1]
			ev[idx].Position = g.Clamp(ev[idx].Position+shift, to)
			evIdx[to] = append(evIdx[to], idx)
			return
		}
		k := len(preIdx[from])
		idx := preIdx[from][k-1]
		preIdx[from] = preIdx[from][:k-1]
		pre[idx].Position = g.Clamp(pre[idx].Position+shift, to)
		preIdx[to] = append(preIdx[to], idx)
	}

	for j := 0; j < n-1; j++ {
		for count(j) > s.Profile.MaxCount[j] {
			move(j, j+1)
		}
	}
	for j := n - 1; j > 0; j-- {
		for count(j) > s.Profile.MaxCount[j] {
			move(j, j-1)
		}
	}

	p := &s.Profile
	for j := 0; j < n; j++ {
		p.Theta[j] = float64(count(j)) * s.Params.M / (g.Dz[j] * 1000)

		p.Age[j], p.Cw[j] = 0, 0
		if len(preIdx[j]) == 0 {
			continue
		}
		for _, idx := range preIdx[j] {
			p.Age[j] += pre[idx].Age
			p.Cw[j] += pre[idx].Concentration
		}
		p.Age[j] /= float64(len(preIdx[j]))
		p.Cw[j] /= float64(len(preIdx[j]))
		for _, idx := range preIdx[j] {
			pre[idx].Concentration = p.Cw[j]
		}
	}
	p.Theta[n] = p.Theta[n-1]
	p.Age[n] = p.Age[n-1]
	p.Cw[n] = p.Cw[n-1]

	pre.SortByPositionDesc()
	ev.SortByPositionDesc()
	s.Stores.PreEvent = pre
	s.Stores.Event = ev
}

// RebinPFD recomputes layer saturation, age and concentration of the
// macropore domain. The PFD store is sorted on return.
func (s *State) RebinPFD() {
	if s.PFD == nil {
		return
	}
	p := s.PFD
	ps := s.Stores.PFD
	ps.SortByPositionDesc()

	for i := 0; i < p.NumLayers(); i++ {
		lo, hi := ps.IndexRange(p.Grid.Z[i], p.Grid.Z[i+1])
		layer := ps[lo:hi]
		p.Theta[i] = 0
		if c := p.Cap(i); c > 0 {
			p.Theta[i] = float64(len(layer)) / float64(c)
		}
		p.Age[i] = layer.MeanAge()
		p.Conc[i] = layer.MeanConcentration()
	}
}

// LayerParticles returns the PFD particles of layer i as a view into the
// sorted store.
func (s *State) LayerParticles(i int) particle.Particles {
	lo, hi := s.Stores.PFD.IndexRange(s.PFD.Grid.Z[i], s.PFD.Grid.Z[i+1])
	return s.Stores.PFD[lo:hi]
}
