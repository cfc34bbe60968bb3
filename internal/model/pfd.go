package model

import (
	"fmt"
	"math"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/soil"
)

// Macropore size classes, ordered from deepest reaching to shallowest.
const (
	ClassBig = iota
	ClassMid
	ClassSml
	NumClasses
)

// PFD is the preferential flow domain: NMak cylindrical macropores of
// radius R per unit area, layered on their own grid.
type PFD struct {
	Grid        *soil.Grid
	R           float64
	M           float64 // mass of one PFD particle [kg/m2]
	N           []int   // capacity of one pore per layer
	NMak        int
	ContactDist float64

	Rates       [NumClasses]float64
	ClassBottom [NumClasses]float64

	Theta []float64
	Age   []float64
	Conc  []float64
	Cell  []int // matrix cell at each layer centre

	MInput         float64 // mass waiting to enter the PFD [kg/m2]
	ExchangeCarry  float64 // exchanged mass not yet a whole matrix particle
	ExchangeSolute float64 // solute held in ExchangeCarry
}

func newPFD(cfg config.PFDConfig, g *soil.Grid) (*PFD, error) {
	nl := int(math.Round(cfg.Depth / cfg.Dz))
	if nl < 2 {
		return nil, fmt.Errorf("%w: pfd needs at least two layers, got %d", ErrInvalidConfig, nl)
	}
	if float64(nl)*cfg.Dz > -g.Bottom()+1e-9 {
		return nil, fmt.Errorf("%w: pfd depth %f exceeds column depth %f", ErrInvalidConfig, float64(nl)*cfg.Dz, -g.Bottom())
	}

	pg, err := soil.UniformGrid(nl+1, cfg.Dz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p := &PFD{
		Grid:        pg,
		R:           cfg.Radius,
		M:           cfg.Mass,
		N:           make([]int, nl),
		NMak:        cfg.NMak,
		ContactDist: cfg.ContactDist,
		Rates:       [NumClasses]float64{cfg.RateBig, cfg.RateMid, cfg.RateSml},
		ClassBottom: [NumClasses]float64{-cfg.DepthBig, -cfg.DepthMid, -cfg.DepthSml},
		Theta:       make([]float64, nl),
		Age:         make([]float64, nl),
		Conc:        make([]float64, nl),
		Cell:        make([]int, nl),
	}

	for i := 0; i < nl; i++ {
		vol := math.Pi * p.R * p.R * pg.Dz[i] * 1000
		p.N[i] = int(math.Floor(vol / p.M))
		if p.N[i] == 0 {
			return nil, fmt.Errorf("%w: pfd particle mass %g exceeds pore layer capacity %g", ErrInvalidConfig, p.M, vol)
		}
		p.Cell[i] = g.Cell(pg.Mid(i))
	}
	return p, nil
}

func (p *PFD) NumLayers() int { return p.Grid.NumCells() }

// Cap is the particle capacity of layer i over all pores.
func (p *PFD) Cap(i int) int { return p.N[i] * p.NMak }

func (p *PFD) Layer(pos float64) int { return p.Grid.Cell(pos) }

func (p *PFD) TotalCap() int {
	total := 0
	for i := range p.N {
		total += p.Cap(i)
	}
	return total
}
