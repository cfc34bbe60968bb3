package soil

import (
	"fmt"
	"math"
)

// Grid is the vertical discretization of the soil column. Z holds node
// depths (Z[0] = 0, negative downward); cell i spans (Z[i+1], Z[i]].
type Grid struct {
	Z  []float64
	Dz []float64
}

func NewGrid(z []float64) (*Grid, error) {
	if len(z) < 3 {
		return nil, fmt.Errorf("grid needs at least 3 nodes, got %d", len(z))
	}
	if z[0] != 0 {
		return nil, fmt.Errorf("grid must start at 0, got %f", z[0])
	}

	g := &Grid{
		Z:  make([]float64, len(z)),
		Dz: make([]float64, len(z)-1),
	}
	copy(g.Z, z)

	for i := 0; i < len(z)-1; i++ {
		if z[i+1] >= z[i] {
			return nil, fmt.Errorf("grid nodes must be strictly decreasing at node %d (%f >= %f)", i+1, z[i+1], z[i])
		}
		g.Dz[i] = math.Abs(z[i] - z[i+1])
	}

	return g, nil
}

// UniformGrid builds dim nodes spaced dz apart.
func UniformGrid(dim int, dz float64) (*Grid, error) {
	if dz <= 0 {
		return nil, fmt.Errorf("dz must be positive, got %f", dz)
	}
	z := make([]float64, dim)
	for i := range z {
		z[i] = -float64(i) * dz
	}
	return NewGrid(z)
}

func (g *Grid) Dim() int      { return len(g.Z) }
func (g *Grid) NumCells() int { return len(g.Dz) }
func (g *Grid) Top() float64  { return g.Z[0] }

func (g *Grid) Bottom() float64 { return g.Z[len(g.Z)-1] }

// Cell returns the index of the cell holding pos. Positions outside the
// column are clamped to the first or last cell.
func (g *Grid) Cell(pos float64) int {
	n := g.NumCells()
	if pos > g.Z[1] {
		return 0
	}
	if pos <= g.Z[n-1] {
		return n - 1
	}

	lo, hi := 1, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if pos > g.Z[mid+1] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Mid returns the depth of the centre of cell i.
func (g *Grid) Mid(i int) float64 {
	return g.Z[i] - 0.5*g.Dz[i]
}

// Clamp moves pos into cell i when it has drifted outside its bounds.
func (g *Grid) Clamp(pos float64, i int) float64 {
	if pos > g.Z[i] || pos <= g.Z[i+1] {
		return g.Mid(i)
	}
	return pos
}
