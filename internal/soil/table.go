package soil

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Tables holds diffusivity and conductivity sampled at evenly spaced
// moisture bins strictly inside (thr, ths).
type Tables struct {
	Theta []float64
	D     []float64
	K     []float64

	sortedD []float64
}

// BuildTables samples nclass bins at their midpoints.
func BuildTables(vg VanGenuchten, nclass int) (*Tables, error) {
	if nclass < 1 {
		return nil, fmt.Errorf("nclass must be positive, got %d", nclass)
	}
	if err := vg.Validate(); err != nil {
		return nil, err
	}

	t := &Tables{
		Theta: make([]float64, nclass),
		D:     make([]float64, nclass),
		K:     make([]float64, nclass),
	}

	width := (vg.Ths - vg.Thr) / float64(nclass)
	for i := 0; i < nclass; i++ {
		theta := vg.Thr + (float64(i)+0.5)*width
		psi, c := vg.Psi(theta)
		k := vg.K(psi)

		t.Theta[i] = theta
		t.K[i] = k
		if c > 0 {
			t.D[i] = k / c
		}
	}

	t.sortedD = make([]float64, nclass)
	copy(t.sortedD, t.D)
	sort.Float64s(t.sortedD)

	return t, nil
}

func (t *Tables) Len() int { return len(t.D) }

// Class returns the highest bin index whose diffusivity is below d, or -1
// when no bin qualifies.
func (t *Tables) Class(d float64) int {
	for i := len(t.D) - 1; i >= 0; i-- {
		if t.D[i] < d {
			return i
		}
	}
	return -1
}

// DQuantile returns the empirical p-quantile of the diffusivity table.
func (t *Tables) DQuantile(p float64) float64 {
	return stat.Quantile(p, stat.Empirical, t.sortedD, nil)
}

func (t *Tables) KMax() float64 {
	return t.K[len(t.K)-1]
}
