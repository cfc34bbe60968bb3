package soil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loam() VanGenuchten {
	return VanGenuchten{Ks: 2.9e-6, Ths: 0.45, Thr: 0.05, Alpha: 3.6, N: 1.56, Stor: 1e-4, L: 0.5}
}

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name    string
		z       []float64
		wantErr bool
	}{
		{"valid", []float64{0, -0.1, -0.3}, false},
		{"too short", []float64{0, -0.1}, true},
		{"not at surface", []float64{-0.1, -0.2, -0.3}, true},
		{"not decreasing", []float64{0, -0.1, -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrid(tt.z)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.z)-1, g.NumCells())
			assert.InDelta(t, 0.2, g.Dz[1], 1e-12)
		})
	}
}

func TestGridCell(t *testing.T) {
	g, err := UniformGrid(10, 0.1)
	require.NoError(t, err)

	assert.Equal(t, 0, g.Cell(0))
	assert.Equal(t, 0, g.Cell(0.05))
	assert.Equal(t, 0, g.Cell(-0.05))
	assert.Equal(t, 1, g.Cell(-0.1000001))
	assert.Equal(t, 3, g.Cell(-0.35))
	assert.Equal(t, 8, g.Cell(-0.85))
	assert.Equal(t, 8, g.Cell(-2))

	for i := 0; i < g.NumCells(); i++ {
		assert.Equal(t, i, g.Cell(g.Mid(i)), "cell %d", i)
	}
}

func TestPsiThetaRoundTrip(t *testing.T) {
	vg := loam()
	for _, theta := range []float64{0.06, 0.1, 0.2, 0.3, 0.4, 0.44} {
		psi, c := vg.Psi(theta)
		assert.Less(t, psi, 0.0)
		assert.Greater(t, c, 0.0)
		assert.InDelta(t, theta, vg.Theta(psi), 1e-9, "theta %g", theta)
	}
}

func TestPsiThetaSaturated(t *testing.T) {
	vg := loam()
	psi, c := vg.PsiTheta([]float64{0.446, 0.45})
	assert.Equal(t, []float64{0, 0}, psi)
	assert.Equal(t, []float64{vg.Stor, vg.Stor}, c)
}

func TestCapacityMatchesDerivative(t *testing.T) {
	vg := loam()
	psi, c := vg.Psi(0.2)
	h := 1e-6
	num := (vg.Theta(psi+h) - vg.Theta(psi-h)) / (2 * h)
	assert.InEpsilon(t, num, c, 1e-4)
}

func TestKPsi(t *testing.T) {
	vg := loam()
	k := vg.KPsi([]float64{0, 0.5, -0.1, -1, -10})
	assert.Equal(t, vg.Ks, k[0])
	assert.Equal(t, vg.Ks, k[1])
	assert.Less(t, k[2], vg.Ks)
	assert.Less(t, k[3], k[2])
	assert.Less(t, k[4], k[3])
	for _, v := range k {
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestBuildTables(t *testing.T) {
	vg := loam()
	tab, err := BuildTables(vg, 50)
	require.NoError(t, err)
	require.Equal(t, 50, tab.Len())

	for i := range tab.Theta {
		assert.Greater(t, tab.Theta[i], vg.Thr)
		assert.Less(t, tab.Theta[i], vg.Ths)
		assert.GreaterOrEqual(t, tab.D[i], 0.0)
		if i > 0 {
			assert.GreaterOrEqual(t, tab.K[i], tab.K[i-1], "K not monotone at %d", i)
		}
	}
	assert.Equal(t, tab.K[49], tab.KMax())
}

func TestTablesClass(t *testing.T) {
	tab := &Tables{D: []float64{1, 3, 2, 5}}
	assert.Equal(t, -1, tab.Class(1))
	assert.Equal(t, 0, tab.Class(1.5))
	assert.Equal(t, 2, tab.Class(3))
	assert.Equal(t, 3, tab.Class(10))
}

func TestDQuantile(t *testing.T) {
	tab, err := BuildTables(loam(), 20)
	require.NoError(t, err)

	lo := tab.DQuantile(0.1)
	hi := tab.DQuantile(0.9)
	assert.LessOrEqual(t, lo, hi)

	max := 0.0
	for _, d := range tab.D {
		max = math.Max(max, d)
	}
	assert.Equal(t, max, tab.DQuantile(1))
}

func TestBuildTablesInvalid(t *testing.T) {
	_, err := BuildTables(loam(), 0)
	assert.Error(t, err)

	bad := loam()
	bad.N = 0.9
	_, err = BuildTables(bad, 10)
	assert.Error(t, err)
}
