package soil

import (
	"fmt"
	"math"
)

const (
	// SaturationThreshold is the fraction of ths above which a cell is
	// treated as saturated.
	SaturationThreshold = 0.99

	minSe = 1e-6
)

// VanGenuchten holds the Mualem-van Genuchten retention and conductivity
// parameters of the soil matrix.
type VanGenuchten struct {
	Ks    float64 // saturated conductivity [m/s]
	Ths   float64 // saturated water content
	Thr   float64 // residual water content
	Alpha float64 // [1/m]
	N     float64
	Stor  float64 // specific storage used for saturated cells
	L     float64 // pore connectivity
}

func (vg VanGenuchten) Validate() error {
	if vg.Ks <= 0 {
		return fmt.Errorf("ks must be positive, got %g", vg.Ks)
	}
	if vg.Thr < 0 || vg.Ths <= vg.Thr || vg.Ths > 1 {
		return fmt.Errorf("need 0 <= thr < ths <= 1, got thr=%g ths=%g", vg.Thr, vg.Ths)
	}
	if vg.Alpha <= 0 {
		return fmt.Errorf("alpha must be positive, got %g", vg.Alpha)
	}
	if vg.N <= 1 {
		return fmt.Errorf("n must be greater than 1, got %g", vg.N)
	}
	if vg.Stor <= 0 {
		return fmt.Errorf("stor must be positive, got %g", vg.Stor)
	}
	return nil
}

func (vg VanGenuchten) M() float64 { return 1 - 1/vg.N }

// Saturated reports whether theta is above the saturation threshold.
func (vg VanGenuchten) Saturated(theta float64) bool {
	return theta > SaturationThreshold*vg.Ths
}

// Psi returns the matric potential [m] and the specific moisture capacity
// dtheta/dpsi [1/m] for the water content theta. Saturated cells get psi=0
// and the storage constant as capacity.
func (vg VanGenuchten) Psi(theta float64) (psi, c float64) {
	if vg.Saturated(theta) {
		return 0, vg.Stor
	}

	m := vg.M()
	se := (theta - vg.Thr) / (vg.Ths - vg.Thr)
	se = math.Max(minSe, math.Min(se, 1))

	x := math.Pow(math.Pow(se, -1/m)-1, 1/vg.N)
	psi = -x / vg.Alpha

	c = vg.Alpha * vg.N * m * (vg.Ths - vg.Thr) *
		math.Pow(x, vg.N-1) * math.Pow(1+math.Pow(x, vg.N), -m-1)
	return psi, c
}

// Theta is the inverse of Psi for unsaturated potentials.
func (vg VanGenuchten) Theta(psi float64) float64 {
	if psi >= 0 {
		return vg.Ths
	}
	x := vg.Alpha * math.Abs(psi)
	return vg.Thr + (vg.Ths-vg.Thr)*math.Pow(1+math.Pow(x, vg.N), -vg.M())
}

// K returns the Mualem hydraulic conductivity [m/s] at potential psi.
func (vg VanGenuchten) K(psi float64) float64 {
	if psi >= 0 {
		return vg.Ks
	}

	m := vg.M()
	x := vg.Alpha * math.Abs(psi)
	xn := math.Pow(x, vg.N)

	num := 1 - math.Pow(x, vg.N-1)*math.Pow(1+xn, -m)
	return vg.Ks * num * num / math.Pow(1+xn, m*vg.L)
}

// PsiTheta evaluates Psi for every cell. theta is expected to lie within
// [thr, ths]; values outside are clamped rather than rejected.
func (vg VanGenuchten) PsiTheta(theta []float64) (psi, c []float64) {
	psi = make([]float64, len(theta))
	c = make([]float64, len(theta))
	for i, th := range theta {
		psi[i], c[i] = vg.Psi(th)
	}
	return psi, c
}

func (vg VanGenuchten) KPsi(psi []float64) []float64 {
	k := make([]float64, len(psi))
	for i, p := range psi {
		k[i] = vg.K(p)
	}
	return k
}
