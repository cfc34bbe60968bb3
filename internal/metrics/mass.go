package metrics

import (
	"math"

	"github.com/san-kum/lastsim/internal/model"
)

// MassDrift tracks the largest relative gap between the water held by the
// column and the initial storage plus precipitation.
type MassDrift struct {
	name     string
	maxDrift float64
	samples  int
}

func NewMassDrift() *MassDrift {
	return &MassDrift{name: "mass_drift"}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(s *model.State) {
	expected := s.Diag.InitialMass + s.Diag.PrecipMass
	if expected == 0 {
		return
	}
	drift := math.Abs(s.TotalMass()-expected) / expected
	m.maxDrift = math.Max(m.maxDrift, drift)
	m.samples++
}

func (m *MassDrift) Value() float64 {
	return m.maxDrift
}

func (m *MassDrift) Reset() {
	m.maxDrift = 0
	m.samples = 0
}
