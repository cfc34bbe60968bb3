package metrics

import (
	"github.com/san-kum/lastsim/internal/model"
)

// Saturation is the fraction of steps in which no cell held more
// particles than its saturation ceiling.
type Saturation struct {
	name       string
	violations int
	samples    int
}

func NewSaturation() *Saturation {
	return &Saturation{name: "saturation"}
}

func (s *Saturation) Name() string {
	return s.name
}

func (s *Saturation) Observe(st *model.State) {
	s.samples++
	for i, limit := range st.Profile.MaxCount {
		if st.MatrixCount(i) > limit {
			s.violations++
			break
		}
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Saturation) Reset() {
	s.violations = 0
	s.samples = 0
}
