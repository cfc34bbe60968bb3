package forcing

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/interp"

	"github.com/san-kum/lastsim/internal/soil"
)

var ErrEmpty = errors.New("forcing: no records")

const mmPerHourToMPerSec = 1.0 / (1000 * 3600)

// PrecipRecord is one row of a precipitation file. Time is in seconds
// since the start of the run, intensity in mm/h.
type PrecipRecord struct {
	Time          float64 `csv:"time"`
	Intensity     float64 `csv:"intensity"`
	Concentration float64 `csv:"concentration"`
}

// Series is a step-wise precipitation boundary. Rate is in m/s; entry i
// holds from Time[i] until Time[i+1].
type Series struct {
	Time []float64
	Rate []float64
	Conc []float64
}

func LoadPrecipitation(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*PrecipRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewSeries(records)
}

func NewSeries(records []*PrecipRecord) (*Series, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })

	s := &Series{
		Time: make([]float64, len(records)),
		Rate: make([]float64, len(records)),
		Conc: make([]float64, len(records)),
	}
	for i, r := range records {
		if r.Intensity < 0 {
			return nil, fmt.Errorf("negative intensity %f at t=%f", r.Intensity, r.Time)
		}
		s.Time[i] = r.Time
		s.Rate[i] = r.Intensity * mmPerHourToMPerSec
		s.Conc[i] = r.Concentration
	}
	return s, nil
}

// Pulse is a constant intensity (mm/h) for duration seconds followed by
// no rain.
func Pulse(intensity, conc, duration float64) *Series {
	if intensity <= 0 || duration <= 0 {
		return Dry()
	}
	return &Series{
		Time: []float64{0, duration},
		Rate: []float64{intensity * mmPerHourToMPerSec, 0},
		Conc: []float64{conc, 0},
	}
}

func Dry() *Series {
	return &Series{Time: []float64{0}, Rate: []float64{0}, Conc: []float64{0}}
}

// Index returns the entry active at time t, or -1 before the first entry.
func (s *Series) Index(t float64) int {
	return sort.Search(len(s.Time), func(i int) bool { return s.Time[i] > t }) - 1
}

// At returns rate and concentration at time t.
func (s *Series) At(t float64) (rate, conc float64) {
	i := s.Index(t)
	if i < 0 {
		return 0, 0
	}
	return s.Rate[i], s.Conc[i]
}

// Total is the precipitation depth [m] delivered over [0, tEnd).
func (s *Series) Total(tEnd float64) float64 {
	total := 0.0
	for i := range s.Time {
		start := s.Time[i]
		if start >= tEnd {
			break
		}
		end := tEnd
		if i+1 < len(s.Time) && s.Time[i+1] < tEnd {
			end = s.Time[i+1]
		}
		total += s.Rate[i] * (end - start)
	}
	return total
}

// ProfileRecord is one row of an initial profile file. Depth is positive
// downward in metres.
type ProfileRecord struct {
	Depth         float64 `csv:"depth"`
	Theta         float64 `csv:"theta"`
	Concentration float64 `csv:"concentration"`
}

type Profile struct {
	Depth []float64
	Theta []float64
	Conc  []float64
}

func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*ProfileRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewProfile(records)
}

func NewProfile(records []*ProfileRecord) (*Profile, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Depth < records[j].Depth })

	p := &Profile{
		Depth: make([]float64, len(records)),
		Theta: make([]float64, len(records)),
		Conc:  make([]float64, len(records)),
	}
	for i, r := range records {
		if i > 0 && r.Depth == records[i-1].Depth {
			return nil, fmt.Errorf("duplicate profile depth %f", r.Depth)
		}
		p.Depth[i] = r.Depth
		p.Theta[i] = r.Theta
		p.Conc[i] = r.Concentration
	}
	return p, nil
}

func Uniform(theta, conc float64) *Profile {
	return &Profile{Depth: []float64{0}, Theta: []float64{theta}, Conc: []float64{conc}}
}

// OnGrid interpolates the profile to the centre of every grid cell.
// Values beyond the profile ends are held constant.
func (p *Profile) OnGrid(g *soil.Grid) (theta, conc []float64, err error) {
	n := g.NumCells()
	theta = make([]float64, n)
	conc = make([]float64, n)

	if len(p.Depth) == 1 {
		for i := range theta {
			theta[i] = p.Theta[0]
			conc[i] = p.Conc[0]
		}
		return theta, conc, nil
	}

	var thetaFit, concFit interp.PiecewiseLinear
	if err := thetaFit.Fit(p.Depth, p.Theta); err != nil {
		return nil, nil, fmt.Errorf("fitting theta profile: %w", err)
	}
	if err := concFit.Fit(p.Depth, p.Conc); err != nil {
		return nil, nil, fmt.Errorf("fitting concentration profile: %w", err)
	}

	for i := 0; i < n; i++ {
		d := -g.Mid(i)
		theta[i] = thetaFit.Predict(d)
		conc[i] = concFit.Predict(d)
	}
	return theta, conc, nil
}
