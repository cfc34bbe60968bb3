package metrics

import (
	"github.com/san-kum/lastsim/internal/model"
)

// SoluteMass is the mean solute mass held by all particles.
type SoluteMass struct {
	name    string
	sum     float64
	samples int
}

func NewSoluteMass() *SoluteMass {
	return &SoluteMass{name: "solute_mass"}
}

func (c *SoluteMass) Name() string {
	return c.name
}

func (c *SoluteMass) Observe(s *model.State) {
	c.sum += s.SoluteMass()
	c.samples++
}

func (c *SoluteMass) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *SoluteMass) Reset() {
	c.sum = 0
	c.samples = 0
}

// EventFraction is the share of matrix particles still in the event store
// at the last observation.
type EventFraction struct {
	name  string
	value float64
}

func NewEventFraction() *EventFraction {
	return &EventFraction{name: "event_fraction"}
}

func (e *EventFraction) Name() string { return e.name }

func (e *EventFraction) Observe(s *model.State) {
	total := len(s.Stores.PreEvent) + len(s.Stores.Event)
	if total == 0 {
		e.value = 0
		return
	}
	e.value = float64(len(s.Stores.Event)) / float64(total)
}

func (e *EventFraction) Value() float64 { return e.value }
func (e *EventFraction) Reset()         { e.value = 0 }

// MeanAge is the mean age of the pre-event water at the last observation.
type MeanAge struct {
	name  string
	value float64
}

func NewMeanAge() *MeanAge {
	return &MeanAge{name: "mean_age"}
}

func (a *MeanAge) Name() string { return a.name }

func (a *MeanAge) Observe(s *model.State) {
	a.value = s.Stores.PreEvent.MeanAge()
}

func (a *MeanAge) Value() float64 { return a.value }
func (a *MeanAge) Reset()         { a.value = 0 }
