package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/san-kum/lastsim/internal/model"
)

// LogProgress logs the water budget every n steps as a post-main hook.
func LogProgress(log logrus.FieldLogger, every int) Hook {
	if every <= 0 {
		every = 1
	}
	return HookFunc(func(s *model.State) error {
		if s.Clock.Step%every != 0 {
			return nil
		}
		log.WithFields(logrus.Fields{
			"step":    s.Clock.Step,
			"time":    s.Clock.Time,
			"n_pre":   len(s.Stores.PreEvent),
			"n_event": len(s.Stores.Event),
			"n_pfd":   len(s.Stores.PFD),
			"mass":    s.TotalMass(),
			"flux":    s.Boundary.Flux,
		}).Info("progress")
		return nil
	})
}

// LogSummary logs the diagnostic totals once the run ends.
func LogSummary(log logrus.FieldLogger) Hook {
	return HookFunc(func(s *model.State) error {
		d := s.Diag
		log.WithFields(logrus.Fields{
			"precip":     d.PrecipMass,
			"matrix_in":  d.MatrixInput,
			"pfd_in":     d.PFDInput,
			"exchanged":  d.ExchangedMass,
			"merged":     d.Merged,
			"mass_error": s.TotalMass() - d.InitialMass - d.PrecipMass,
		}).Info("water balance")
		return nil
	})
}
