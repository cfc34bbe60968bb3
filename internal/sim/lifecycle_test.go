package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/infiltration"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/sim"
)

var _ = Describe("Simulation", func() {
	var (
		cfg *config.Config
		st  *model.State
		s   *sim.Simulation
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		cfg.Grid = config.GridConfig{Dim: 8, Dz: 0.1}
		cfg.Particles.Count = 4000
		cfg.Run.TEnd = 600
		cfg.Run.PrecipRate = 20
		cfg.Run.PrecipDuration = 300

		var err error
		st, err = model.New(cfg, nil, nil, model.NewRand(7))
		Expect(err).NotTo(HaveOccurred())

		logger, _ := test.NewNullLogger()
		s = sim.New(st, sim.WithLogger(logger), sim.WithSnapshotEvery(5))
		s.AddPreMain(infiltration.NewHook())
	})

	Context("before running", func() {
		It("is ready", func() {
			Expect(s.Phase()).To(Equal(sim.Ready))
			Expect(s.Result()).To(BeNil())
		})

		It("refuses to step", func() {
			Expect(s.Step()).To(MatchError(sim.ErrNotRunning))
		})
	})

	Context("when stepped by hand", func() {
		It("moves through running to finished", func() {
			Expect(s.Setup()).To(Succeed())
			Expect(s.Phase()).To(Equal(sim.Running))

			for !st.Done() {
				Expect(s.Step()).To(Succeed())
			}
			Expect(s.Finish()).To(Succeed())
			Expect(s.Phase()).To(Equal(sim.Finished))
			Expect(s.Result().StepsTaken).To(Equal(10))
		})
	})

	Context("after a run", func() {
		var result *sim.Result

		BeforeEach(func() {
			var err error
			result, err = s.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
		})

		It("closes the water balance", func() {
			d := result.Diagnostics
			Expect(d.PrecipMass).To(BeNumerically(">", 0))
			Expect(st.TotalMass()).To(BeNumerically("~", d.InitialMass+d.PrecipMass, 1e-6))
		})

		It("records every step", func() {
			Expect(result.Mass).To(HaveLen(11))
			Expect(result.Snapshots).To(HaveLen(3))
			Expect(result.Final().Time).To(BeNumerically("~", 600, 1e-9))
		})

		It("never oversaturates a cell", func() {
			for _, th := range result.Final().Theta {
				Expect(th).To(BeNumerically("<=", cfg.Soil.Ths+1e-9))
			}
		})

		It("cannot run twice", func() {
			_, err := s.Run(context.Background())
			Expect(errors.Is(err, sim.ErrNotReady)).To(BeTrue())
		})
	})

	Context("with a failing hook", func() {
		It("stops with a step error", func() {
			s.AddPostMain(sim.HookFunc(func(*model.State) error {
				return errors.New("disk full")
			}))

			_, err := s.Run(context.Background())
			var simErr *sim.SimError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Step).To(Equal(1))
			Expect(simErr.Error()).To(ContainSubstring("disk full"))
		})
	})
})
