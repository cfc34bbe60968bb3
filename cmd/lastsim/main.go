package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/lastsim/internal/automation"
	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/experiment"
	"github.com/san-kum/lastsim/internal/forcing"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/optim"
	"github.com/san-kum/lastsim/internal/sim"
	"github.com/san-kum/lastsim/internal/soil"
	"github.com/san-kum/lastsim/internal/storage"
	"github.com/san-kum/lastsim/internal/viz"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	precipFile string
	profFile   string
	overrides  []string
	seed       int64
	logEvery   int
	noSave     bool
	// plot
	pngPath string
	// export
	outPath  string
	profiles bool
	// tables
	every int
	// ensemble
	numRuns int
	// sweep
	sweepKey   string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	// calibrate
	gridParams []string
	observed   string
	metricName string
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lastsim",
		Short: "particle tracking soil water and solute simulator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".lastsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addModelFlags(runCmd)
	runCmd.Flags().IntVar(&logEvery, "log-every", 60, "log progress every n steps (0 disables)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot moisture profiles and mass balance of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&pngPath, "png", "", "also write the profiles to an image file")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(args[0], outPath)
		},
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export the mass balance (or profiles) of a run to CSV on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().BoolVar(&profiles, "profiles", false, "export moisture profiles instead")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "print the diffusivity and conductivity lookup tables",
		RunE:  printTables,
	}
	addModelFlags(tablesCmd)
	tablesCmd.Flags().IntVar(&every, "every", 10, "print every n-th class")

	configCmd := &cobra.Command{
		Use:   "config [file]",
		Short: "write the effective configuration to a yaml or toml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return config.Save(args[0], cfg)
		},
	}
	addModelFlags(configCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run simulation with live visualization",
		RunE:  runLive,
	}
	addModelFlags(liveCmd)

	ensembleCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "run consecutive seeds in parallel and summarise the spread",
		RunE:  runEnsemble,
	}
	addModelFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&numRuns, "runs", 8, "number of seeds")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run a parameter sweep over one config key",
		RunE:  runSweep,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepKey, "key", "soil.ks", "dotted config key")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 1e-6, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 1e-5, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "grid search config keys against an observed profile or a metric",
		RunE:  runCalibrate,
	}
	addModelFlags(calibrateCmd)
	calibrateCmd.Flags().StringArrayVar(&gridParams, "param", nil, "key=v1,v2,... (repeatable)")
	calibrateCmd.Flags().StringVar(&observed, "observed", "", "observed final profile csv (depth,theta,concentration)")
	calibrateCmd.Flags().StringVar(&metricName, "metric", "mass_drift", "metric to minimise without --observed")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml batch of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd, presetsCmd, tablesCmd, configCmd, liveCmd, ensembleCmd, sweepCmd, calibrateCmd, scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	})
	return nil
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml or toml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&precipFile, "precip", "", "precipitation csv (time,intensity,concentration)")
	cmd.Flags().StringVar(&profFile, "profile", "", "initial profile csv (depth,theta,concentration)")
	cmd.Flags().StringSliceVar(&overrides, "set", nil, "override a config key, e.g. --set soil.ks=1e-5")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
}

// resolveConfig layers defaults, preset, config file, --set overrides and
// the seed flag, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	for _, kv := range overrides {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid override %q, want key=value", kv)
		}
		if err := cfg.Set(strings.TrimSpace(key), strings.TrimSpace(val)); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("seed") || (configFile == "" && preset == "") {
		cfg.Run.Seed = seed
	}
	return cfg, cfg.Validate()
}

func newExperiment(cfg *config.Config, log logrus.FieldLogger) (*experiment.Experiment, error) {
	exp := experiment.New(experiment.Config{
		Model:       cfg,
		ProfilePath: profFile,
		PrecipPath:  precipFile,
		LogEvery:    logEvery,
	}, log)
	return exp, exp.Load()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp, err := newExperiment(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	if err := exp.Setup(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"name":  cfg.Name,
		"seed":  cfg.Run.Seed,
		"t_end": cfg.Run.TEnd,
	}).Info("running simulation")
	start := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Println(titleStyle.Render(strings.ToUpper(cfg.Name)))
	printField("elapsed", elapsed.Round(time.Millisecond).String())
	printField("steps", strconv.Itoa(result.StepsTaken))
	printSummary(result)

	if noSave {
		return nil
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, exp.GetSimulator().State().Grid.Z, result)
	if err != nil {
		return err
	}
	printField("run id", runID)
	return nil
}

func printField(key, val string) {
	fmt.Println(keyStyle.Render(key) + val)
}

func printSummary(result *sim.Result) {
	d := result.Diagnostics
	printField("precipitation", fmt.Sprintf("%.4f kg/m2", d.PrecipMass))
	printField("matrix input", fmt.Sprintf("%.4f kg/m2", d.MatrixInput))
	printField("pfd input", fmt.Sprintf("%.4f kg/m2", d.PFDInput))
	printField("exchanged", fmt.Sprintf("%.4f kg/m2 (%d particles)", d.ExchangedMass, d.Exchanged))
	printField("mixed", strconv.Itoa(d.Merged))

	if len(result.Mass) > 0 {
		last := result.Mass[len(result.Mass)-1]
		balance := last.Total - d.InitialMass - d.PrecipMass
		line := fmt.Sprintf("%.3e kg/m2", balance)
		if balance > 1e-6 || balance < -1e-6 {
			line = warnStyle.Render(line)
		}
		printField("mass error", line)
	}

	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(result.Metrics) {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tT_END\tDTC\tSEED\tCELLS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0fs\t%.0fs\t%d\t%d\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.TEnd,
			run.Dtc,
			run.Seed,
			run.Cells,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	prof, err := st.LoadProfiles(runID)
	if err != nil {
		return err
	}
	if len(prof.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("name: %s\n", meta.Name)
	fmt.Printf("snapshots: %d\n\n", len(prof.Times))

	first, last := 0, len(prof.Times)-1
	series := [][]float64{prof.Theta[first]}
	labels := []string{fmt.Sprintf("t=%.0fs", prof.Times[first])}
	if last != first {
		series = append(series, prof.Theta[last])
		labels = append(labels, fmt.Sprintf("t=%.0fs", prof.Times[last]))
	}
	fmt.Println(viz.ProfileGraph(series, labels, 12))
	fmt.Println()

	mass, err := st.LoadMassBalance(runID)
	if err != nil {
		return err
	}
	if len(mass) > 1 {
		total := make([]float64, len(mass))
		event := make([]float64, len(mass))
		for i, r := range mass {
			total[i] = r.Total
			event[i] = r.Event
		}
		fmt.Println(viz.TimeGraph(total, "water in column [kg/m2]", 8, 80))
		fmt.Println()
		fmt.Println(viz.TimeGraph(event, "event water [kg/m2]", 8, 80))
	}

	if pngPath == "" {
		return nil
	}
	if len(meta.Depths) != len(prof.Theta[first])+1 {
		return fmt.Errorf("run %s has no grid stored", runID)
	}
	mids := make([]float64, len(meta.Depths)-1)
	for i := range mids {
		mids[i] = -0.5 * (meta.Depths[i] + meta.Depths[i+1])
	}
	if err := viz.SaveProfilePNG(pngPath, mids, series, labels); err != nil {
		return err
	}
	fmt.Printf("\nwrote %s\n", pngPath)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	if !profiles {
		mass, err := st.LoadMassBalance(runID)
		if err != nil {
			return err
		}
		return gocsv.Marshal(&mass, os.Stdout)
	}

	prof, err := st.LoadProfiles(runID)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if len(prof.Theta) == 0 {
		return nil
	}
	header := []string{"time"}
	for i := range prof.Theta[0] {
		header = append(header, fmt.Sprintf("theta%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, t := range prof.Times {
		row := []string{strconv.FormatFloat(t, 'f', 6, 64)}
		for _, v := range prof.Theta[i] {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tKS\tTHS\tTHR\tALPHA\tN\tPFD")
	for _, name := range config.ListPresets() {
		c := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%.2e\t%.3f\t%.3f\t%.2f\t%.2f\t%v\n",
			name, c.Soil.Ks, c.Soil.Ths, c.Soil.Thr, c.Soil.Alpha, c.Soil.N, c.PFD.Enabled)
	}
	return w.Flush()
}

func printTables(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	vg := soil.VanGenuchten{
		Ks:    cfg.Soil.Ks,
		Ths:   cfg.Soil.Ths,
		Thr:   cfg.Soil.Thr,
		Alpha: cfg.Soil.Alpha,
		N:     cfg.Soil.N,
		Stor:  cfg.Soil.Stor,
		L:     cfg.Soil.L,
	}
	tables, err := soil.BuildTables(vg, cfg.Particles.NClass)
	if err != nil {
		return err
	}
	if every < 1 {
		every = 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "CLASS\tTHETA\tD [m2/s]\tK [m/s]\t")
	for i := 0; i < tables.Len(); i += every {
		fmt.Fprintf(w, "%d\t%.4f\t%.4e\t%.4e\t\n", i, tables.Theta[i], tables.D[i], tables.K[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nevent diffusivity (q=%.2f): %.4e m2/s\n", cfg.Particles.Prob, tables.DQuantile(cfg.Particles.Prob))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// log lines would tear the full screen view
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	exp, err := newExperiment(cfg, quiet)
	if err != nil {
		return err
	}
	s, err := exp.Build(cfg.Run.Seed)
	if err != nil {
		return err
	}

	m, err := viz.NewModel(s, cfg.Name)
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}

	lm, ok := final.(viz.Model)
	if !ok || !lm.Done() {
		return nil
	}
	if lm.Err() != nil {
		return lm.Err()
	}
	printSummary(s.Result())
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if precipFile != "" || profFile != "" {
		logrus.Warn("ensemble uses the forcing from the configuration; --precip and --profile are ignored")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:      cfg,
		NumTrials: numRuns,
		Seed:      cfg.Run.Seed,
	}, logrus.StandardLogger())
	if err != nil {
		return err
	}

	worst := 0.0
	for _, r := range results {
		worst = max(worst, r.MassError)
	}
	mean, std := automation.MonteCarloStats(results)

	fmt.Printf("%d runs in %v, worst mass error %.3e kg/m2\n\n", len(results), time.Since(start).Round(time.Millisecond), worst)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "CELL\tMEAN THETA\tSTD\t")
	for i := range mean {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t\n", i, mean[i], std[i])
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:     cfg,
		Key:      sweepKey,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepSteps,
	}, logrus.StandardLogger())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tEVENT FRACTION\tPFD INPUT\tMASS DRIFT\tTOP THETA\t\n", strings.ToUpper(sweepKey))
	for _, r := range results {
		top := 0.0
		if len(r.FinalTheta) > 0 {
			top = r.FinalTheta[0]
		}
		fmt.Fprintf(w, "%.4g\t%.4f\t%.4f\t%.2e\t%.4f\t\n", r.ParamValue, r.EventFraction, r.PFDInput, r.MassDrift, top)
	}
	return w.Flush()
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(gridParams) == 0 {
		return fmt.Errorf("at least one --param is required")
	}

	keys := make([]string, 0, len(gridParams))
	ranges := make([][]float64, 0, len(gridParams))
	for _, p := range gridParams {
		key, list, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid --param %q, want key=v1,v2", p)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return fmt.Errorf("--param %s: %w", key, err)
			}
			vals = append(vals, v)
		}
		keys = append(keys, strings.TrimSpace(key))
		ranges = append(ranges, vals)
	}

	objective := optim.MetricObjective(metricName)
	if observed != "" {
		prof, err := forcing.LoadProfile(observed)
		if err != nil {
			return err
		}
		grid, err := model.BuildGrid(cfg.Grid)
		if err != nil {
			return err
		}
		theta, _, err := prof.OnGrid(grid)
		if err != nil {
			return err
		}
		objective = optim.ProfileRMSE(theta)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	quiet := logrus.New()
	quiet.SetLevel(logrus.WarnLevel)

	best, score, trials, err := optim.NewGridSearch(keys, ranges).Search(ctx, optim.ConfigBuilder(cfg, quiet), objective)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(keys, "\t"))+"\tSCORE")
	for _, t := range trials {
		row := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			row = append(row, strconv.FormatFloat(t.Params[k], 'g', 4, 64))
		}
		if t.Err != nil {
			row = append(row, warnStyle.Render(t.Err.Error()))
		} else {
			row = append(row, strconv.FormatFloat(t.Score, 'g', 5, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if best == nil {
		return fmt.Errorf("no trial succeeded")
	}
	fmt.Println()
	for _, k := range keys {
		printField(k, strconv.FormatFloat(best[k], 'g', 6, 64))
	}
	printField("score", strconv.FormatFloat(score, 'g', 6, 64))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunScenario(ctx, scenario, st, logrus.StandardLogger())
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(scenario.Name))
	if scenario.Description != "" {
		fmt.Println(scenario.Description)
	}
	for _, r := range results {
		fmt.Println()
		printField("step", r.Name)
		if r.RunID != "" {
			printField("run id", r.RunID)
		}
		printSummary(r.Result)
	}
	return nil
}
