package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	thetaFile    = "theta.csv"
	massFile     = "mass.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Dtc         float64            `json:"dtc"`
	TEnd        float64            `json:"t_end"`
	Steps       int                `json:"steps"`
	Cells       int                `json:"cells"`
	Depths      []float64          `json:"depths"`
	Metrics     map[string]float64 `json:"metrics"`
	Diagnostics map[string]float64 `json:"diagnostics"`
	Config      *config.Config     `json:"config,omitempty"`
}

// Profiles are the theta snapshots of one run, one row per time.
type Profiles struct {
	Times []float64
	Theta [][]float64
}

// Save writes the metadata, the theta profiles and the mass balance of a
// run into a new directory and returns its id.
func (s *Store) Save(cfg *config.Config, depths []float64, result *sim.Result) (string, error) {
	name := cfg.Name
	if name == "" {
		name = "run"
	}
	runID := fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	d := result.Diagnostics
	meta := RunMetadata{
		ID:        runID,
		Name:      name,
		Timestamp: time.Now(),
		Seed:      cfg.Run.Seed,
		Dtc:       cfg.Run.Dtc,
		TEnd:      cfg.Run.TEnd,
		Steps:     result.StepsTaken,
		Cells:     len(result.Final().Theta),
		Depths:    depths,
		Metrics:   result.Metrics,
		Diagnostics: map[string]float64{
			"initial_mass":   d.InitialMass,
			"precip_mass":    d.PrecipMass,
			"matrix_input":   d.MatrixInput,
			"pfd_input":      d.PFDInput,
			"matrix_solute":  d.MatrixSolute,
			"pfd_solute":     d.PFDSolute,
			"exchanged_mass": d.ExchangedMass,
			"merged":         float64(d.Merged),
			"exchanged":      float64(d.Exchanged),
		},
		Config: cfg,
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeProfiles(filepath.Join(runDir, thetaFile), result.Snapshots); err != nil {
		return "", err
	}
	if err := writeMass(filepath.Join(runDir, massFile), result.Mass); err != nil {
		return "", err
	}

	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeProfiles writes one column per cell; the cell count is only known
// at run time so the fixed-schema gocsv writer does not fit.
func writeProfiles(path string, snaps []sim.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if len(snaps) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range snaps[0].Theta {
		header = append(header, fmt.Sprintf("theta%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, snap := range snaps {
		row := []string{strconv.FormatFloat(snap.Time, 'f', 6, 64)}
		for _, val := range snap.Theta {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeMass(path string, records []sim.MassRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.MarshalFile(&records, f)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadProfiles(runID string) (*Profiles, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, thetaFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	p := &Profiles{Times: []float64{}, Theta: [][]float64{}}
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 {
			continue
		}

		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", thetaFile, i, err)
		}

		theta := make([]float64, 0, len(record)-1)
		for j := 1; j < len(record); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", thetaFile, i, err)
			}
			theta = append(theta, val)
		}
		p.Times = append(p.Times, t)
		p.Theta = append(p.Theta, theta)
	}

	return p, nil
}

func (s *Store) LoadMassBalance(runID string) ([]sim.MassRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, massFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []sim.MassRecord
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Path returns the directory of a stored run.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.baseDir, runID)
}
