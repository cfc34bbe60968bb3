package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/lastsim/internal/sim"
)

type ExportData struct {
	Run       *RunMetadata     `json:"run"`
	Snapshots []sim.Snapshot   `json:"snapshots"`
	Mass      []sim.MassRecord `json:"mass"`
}

// ExportJSON writes a stored run as a single JSON document. An empty path
// writes to stdout.
func (s *Store) ExportJSON(runID, path string) error {
	data, err := s.export(runID)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Store) export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	prof, err := s.LoadProfiles(runID)
	if err != nil {
		return nil, err
	}
	mass, err := s.LoadMassBalance(runID)
	if err != nil {
		return nil, err
	}

	snaps := make([]sim.Snapshot, len(prof.Times))
	for i := range prof.Times {
		snaps[i] = sim.Snapshot{Time: prof.Times[i], Theta: prof.Theta[i]}
	}
	return &ExportData{Run: meta, Snapshots: snaps, Mass: mass}, nil
}
