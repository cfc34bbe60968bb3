package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/lastsim/internal/config"
	"github.com/san-kum/lastsim/internal/model"
	"github.com/san-kum/lastsim/internal/sim"
)

func testResult() *sim.Result {
	return &sim.Result{
		Snapshots: []sim.Snapshot{
			{Time: 0, Theta: []float64{0.2, 0.2, 0.2}},
			{Time: 60, Theta: []float64{0.25, 0.2, 0.19}},
		},
		Mass: []sim.MassRecord{
			{Time: 0, Matrix: 60, Total: 60},
			{Time: 60, Matrix: 60.5, Event: 0.5, Carry: 0.01, Input: 1.01, Total: 61.01},
		},
		Metrics:     map[string]float64{"mass_drift": 1e-12},
		Diagnostics: model.Diagnostics{InitialMass: 60, PrecipMass: 1.01, Merged: 3},
		StepsTaken:  1,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	cfg := config.DefaultConfig()
	cfg.Name = "loam"
	cfg.Run.Seed = 42

	runID, err := st.Save(cfg, []float64{0.05, 0.15, 0.25}, testResult())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "loam", meta.Name)
	assert.Equal(t, int64(42), meta.Seed)
	assert.Equal(t, 3, meta.Cells)
	assert.Equal(t, 1e-12, meta.Metrics["mass_drift"])
	assert.Equal(t, 3.0, meta.Diagnostics["merged"])
	require.NotNil(t, meta.Config)
	assert.Equal(t, cfg.Soil, meta.Config.Soil)

	prof, err := st.LoadProfiles(runID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 60}, prof.Times)
	assert.InDeltaSlice(t, []float64{0.25, 0.2, 0.19}, prof.Theta[1], 1e-9)

	mass, err := st.LoadMassBalance(runID)
	require.NoError(t, err)
	require.Len(t, mass, 2)
	assert.InDelta(t, 61.01, mass[1].Total, 1e-9)
	assert.InDelta(t, 0.01, mass[1].Carry, 1e-9)
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := New(filepath.Join(dir, "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, st.Init())
	_, err = st.Save(config.DefaultConfig(), nil, testResult())
	require.NoError(t, err)
	_, err = st.Save(config.DefaultConfig(), nil, testResult())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "junk"), 0755))

	runs, err = st.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.False(t, runs[1].Timestamp.Before(runs[0].Timestamp))
}

func TestStoreEmptyResult(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runID, err := st.Save(config.DefaultConfig(), nil, &sim.Result{})
	require.NoError(t, err)

	prof, err := st.LoadProfiles(runID)
	require.NoError(t, err)
	assert.Empty(t, prof.Times)
}

func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	st := New(filepath.Join(dir, "runs"))
	require.NoError(t, st.Init())

	runID, err := st.Save(config.DefaultConfig(), nil, testResult())
	require.NoError(t, err)

	out := filepath.Join(dir, "export.json")
	require.NoError(t, st.ExportJSON(runID, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var exported ExportData
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, runID, exported.Run.ID)
	assert.Len(t, exported.Snapshots, 2)
	assert.Len(t, exported.Mass, 2)

	assert.Error(t, st.ExportJSON("nope", out))
}
