package forcing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/lastsim/internal/soil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPrecipitation(t *testing.T) {
	path := writeFile(t, "precip.csv", "time,intensity,concentration\n600,0,0\n0,36,0.5\n")

	s, err := LoadPrecipitation(path)
	require.NoError(t, err)
	require.Len(t, s.Time, 2)

	assert.Equal(t, 0.0, s.Time[0])
	assert.InDelta(t, 1e-5, s.Rate[0], 1e-15)
	assert.Equal(t, 0.5, s.Conc[0])
	assert.Equal(t, 0.0, s.Rate[1])
}

func TestLoadPrecipitationErrors(t *testing.T) {
	_, err := LoadPrecipitation(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	path := writeFile(t, "empty.csv", "time,intensity,concentration\n")
	_, err = LoadPrecipitation(path)
	assert.Error(t, err)

	path = writeFile(t, "neg.csv", "time,intensity,concentration\n0,-1,0\n")
	_, err = LoadPrecipitation(path)
	assert.Error(t, err)
}

func TestSeriesAt(t *testing.T) {
	s := Pulse(36, 0.2, 600)

	tests := []struct {
		t        float64
		wantIdx  int
		wantRate float64
	}{
		{-1, -1, 0},
		{0, 0, 1e-5},
		{599, 0, 1e-5},
		{600, 1, 0},
		{1e6, 1, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantIdx, s.Index(tt.t), "t=%f", tt.t)
		rate, _ := s.At(tt.t)
		assert.InDelta(t, tt.wantRate, rate, 1e-15, "t=%f", tt.t)
	}

	assert.InDelta(t, 6e-3, s.Total(3600), 1e-12)
	assert.InDelta(t, 3e-3, s.Total(300), 1e-12)
}

func TestDryAndZeroPulse(t *testing.T) {
	for _, s := range []*Series{Dry(), Pulse(0, 1, 100), Pulse(10, 1, 0)} {
		rate, conc := s.At(50)
		assert.Equal(t, 0.0, rate)
		assert.Equal(t, 0.0, conc)
	}
}

func TestProfileOnGrid(t *testing.T) {
	g, err := soil.UniformGrid(5, 0.1)
	require.NoError(t, err)

	path := writeFile(t, "profile.csv", "depth,theta,concentration\n0,0.1,0\n0.4,0.3,1\n")
	p, err := LoadProfile(path)
	require.NoError(t, err)

	theta, conc, err := p.OnGrid(g)
	require.NoError(t, err)
	require.Len(t, theta, 4)

	assert.InDelta(t, 0.125, theta[0], 1e-9)
	assert.InDelta(t, 0.275, theta[3], 1e-9)
	assert.InDelta(t, 0.875, conc[3], 1e-9)
}

func TestUniformProfile(t *testing.T) {
	g, err := soil.UniformGrid(10, 0.1)
	require.NoError(t, err)

	theta, conc, err := Uniform(0.2, 0.5).OnGrid(g)
	require.NoError(t, err)
	for i := range theta {
		assert.Equal(t, 0.2, theta[i])
		assert.Equal(t, 0.5, conc[i])
	}
}

func TestNewProfileDuplicateDepth(t *testing.T) {
	_, err := NewProfile([]*ProfileRecord{{Depth: 0.1}, {Depth: 0.1}})
	assert.Error(t, err)
}
