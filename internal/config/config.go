package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDtc     = 60.0
	DefaultTEnd    = 86400.0
	DefaultDim     = 21
	DefaultDz      = 0.05
	DefaultNClass  = 100
	DefaultNumPart = 20000
	DefaultMobFak  = 0.1
	DefaultProb    = 0.9
	DefaultTheta   = 0.2
)

type Config struct {
	Name      string         `yaml:"name" toml:"name"`
	Soil      SoilConfig     `yaml:"soil" toml:"soil"`
	Grid      GridConfig     `yaml:"grid" toml:"grid"`
	Particles ParticleConfig `yaml:"particles" toml:"particles"`
	Mixing    MixingConfig   `yaml:"mixing" toml:"mixing"`
	PFD       PFDConfig      `yaml:"pfd" toml:"pfd"`
	Run       RunConfig      `yaml:"run" toml:"run"`
}

type SoilConfig struct {
	Ks    float64 `yaml:"ks" toml:"ks"`
	Ths   float64 `yaml:"ths" toml:"ths"`
	Thr   float64 `yaml:"thr" toml:"thr"`
	Alpha float64 `yaml:"alpha" toml:"alpha"`
	N     float64 `yaml:"n" toml:"n"`
	Stor  float64 `yaml:"stor" toml:"stor"`
	L     float64 `yaml:"l" toml:"l"`
}

// GridConfig describes either a uniform grid (Dim, Dz) or explicit node
// depths, given as positive distances below the surface.
type GridConfig struct {
	Dim    int       `yaml:"dim" toml:"dim"`
	Dz     float64   `yaml:"dz" toml:"dz"`
	Depths []float64 `yaml:"depths,omitempty" toml:"depths,omitempty"`
}

type ParticleConfig struct {
	Count  int     `yaml:"count" toml:"count"`
	NClass int     `yaml:"nclass" toml:"nclass"`
	MobFak float64 `yaml:"mob_fak" toml:"mob_fak"`
	Prob   float64 `yaml:"event_quantile" toml:"event_quantile"`
}

// MixingConfig is the two-component Gaussian mixture for event particle
// mixing times, in seconds.
type MixingConfig struct {
	Frac     float64 `yaml:"frac" toml:"frac"`
	FastMean float64 `yaml:"fast_mean" toml:"fast_mean"`
	FastSD   float64 `yaml:"fast_sd" toml:"fast_sd"`
	SlowMean float64 `yaml:"slow_mean" toml:"slow_mean"`
	SlowSD   float64 `yaml:"slow_sd" toml:"slow_sd"`
}

type PFDConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	Depth       float64 `yaml:"depth" toml:"depth"`
	Dz          float64 `yaml:"dz" toml:"dz"`
	Radius      float64 `yaml:"radius" toml:"radius"`
	NMak        int     `yaml:"n_mak" toml:"n_mak"`
	Mass        float64 `yaml:"particle_mass" toml:"particle_mass"`
	ContactDist float64 `yaml:"contact_dist" toml:"contact_dist"`
	RateBig     float64 `yaml:"rate_big" toml:"rate_big"`
	RateMid     float64 `yaml:"rate_mid" toml:"rate_mid"`
	RateSml     float64 `yaml:"rate_sml" toml:"rate_sml"`
	DepthBig    float64 `yaml:"depth_big" toml:"depth_big"`
	DepthMid    float64 `yaml:"depth_mid" toml:"depth_mid"`
	DepthSml    float64 `yaml:"depth_sml" toml:"depth_sml"`
}

// RunConfig holds the clock and the fallback forcing used when no data
// files are supplied. PrecipRate is in mm/h.
type RunConfig struct {
	Dtc            float64 `yaml:"dtc" toml:"dtc"`
	TEnd           float64 `yaml:"t_end" toml:"t_end"`
	Seed           int64   `yaml:"seed" toml:"seed"`
	SnapshotEvery  int     `yaml:"snapshot_every" toml:"snapshot_every"`
	InitialTheta   float64 `yaml:"initial_theta" toml:"initial_theta"`
	InitialConc    float64 `yaml:"initial_conc" toml:"initial_conc"`
	PrecipRate     float64 `yaml:"precip_rate" toml:"precip_rate"`
	PrecipConc     float64 `yaml:"precip_conc" toml:"precip_conc"`
	PrecipDuration float64 `yaml:"precip_duration" toml:"precip_duration"`
	SurfaceSolute  float64 `yaml:"surface_solute" toml:"surface_solute"`
}

func DefaultConfig() *Config {
	return &Config{
		Name: "default",
		Soil: SoilConfig{
			Ks:    5e-6,
			Ths:   0.45,
			Thr:   0.05,
			Alpha: 3.6,
			N:     1.56,
			Stor:  1e-4,
			L:     0.5,
		},
		Grid: GridConfig{
			Dim: DefaultDim,
			Dz:  DefaultDz,
		},
		Particles: ParticleConfig{
			Count:  DefaultNumPart,
			NClass: DefaultNClass,
			MobFak: DefaultMobFak,
			Prob:   DefaultProb,
		},
		Mixing: MixingConfig{
			Frac:     0.5,
			FastMean: 1800,
			FastSD:   600,
			SlowMean: 86400,
			SlowSD:   21600,
		},
		PFD: PFDConfig{
			Depth:       0.8,
			Dz:          0.05,
			Radius:      0.005,
			NMak:        50,
			Mass:        5e-5,
			ContactDist: 0.002,
			RateBig:     0.5,
			RateMid:     0.3,
			RateSml:     0.2,
			DepthBig:    0.8,
			DepthMid:    0.5,
			DepthSml:    0.25,
		},
		Run: RunConfig{
			Dtc:            DefaultDtc,
			TEnd:           DefaultTEnd,
			Seed:           1,
			SnapshotEvery:  60,
			InitialTheta:   DefaultTheta,
			PrecipRate:     10,
			PrecipConc:     1,
			PrecipDuration: 3600,
		},
	}
}

// Load reads a yaml or toml file over the defaults, picking the decoder
// from the file extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		return toml.NewEncoder(f).Encode(cfg)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Config) Clone() *Config {
	out := *c
	if c.Grid.Depths != nil {
		out.Grid.Depths = append([]float64(nil), c.Grid.Depths...)
	}
	return &out
}

func (c *Config) fields() map[string]any {
	return map[string]any{
		"name":                     &c.Name,
		"soil.ks":                  &c.Soil.Ks,
		"soil.ths":                 &c.Soil.Ths,
		"soil.thr":                 &c.Soil.Thr,
		"soil.alpha":               &c.Soil.Alpha,
		"soil.n":                   &c.Soil.N,
		"soil.stor":                &c.Soil.Stor,
		"soil.l":                   &c.Soil.L,
		"grid.dim":                 &c.Grid.Dim,
		"grid.dz":                  &c.Grid.Dz,
		"grid.depths":              &c.Grid.Depths,
		"particles.count":          &c.Particles.Count,
		"particles.nclass":         &c.Particles.NClass,
		"particles.mob_fak":        &c.Particles.MobFak,
		"particles.event_quantile": &c.Particles.Prob,
		"mixing.frac":              &c.Mixing.Frac,
		"mixing.fast_mean":         &c.Mixing.FastMean,
		"mixing.fast_sd":           &c.Mixing.FastSD,
		"mixing.slow_mean":         &c.Mixing.SlowMean,
		"mixing.slow_sd":           &c.Mixing.SlowSD,
		"pfd.enabled":              &c.PFD.Enabled,
		"pfd.depth":                &c.PFD.Depth,
		"pfd.dz":                   &c.PFD.Dz,
		"pfd.radius":               &c.PFD.Radius,
		"pfd.n_mak":                &c.PFD.NMak,
		"pfd.particle_mass":        &c.PFD.Mass,
		"pfd.contact_dist":         &c.PFD.ContactDist,
		"pfd.rate_big":             &c.PFD.RateBig,
		"pfd.rate_mid":             &c.PFD.RateMid,
		"pfd.rate_sml":             &c.PFD.RateSml,
		"pfd.depth_big":            &c.PFD.DepthBig,
		"pfd.depth_mid":            &c.PFD.DepthMid,
		"pfd.depth_sml":            &c.PFD.DepthSml,
		"run.dtc":                  &c.Run.Dtc,
		"run.t_end":                &c.Run.TEnd,
		"run.seed":                 &c.Run.Seed,
		"run.snapshot_every":       &c.Run.SnapshotEvery,
		"run.initial_theta":        &c.Run.InitialTheta,
		"run.initial_conc":         &c.Run.InitialConc,
		"run.precip_rate":          &c.Run.PrecipRate,
		"run.precip_conc":          &c.Run.PrecipConc,
		"run.precip_duration":      &c.Run.PrecipDuration,
		"run.surface_solute":       &c.Run.SurfaceSolute,
	}
}

// Keys lists the dotted keys accepted by Set.
func (c *Config) Keys() []string {
	f := c.fields()
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a single dotted key such as "soil.ks", coercing the value
// to the field type.
func (c *Config) Set(key string, value any) error {
	ptr, ok := c.fields()[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	var err error
	switch p := ptr.(type) {
	case *float64:
		*p, err = cast.ToFloat64E(value)
	case *int:
		*p, err = cast.ToIntE(value)
	case *int64:
		*p, err = cast.ToInt64E(value)
	case *bool:
		*p, err = cast.ToBoolE(value)
	case *string:
		*p, err = cast.ToStringE(value)
	case *[]float64:
		if fs, ok := value.([]float64); ok {
			*p = append([]float64(nil), fs...)
			break
		}
		var raw []any
		raw, err = cast.ToSliceE(value)
		if err == nil {
			vals := make([]float64, len(raw))
			for i, v := range raw {
				if vals[i], err = cast.ToFloat64E(v); err != nil {
					break
				}
			}
			*p = vals
		}
	}
	if err != nil {
		return fmt.Errorf("config key %q: %w", key, err)
	}
	return nil
}

// FromMap applies a flat key/value mapping over the receiver.
func (c *Config) FromMap(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := c.Set(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Grid.Depths == nil && c.Grid.Dim < 3 {
		return fmt.Errorf("grid.dim must be at least 3, got %d", c.Grid.Dim)
	}
	if c.Grid.Depths == nil && c.Grid.Dz <= 0 {
		return fmt.Errorf("grid.dz must be positive, got %f", c.Grid.Dz)
	}
	if c.Particles.Count <= 0 {
		return fmt.Errorf("particles.count must be positive, got %d", c.Particles.Count)
	}
	if c.Particles.NClass <= 0 {
		return fmt.Errorf("particles.nclass must be positive, got %d", c.Particles.NClass)
	}
	if c.Particles.MobFak < 0 || c.Particles.MobFak > 1 {
		return fmt.Errorf("particles.mob_fak must be in [0,1], got %f", c.Particles.MobFak)
	}
	if c.Particles.Prob < 0 || c.Particles.Prob > 1 {
		return fmt.Errorf("particles.event_quantile must be in [0,1], got %f", c.Particles.Prob)
	}
	if c.Mixing.Frac < 0 || c.Mixing.Frac > 1 {
		return fmt.Errorf("mixing.frac must be in [0,1], got %f", c.Mixing.Frac)
	}
	if c.Mixing.FastSD < 0 || c.Mixing.SlowSD < 0 {
		return fmt.Errorf("mixing standard deviations must not be negative")
	}
	if c.Run.Dtc <= 0 {
		return fmt.Errorf("run.dtc must be positive, got %f", c.Run.Dtc)
	}
	if c.Run.TEnd <= 0 {
		return fmt.Errorf("run.t_end must be positive, got %f", c.Run.TEnd)
	}
	if c.Run.PrecipRate < 0 {
		return fmt.Errorf("run.precip_rate must not be negative, got %f", c.Run.PrecipRate)
	}
	if c.PFD.Enabled {
		if err := c.PFD.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p PFDConfig) validate() error {
	if p.Depth <= 0 || p.Dz <= 0 || p.Dz > p.Depth {
		return fmt.Errorf("pfd needs 0 < dz <= depth, got dz=%f depth=%f", p.Dz, p.Depth)
	}
	if p.Radius <= 0 || p.Mass <= 0 || p.NMak <= 0 {
		return fmt.Errorf("pfd radius, particle_mass and n_mak must be positive")
	}
	if p.ContactDist < 0 || p.ContactDist > p.Radius {
		return fmt.Errorf("pfd.contact_dist must be in [0, radius], got %f", p.ContactDist)
	}
	if p.RateBig+p.RateMid+p.RateSml <= 0 {
		return fmt.Errorf("pfd size class rates must sum to a positive value")
	}
	return nil
}
