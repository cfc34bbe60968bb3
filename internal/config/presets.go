package config

import "sort"

// Presets are soil and setup variants layered over DefaultConfig.
var Presets = map[string]func(*Config){
	"loam": func(c *Config) {
		c.Name = "loam"
	},
	"sand": func(c *Config) {
		c.Name = "sand"
		c.Soil = SoilConfig{Ks: 8.25e-5, Ths: 0.43, Thr: 0.045, Alpha: 14.5, N: 2.68, Stor: 1e-4, L: 0.5}
		c.Run.InitialTheta = 0.1
	},
	"silt": func(c *Config) {
		c.Name = "silt"
		c.Soil = SoilConfig{Ks: 6.9e-7, Ths: 0.46, Thr: 0.034, Alpha: 1.6, N: 1.37, Stor: 1e-4, L: 0.5}
		c.Run.InitialTheta = 0.25
	},
	"silt_macropore": func(c *Config) {
		c.Name = "silt_macropore"
		c.Soil = SoilConfig{Ks: 6.9e-7, Ths: 0.46, Thr: 0.034, Alpha: 1.6, N: 1.37, Stor: 1e-4, L: 0.5}
		c.Run.InitialTheta = 0.25
		c.Run.PrecipRate = 30
		c.PFD.Enabled = true
	},
	"pulse": func(c *Config) {
		c.Name = "pulse"
		c.Grid = GridConfig{Dim: 10, Dz: 0.1}
		c.Particles.Count = 9000
		c.Run.TEnd = 6000
		c.Run.PrecipRate = 20
		c.Run.PrecipDuration = 600
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
