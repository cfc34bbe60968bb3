package viz

import "github.com/charmbracelet/lipgloss"

// Theme defines color scheme for the TUI
type Theme struct {
	Name    string
	Water   lipgloss.Color
	Pore    lipgloss.Color
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Warning lipgloss.Color
}

var (
	ThemeOcean = Theme{
		Name:    "ocean",
		Water:   lipgloss.Color("#00a8cc"),
		Pore:    lipgloss.Color("#ffd700"),
		Accent:  lipgloss.Color("#0077be"),
		Text:    lipgloss.Color("#e0f0ff"),
		Muted:   lipgloss.Color("#4488aa"),
		Warning: lipgloss.Color("#ff4444"),
	}

	ThemeLoam = Theme{
		Name:    "loam",
		Water:   lipgloss.Color("#5fd068"),
		Pore:    lipgloss.Color("#ff9ff3"),
		Accent:  lipgloss.Color("#c08552"),
		Text:    lipgloss.Color("#fff5f5"),
		Muted:   lipgloss.Color("#8b6b4c"),
		Warning: lipgloss.Color("#ff4757"),
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Water:   lipgloss.Color("#ffffff"),
		Pore:    lipgloss.Color("#0088ff"),
		Accent:  lipgloss.Color("#cccccc"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#888888"),
		Warning: lipgloss.Color("#ffaa00"),
	}

	Themes = []Theme{ThemeOcean, ThemeLoam, ThemeMinimal}
)

// GetTheme returns a theme by name, falling back to the first one.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return Themes[0]
}

// NextTheme returns the theme after t in Themes.
func NextTheme(t Theme) Theme {
	for i, th := range Themes {
		if th.Name == t.Name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
