package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/lastsim/internal/sim"
)

const (
	canvasWidth     = 40
	canvasHeight    = 20
	historyCapacity = 600
	frameRate       = time.Second / 30
)

type TickMsg time.Time

// Model steps a simulation on every frame and draws the moisture column.
type Model struct {
	sim          *sim.Simulation
	name         string
	canvas       *Canvas
	theme        Theme
	running      bool
	done         bool
	err          error
	stepsPerTick int
	massHistory  []float64
	eventHistory []float64
	showHelp     bool
}

// NewModel prepares s for stepping. s must be in the Ready phase.
func NewModel(s *sim.Simulation, name string) (Model, error) {
	if err := s.Setup(); err != nil {
		return Model{}, err
	}
	return Model{
		sim:          s,
		name:         name,
		canvas:       NewCanvas(canvasWidth, canvasHeight),
		theme:        Themes[0],
		running:      true,
		stepsPerTick: 1,
		massHistory:  make([]float64, 0, historyCapacity),
		eventHistory: make([]float64, 0, historyCapacity),
	}, nil
}

func tick() tea.Cmd {
	return tea.Tick(frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "+", "=":
			m.stepsPerTick = min(m.stepsPerTick*2, 256)
		case "-", "_":
			m.stepsPerTick = max(m.stepsPerTick/2, 1)
		case "t":
			m.theme = NextTheme(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running && !m.done {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

// advance runs up to stepsPerTick steps and finishes the run at the end
// time or on the first error.
func (m *Model) advance() {
	st := m.sim.State()
	for i := 0; i < m.stepsPerTick && !st.Done(); i++ {
		if err := m.sim.Step(); err != nil {
			m.err, m.done = err, true
			return
		}
		m.record()
	}
	if st.Done() {
		m.err = m.sim.Finish()
		m.done = true
	}
}

func (m *Model) record() {
	st := m.sim.State()
	m.massHistory = append(m.massHistory, st.TotalMass())
	if len(m.massHistory) > historyCapacity {
		m.massHistory = m.massHistory[1:]
	}
	m.eventHistory = append(m.eventHistory, float64(len(st.Stores.Event)))
	if len(m.eventHistory) > historyCapacity {
		m.eventHistory = m.eventHistory[1:]
	}
}

// Done reports whether the simulation reached its end time or failed.
func (m Model) Done() bool { return m.done }

func (m Model) Err() error { return m.err }

func (m Model) View() string {
	st := m.sim.State()
	n := st.Grid.NumCells()

	m.canvas.DrawColumn(st.Profile.Theta[:n], st.Soil.Ths)
	column := lipgloss.NewStyle().Foreground(m.theme.Water).Render(m.canvas.String())
	column = panelStyle.Render(fmt.Sprintf("theta  0 .. %.2f\n", st.Soil.Ths) + column)

	var s strings.Builder
	s.WriteString(headerStyle(m.theme).Render(strings.ToUpper(m.name)) + "\n")

	status := "RUNNING"
	switch {
	case m.err != nil:
		status = lipgloss.NewStyle().Foreground(m.theme.Warning).Render("ERROR: " + m.err.Error())
	case m.done:
		status = "FINISHED"
	case !m.running:
		status = "PAUSED"
	}
	s.WriteString(status + "\n\n")

	s.WriteString(ProgressBar(m.theme, st.Clock.Time/st.Clock.TEnd, 30) + "\n\n")
	s.WriteString(Field("Time", "%.0f s", st.Clock.Time))
	s.WriteString(Field("Step", "%d", st.Clock.Step))
	s.WriteString(Field("Speed", "%d steps/frame", m.stepsPerTick))
	s.WriteString(Field("Rain", "%.2f mm/h", st.Boundary.Flux*1000*3600))
	s.WriteString(Field("Pre-event", "%d", len(st.Stores.PreEvent)))
	s.WriteString(Field("Event", "%d", len(st.Stores.Event)))
	if st.PFD != nil {
		s.WriteString(Field("Macropore", "%d", len(st.Stores.PFD)))
	}
	s.WriteString(Field("Mass", "%.3f kg/m2", st.TotalMass()))
	s.WriteString(Field("Mass error", "%.2e", st.TotalMass()-st.Diag.InitialMass-st.Diag.PrecipMass))

	s.WriteString("\n" + Separator(30) + "\n")
	s.WriteString(labelStyle.Render("Event") + Sparkline(m.eventHistory, 24) + "\n")
	s.WriteString(helpStyle.Render("SP:Pause +/-:Speed T:Theme ?:Help Q:Quit"))

	view := lipgloss.JoinHorizontal(lipgloss.Top, column, statsStyle.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + view
	}
	return view
}

const helpText = `
  Space  pause or resume
  + / -  double or halve steps per frame
  T      cycle themes
  ?      toggle this help
  Q      quit
`
